// Package net adapts io streams, such as a process stdin / stdout, to the net
// package interfaces, so they can carry gRPC connections.
package net

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"time"
)

// Addr implements net.Addr for io.ReadCloser / io.WriteCloser.
type Addr struct {
	Reader io.ReadCloser
	Writer io.WriteCloser
}

func (a Addr) Network() string {
	return "io"
}

func (a Addr) String() string {
	return fmt.Sprintf("%v<>%v", a.Reader, a.Writer)
}

// IOConn implements net.Conn over an io.ReadCloser / io.WriteCloser pair.
type IOConn struct {
	Reader io.ReadCloser
	Writer io.WriteCloser
}

func (c IOConn) Read(b []byte) (int, error) {
	return c.Reader.Read(b)
}

func (c IOConn) Write(b []byte) (int, error) {
	return c.Writer.Write(b)
}

func (c IOConn) Close() error {
	return errors.Join(
		c.Reader.Close(),
		c.Writer.Close(),
	)
}

func (c IOConn) LocalAddr() net.Addr {
	return Addr{Reader: c.Reader}
}

func (c IOConn) RemoteAddr() net.Addr {
	return Addr{Writer: c.Writer}
}

func (c IOConn) SetDeadline(t time.Time) error {
	return os.ErrNoDeadline
}

func (c IOConn) SetReadDeadline(t time.Time) error {
	return os.ErrNoDeadline
}

func (c IOConn) SetWriteDeadline(t time.Time) error {
	return os.ErrNoDeadline
}

// Listener implements net.Listener for a single connection.
//
// The first call to Accept returns the connection, subsequent calls block until
// Close is called, then return io.EOF.
type Listener struct {
	connCh    chan net.Conn
	closeOnce sync.Once
}

func NewListener(conn net.Conn) *Listener {
	l := &Listener{
		connCh: make(chan net.Conn, 1),
	}
	l.connCh <- conn
	return l
}

func (l *Listener) Accept() (net.Conn, error) {
	conn, ok := <-l.connCh
	if !ok {
		return nil, io.EOF
	}
	return conn, nil
}

func (l *Listener) Close() error {
	l.closeOnce.Do(func() { close(l.connCh) })
	return nil
}

func (l *Listener) Addr() net.Addr {
	return Addr{}
}
