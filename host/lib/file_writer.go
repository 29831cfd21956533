package lib

import (
	"context"
	"errors"
	"io"

	"github.com/fornellas/roam/host/types"
)

// HostFileWriter implements io.WriteCloser for writing to a file on a host.
// Content is streamed to Host.WriteFile; Close must be called to wait for WriteFile to complete
// and to get its error.
type HostFileWriter struct {
	pipeWriter *io.PipeWriter
	doneCh     chan error
}

// NewHostFileWriter starts writing to the file at path on the host, truncating it.
func NewHostFileWriter(ctx context.Context, hst types.Host, path string, mode types.FileMode) *HostFileWriter {
	pipeReader, pipeWriter := io.Pipe()
	w := &HostFileWriter{
		pipeWriter: pipeWriter,
		doneCh:     make(chan error, 1),
	}
	go func() {
		err := hst.WriteFile(ctx, path, pipeReader, mode)
		pipeReader.CloseWithError(err)
		w.doneCh <- err
	}()
	return w
}

func (w *HostFileWriter) Write(p []byte) (int, error) {
	return w.pipeWriter.Write(p)
}

// Close flushes all content and waits for the write to complete.
func (w *HostFileWriter) Close() error {
	closeErr := w.pipeWriter.Close()
	return errors.Join(closeErr, <-w.doneCh)
}
