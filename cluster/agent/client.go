package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/fornellas/slogxt/log"

	"github.com/fornellas/roam/cluster"
	"github.com/fornellas/roam/host"
	hostNet "github.com/fornellas/roam/host/net"
	"github.com/fornellas/roam/host/types"
	"github.com/fornellas/roam/resource"
)

// KindAgent is the cluster kind of Client.
const KindAgent = "agent"

// Client is a Cluster served by an agent.
type Client struct {
	name       string
	host       types.Host
	hostTarget string
	storePath  string
	command    []string
	conn       *grpc.ClientConn
	ownsHost   bool
	waitCh     chan struct{}
}

// NewClient creates a Client for the agent at conn. Data is stored at hst, under storePath.
func NewClient(conn *grpc.ClientConn, name string, hst types.Host, storePath string) *Client {
	return &Client{
		name:       name,
		host:       hst,
		hostTarget: hst.String(),
		storePath:  storePath,
		conn:       conn,
	}
}

type writerLogger struct {
	Logger *slog.Logger
}

func (wl writerLogger) Write(b []byte) (int, error) {
	lines := strings.Split(string(b), "\n")
	for i, line := range lines {
		if len(line) == 0 && i+1 == len(lines) {
			break
		}
		wl.Logger.Info("Agent", "line", line)
	}
	return len(b), nil
}

// Spawn runs command at hst, with arguments to serve an agent over its stdin / stdout, and
// connects to it. Its stderr is logged. Close stops it.
func Spawn(ctx context.Context, name string, hst types.Host, command []string, storePath string) (*Client, error) {
	ctx, logger := log.MustWithGroupAttrs(ctx, "🐈 Agent", "host", hst.String())
	if len(command) == 0 {
		return nil, fmt.Errorf("empty agent command")
	}

	stdinReader, stdinWriter, err := os.Pipe()
	if err != nil {
		return nil, err
	}
	stdoutReader, stdoutWriter, err := os.Pipe()
	if err != nil {
		return nil, errors.Join(err, stdinReader.Close(), stdinWriter.Close())
	}

	// The address is not used by the dialer.
	conn, err := grpc.NewClient("127.0.0.1",
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithContextDialer(func(ctx context.Context, addr string) (net.Conn, error) {
			return hostNet.IOConn{
				Reader: stdoutReader,
				Writer: stdinWriter,
			}, nil
		}),
	)
	if err != nil {
		return nil, errors.Join(err, stdinReader.Close(), stdinWriter.Close(), stdoutReader.Close(), stdoutWriter.Close())
	}

	c := NewClient(conn, name, hst, storePath)
	c.command = command
	c.waitCh = make(chan struct{})

	args := append(append([]string{}, command[1:]...), "agent", "--name", name, "--store-path", storePath)
	go func() {
		defer close(c.waitCh)
		waitStatus, err := hst.Run(ctx, types.Cmd{
			Path:   command[0],
			Args:   args,
			Stdin:  stdinReader,
			Stdout: stdoutWriter,
			Stderr: writerLogger{Logger: logger},
		})
		if err != nil {
			logger.Error("Failed to run agent", "err", err)
		} else if !waitStatus.Success() {
			logger.Error("Agent exited with error", "status", waitStatus.String())
		}
		stdinWriter.Close()
		stdoutReader.Close()
		stdinReader.Close()
		stdoutWriter.Close()
	}()

	if err := c.Ping(ctx); err != nil {
		return nil, errors.Join(err, c.Close(ctx))
	}
	return c, nil
}

// Ping checks the agent is serving.
func (c *Client) Ping(ctx context.Context) error {
	resp := &wrapperspb.StringValue{}
	if err := c.conn.Invoke(ctx, fullMethod("Ping"), &emptypb.Empty{}, resp); err != nil {
		return err
	}
	if resp.GetValue() != "Pong" {
		return fmt.Errorf("unexpected response from agent: %#v", resp.GetValue())
	}
	return nil
}

func (c *Client) Name() string {
	return c.name
}

func (c *Client) Host() types.Host {
	return c.host
}

func (c *Client) DefaultStorePath() string {
	return c.storePath
}

func (c *Client) PutResource(ctx context.Context, config resource.Config) (string, error) {
	req, err := structpb.NewStruct(map[string]any(config))
	if err != nil {
		return "", err
	}
	resp := &wrapperspb.StringValue{}
	if err := c.conn.Invoke(ctx, fullMethod("PutResource"), req, resp); err != nil {
		return "", err
	}
	return resp.GetValue(), nil
}

// CallMethod calls method at the agent. Numbers in the result are float64.
func (c *Client) CallMethod(ctx context.Context, key, method string, args map[string]any) (any, error) {
	if args == nil {
		args = map[string]any{}
	}
	req, err := structpb.NewStruct(map[string]any{
		"key":    key,
		"method": method,
		"args":   args,
	})
	if err != nil {
		return nil, err
	}
	resp := &structpb.Value{}
	if err := c.conn.Invoke(ctx, fullMethod("CallMethod"), req, resp); err != nil {
		return nil, err
	}
	return resp.AsInterface(), nil
}

func stringsList(strs []string) *structpb.ListValue {
	list := &structpb.ListValue{}
	for _, s := range strs {
		list.Values = append(list.Values, structpb.NewStringValue(s))
	}
	return list
}

func (c *Client) InstallPackages(ctx context.Context, specs []string) error {
	return c.conn.Invoke(ctx, fullMethod("InstallPackages"), stringsList(specs), &emptypb.Empty{})
}

func (c *Client) Run(ctx context.Context, cmds []string) ([]int, error) {
	resp := &structpb.ListValue{}
	if err := c.conn.Invoke(ctx, fullMethod("Run"), stringsList(cmds), resp); err != nil {
		return nil, err
	}
	exitCodes := []int{}
	for _, value := range resp.GetValues() {
		exitCodes = append(exitCodes, int(value.GetNumberValue()))
	}
	return exitCodes, nil
}

func (c *Client) Config() resource.Config {
	command := []any{}
	for _, arg := range c.command {
		command = append(command, arg)
	}
	return resource.Config{
		resource.KeyType:    cluster.ResourceType,
		resource.KeySubtype: KindAgent,
		resource.KeyName:    c.name,
		"host_type":         c.host.Type(),
		"host_target":       c.hostTarget,
		"store_path":        c.storePath,
		"command":           command,
	}
}

// Close stops a spawned agent and waits for it to exit, then closes the connection.
func (c *Client) Close(ctx context.Context) error {
	var errs []error
	if c.waitCh != nil {
		if err := c.conn.Invoke(ctx, fullMethod("Shutdown"), &emptypb.Empty{}, &emptypb.Empty{}); err != nil {
			log.MustLogger(ctx).Warn("Failed to shutdown agent", "err", err)
		}
	}
	errs = append(errs, c.conn.Close())
	if c.waitCh != nil {
		<-c.waitCh
	}
	if c.ownsHost {
		errs = append(errs, c.host.Close(ctx))
	}
	return errors.Join(errs...)
}

// DefaultCommand runs the current executable for local hosts, else roam from PATH.
func DefaultCommand(hst types.Host) []string {
	if hst.Type() == host.TypeLocal {
		if executable, err := os.Executable(); err == nil {
			return []string{executable}
		}
	}
	return []string{"roam"}
}

func openAgent(ctx context.Context, config resource.Config) (cluster.Cluster, error) {
	hst, err := host.New(ctx, config.String("host_type"), config.String("host_target"), host.SshClientConfig{})
	if err != nil {
		return nil, err
	}
	command, err := config.Strings("command")
	if err != nil {
		return nil, errors.Join(err, hst.Close(ctx))
	}
	if len(command) == 0 {
		command = DefaultCommand(hst)
	}
	c, err := Spawn(ctx, config.Name(), hst, command, config.String("store_path"))
	if err != nil {
		return nil, errors.Join(err, hst.Close(ctx))
	}
	c.hostTarget = config.String("host_target")
	c.ownsHost = true
	return c, nil
}

func init() {
	cluster.RegisterKind(KindAgent, openAgent)
}
