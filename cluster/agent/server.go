package agent

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"path"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/fornellas/slogxt/log"

	"github.com/fornellas/roam/cluster"
	hostNet "github.com/fornellas/roam/host/net"
)

var requestsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "roam_agent_requests_total",
		Help: "Agent requests, by method and status code.",
	},
	[]string{"method", "code"},
)

// Server serves a HostCluster.
type Server struct {
	cluster    *cluster.HostCluster
	logger     *slog.Logger
	grpcServer *grpc.Server
	stopOnce   sync.Once
}

// NewServer creates a Server for c. Requests are logged with the logger from ctx.
func NewServer(ctx context.Context, c *cluster.HostCluster) *Server {
	s := &Server{
		cluster: c,
		logger:  log.MustLogger(ctx),
	}
	s.grpcServer = grpc.NewServer(grpc.ChainUnaryInterceptor(s.intercept))
	s.grpcServer.RegisterService(&serviceDesc, s)
	return s
}

func (s *Server) intercept(
	ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler,
) (any, error) {
	method := path.Base(info.FullMethod)
	ctx, logger := log.MustWithGroupAttrs(log.WithLogger(ctx, s.logger), "🐈 Agent", "method", method)
	resp, err := handler(ctx, req)
	requestsTotal.WithLabelValues(method, status.Code(err).String()).Inc()
	if err != nil {
		logger.Error("Failed", "err", err)
	}
	return resp, err
}

// Serve accepts connections from lis until Stop is called, or a Shutdown request.
func (s *Server) Serve(lis net.Listener) error {
	return s.grpcServer.Serve(lis)
}

// ServeIO serves the single connection over reader / writer, eg: the process stdin / stdout.
func (s *Server) ServeIO(reader io.ReadCloser, writer io.WriteCloser) error {
	return s.Serve(hostNet.NewListener(hostNet.IOConn{
		Reader: reader,
		Writer: writer,
	}))
}

// Stop waits for pending requests, then stops serving.
func (s *Server) Stop() {
	s.stopOnce.Do(s.grpcServer.GracefulStop)
}

func (s *Server) Ping(ctx context.Context, _ *emptypb.Empty) (*wrapperspb.StringValue, error) {
	return wrapperspb.String("Pong"), nil
}

func (s *Server) PutResource(ctx context.Context, req *structpb.Struct) (*wrapperspb.StringValue, error) {
	key, err := s.cluster.PutResource(ctx, req.AsMap())
	if err != nil {
		return nil, err
	}
	return wrapperspb.String(key), nil
}

func (s *Server) CallMethod(ctx context.Context, req *structpb.Struct) (*structpb.Value, error) {
	values := req.AsMap()
	key, _ := values["key"].(string)
	method, _ := values["method"].(string)
	args, _ := values["args"].(map[string]any)
	result, err := s.cluster.CallMethod(ctx, key, method, args)
	if err != nil {
		return nil, err
	}
	value, err := structpb.NewValue(result)
	if err != nil {
		return nil, fmt.Errorf("%s: unsupported result: %w", method, err)
	}
	return value, nil
}

func listStrings(list *structpb.ListValue) ([]string, error) {
	strs := []string{}
	for _, value := range list.GetValues() {
		s, ok := value.GetKind().(*structpb.Value_StringValue)
		if !ok {
			return nil, fmt.Errorf("expected string, got %v", value)
		}
		strs = append(strs, s.StringValue)
	}
	return strs, nil
}

func (s *Server) InstallPackages(ctx context.Context, req *structpb.ListValue) (*emptypb.Empty, error) {
	specs, err := listStrings(req)
	if err != nil {
		return nil, err
	}
	if err := s.cluster.InstallPackages(ctx, specs); err != nil {
		return nil, err
	}
	return &emptypb.Empty{}, nil
}

func (s *Server) Run(ctx context.Context, req *structpb.ListValue) (*structpb.ListValue, error) {
	cmds, err := listStrings(req)
	if err != nil {
		return nil, err
	}
	exitCodes, err := s.cluster.Run(ctx, cmds)
	if err != nil {
		return nil, err
	}
	list := &structpb.ListValue{}
	for _, exitCode := range exitCodes {
		list.Values = append(list.Values, structpb.NewNumberValue(float64(exitCode)))
	}
	return list, nil
}

func (s *Server) Shutdown(ctx context.Context, _ *emptypb.Empty) (*emptypb.Empty, error) {
	go s.Stop()
	return &emptypb.Empty{}, nil
}
