package rpc

import (
	"context"
	"errors"
	"net"
	"time"

	"google.golang.org/grpc"
)

// Logger is the logging interface used by the server.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// NewServer returns a grpc.Server with srv registered and every call
// logged.
func NewServer(srv ActuatorServer, logger Logger, opts ...grpc.ServerOption) *grpc.Server {
	if logger != nil {
		opts = append(opts, grpc.ChainUnaryInterceptor(LoggingInterceptor(logger)))
	}
	s := grpc.NewServer(opts...)
	RegisterActuatorServer(s, srv)
	return s
}

// Serve runs s on lis until ctx is cancelled, then stops it gracefully.
func Serve(ctx context.Context, s *grpc.Server, lis net.Listener) error {
	errCh := make(chan error, 1)
	go func() { errCh <- s.Serve(lis) }()

	select {
	case <-ctx.Done():
		s.GracefulStop()
		<-errCh
		return nil
	case err := <-errCh:
		if errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return err
	}
}

// LoggingInterceptor logs each call with its duration and outcome.
func LoggingInterceptor(logger Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)

		args := []any{"method", info.FullMethod, "duration_ms", time.Since(start).Milliseconds()}
		switch r := resp.(type) {
		case *Response:
			if r != nil {
				args = append(args, "success", r.Success)
			}
		}
		if err != nil {
			logger.Warn("rpc call failed", append(args, "error", err)...)
			return resp, err
		}
		logger.Info("rpc call", args...)
		return resp, nil
	}
}
