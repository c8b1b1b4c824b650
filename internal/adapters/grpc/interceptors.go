package grpc

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"strings"
	"time"

	"orderbridge/internal/observability"

	grpcpkg "google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// APIKeyMetadata is the metadata key carrying the intake API key.
const APIKeyMetadata = "x-api-key"

// Limiter blocks until a call may proceed.
type Limiter interface {
	Wait(ctx context.Context) error
}

// InterceptorConfig configures the intake interceptors. Every field is
// optional; an empty APIKey disables authentication.
type InterceptorConfig struct {
	APIKey  string
	Limiter Limiter
	Stats   *observability.Stats
	Logger  *slog.Logger
}

type rateLimitedServerStream struct {
	grpcpkg.ServerStream
	limiter Limiter
}

func (s *rateLimitedServerStream) RecvMsg(m any) error {
	if s.limiter != nil {
		if err := s.limiter.Wait(s.Context()); err != nil {
			return status.FromContextError(err).Err()
		}
	}
	return s.ServerStream.RecvMsg(m)
}

// UnaryInterceptor authenticates, rate limits and measures unary calls.
func UnaryInterceptor(cfg InterceptorConfig) grpcpkg.UnaryServerInterceptor {
	logger := loggerOrDefault(cfg.Logger)
	return func(ctx context.Context, req any, info *grpcpkg.UnaryServerInfo, handler grpcpkg.UnaryHandler) (any, error) {
		if !shouldTrackMethod(info.FullMethod) {
			return handler(ctx, req)
		}
		span := cfg.Stats.Start(info.FullMethod)
		start := time.Now()
		if err := authorize(ctx, cfg.APIKey); err != nil {
			span.End(err)
			return nil, err
		}
		if cfg.Limiter != nil {
			if err := cfg.Limiter.Wait(ctx); err != nil {
				err = status.FromContextError(err).Err()
				span.End(err)
				return nil, err
			}
		}
		resp, err := handler(ctx, req)
		span.End(err)
		if err != nil {
			logger.Warn("grpc unary call failed", "method", info.FullMethod, "elapsed", time.Since(start), "err", err)
		}
		return resp, err
	}
}

// StreamInterceptor authenticates and measures streams and rate limits
// every received message.
func StreamInterceptor(cfg InterceptorConfig) grpcpkg.StreamServerInterceptor {
	logger := loggerOrDefault(cfg.Logger)
	return func(srv any, stream grpcpkg.ServerStream, info *grpcpkg.StreamServerInfo, handler grpcpkg.StreamHandler) error {
		if !shouldTrackMethod(info.FullMethod) {
			return handler(srv, stream)
		}
		span := cfg.Stats.Start(info.FullMethod)
		start := time.Now()
		if err := authorize(stream.Context(), cfg.APIKey); err != nil {
			span.End(err)
			return err
		}
		if cfg.Limiter != nil {
			stream = &rateLimitedServerStream{ServerStream: stream, limiter: cfg.Limiter}
		}
		err := handler(srv, stream)
		span.End(err)
		if err != nil {
			logger.Warn("grpc stream failed", "method", info.FullMethod, "elapsed", time.Since(start), "err", err)
		}
		return err
	}
}

func authorize(ctx context.Context, key string) error {
	if key == "" {
		return nil
	}
	md, _ := metadata.FromIncomingContext(ctx)
	values := md.Get(APIKeyMetadata)
	if len(values) == 0 || subtle.ConstantTimeCompare([]byte(values[0]), []byte(key)) != 1 {
		return status.Error(codes.Unauthenticated, "missing or invalid API key")
	}
	return nil
}

// shouldTrackMethod skips reflection and health probes.
func shouldTrackMethod(method string) bool {
	return method != "" &&
		!strings.HasPrefix(method, "/grpc.reflection.") &&
		!strings.HasPrefix(method, "/grpc.health.")
}

func loggerOrDefault(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.Default()
	}
	return logger
}
