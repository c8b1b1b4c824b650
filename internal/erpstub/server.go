// Package erpstub is an in-memory ERP answering the sales order contract,
// for local development and end-to-end tests.
package erpstub

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	erpgrpc "orderbridge/internal/adapters/grpc"
	"orderbridge/internal/masterdata"

	"github.com/bwmarrin/snowflake"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Config tunes the stub.
type Config struct {
	// NodeID seeds document entry ids; it must be within [0, 1023].
	NodeID int64
	// FirstDocNumber is the first document number handed out.
	FirstDocNumber int64
	// RejectProducts makes orders containing these item codes fail with
	// FailedPrecondition.
	RejectProducts []string
	// Latency delays every answer.
	Latency time.Duration
	Logger  *slog.Logger
}

// Server is the stub ERP.
type Server struct {
	node    *snowflake.Node
	reject  map[string]struct{}
	latency time.Duration
	logger  *slog.Logger

	mu      sync.Mutex
	nextNum int64
	created []erpgrpc.CreateOrderResponse
}

// New constructs a Server.
func New(cfg Config) (*Server, error) {
	node, err := snowflake.NewNode(cfg.NodeID)
	if err != nil {
		return nil, fmt.Errorf("snowflake node: %w", err)
	}
	s := &Server{
		node:    node,
		reject:  make(map[string]struct{}, len(cfg.RejectProducts)),
		latency: cfg.Latency,
		logger:  cfg.Logger,
		nextNum: cfg.FirstDocNumber,
	}
	if s.nextNum <= 0 {
		s.nextNum = 1
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	for _, code := range cfg.RejectProducts {
		if code = masterdata.Normalize(code); code != "" {
			s.reject[code] = struct{}{}
		}
	}
	return s, nil
}

// CreateOrder creates a document and returns its identifiers.
func (s *Server) CreateOrder(ctx context.Context, req *erpgrpc.CreateOrderRequest) (*erpgrpc.CreateOrderResponse, error) {
	if s.latency > 0 {
		timer := time.NewTimer(s.latency)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return nil, status.FromContextError(ctx.Err()).Err()
		}
	}

	if strings.TrimSpace(req.CustomerCode) == "" {
		return nil, status.Error(codes.InvalidArgument, "cardCode is required")
	}
	if len(req.Lines) == 0 {
		return nil, status.Error(codes.InvalidArgument, "documentLines must not be empty")
	}
	for _, line := range req.Lines {
		if _, ok := s.reject[masterdata.Normalize(line.ProductCode)]; ok {
			return nil, status.Errorf(codes.FailedPrecondition, "item %s is inactive", line.ProductCode)
		}
	}

	s.mu.Lock()
	resp := erpgrpc.CreateOrderResponse{
		DocEntry:  s.node.Generate().String(),
		DocNumber: strconv.FormatInt(s.nextNum, 10),
	}
	s.nextNum++
	s.created = append(s.created, resp)
	s.mu.Unlock()

	s.logger.Info("erp order created",
		"external_order_id", req.ExternalOrderID,
		"instance_id", req.InstanceID,
		"doc_entry", resp.DocEntry,
		"doc_num", resp.DocNumber,
		"lines", len(req.Lines),
	)
	return &resp, nil
}

// Created returns the documents created so far.
func (s *Server) Created() []erpgrpc.CreateOrderResponse {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]erpgrpc.CreateOrderResponse(nil), s.created...)
}
