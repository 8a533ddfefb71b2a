package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/encoding"
	"google.golang.org/grpc/metadata"

	"heatvision-agent/internal/model"
)

type jsonCodec struct{}

func (jsonCodec) Name() string { return "json" }

func (jsonCodec) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

// GRPCSink streams event frames to a backend over a client stream. The
// connection is dialed lazily and the stream is reopened once after a send
// failure.
type GRPCSink struct {
	mu sync.Mutex

	logger      *slog.Logger
	addr        string
	token       string
	agentID     string
	method      string
	conn        *grpc.ClientConn
	stream      grpc.ClientStream
	dialTimeout time.Duration
}

func NewGRPCSink(addr, token, method, agentID string, logger *slog.Logger) *GRPCSink {
	encoding.RegisterCodec(jsonCodec{})
	return &GRPCSink{
		logger:      logger,
		addr:        addr,
		token:       token,
		agentID:     agentID,
		method:      method,
		dialTimeout: 8 * time.Second,
	}
}

func (s *GRPCSink) Publish(ctx context.Context, events []model.PublishEvent) error {
	if len(events) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureConnLocked(); err != nil {
		return err
	}
	if s.stream == nil {
		if err := s.openStreamLocked(); err != nil {
			return err
		}
	}

	frame := NewEventFrame(s.agentID, events)
	if err := s.stream.SendMsg(frame); err != nil {
		s.logger.Warn("grpc send failed, reopening stream", "error", err)
		s.stream = nil
		if err2 := s.openStreamLocked(); err2 != nil {
			return fmt.Errorf("reopen event stream: %w", err2)
		}
		if err2 := s.stream.SendMsg(frame); err2 != nil {
			return fmt.Errorf("send event frame: %w", err2)
		}
	}
	return nil
}

func (s *GRPCSink) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stream != nil {
		_ = s.stream.CloseSend()
		s.stream = nil
	}
	if s.conn != nil {
		err := s.conn.Close()
		s.conn = nil
		return err
	}
	return nil
}

func (s *GRPCSink) ensureConnLocked() error {
	if s.conn != nil {
		return nil
	}
	conn, err := grpc.NewClient(s.addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype("json")),
	)
	if err != nil {
		return fmt.Errorf("grpc client %s: %w", s.addr, err)
	}
	s.conn = conn
	return nil
}

func (s *GRPCSink) openStreamLocked() error {
	ctx := context.Background()
	if s.token != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+s.token)
	}
	desc := &grpc.StreamDesc{StreamName: "PublishReadings", ClientStreams: true}
	stream, err := s.conn.NewStream(ctx, desc, s.method)
	if err != nil {
		return fmt.Errorf("open event stream: %w", err)
	}
	s.stream = stream
	return nil
}
