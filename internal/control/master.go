package control

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/encoding"

	"github.com/swarmguard/taskexecutor/pkg/resilience"
)

// jsonCodec lets the master connection speak gRPC without generated
// protobuf stubs: messages are plain JSON-tagged structs (Message)
// marshaled over the wire via grpc's pluggable codec
// mechanism rather than proto.Message.
type jsonCodec struct{}

func (jsonCodec) Name() string { return "json" }

func (jsonCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// MessageSender is the per-listener send capability PersistentConnectionToMaster
// hands out (spec §6: "message_sender(listener_id) → { send(control_message) }").
type MessageSender interface {
	Send(ctx context.Context, msg Message) error
}

// PersistentConnectionToMaster is the shared, concurrency-safe gRPC
// connection the executor uses to send metrics and hand off DynOpt
// payloads. It is guarded by a circuit breaker and retried with backoff so
// a flaky master does not stall the fetch loop (spec §5: "the master
// connection is shared across executors and must be safe for concurrent
// send").
type PersistentConnectionToMaster struct {
	conn    *grpc.ClientConn
	breaker *resilience.CircuitBreaker
	limiter *resilience.RateLimiter

	retryAttempts  int
	retryBaseDelay time.Duration
}

// DialMaster opens the gRPC connection to addr. Callers own the returned
// connection's lifetime and should Close it at task end.
func DialMaster(addr string, retryAttempts int, retryBaseDelay time.Duration) (*PersistentConnectionToMaster, error) {
	conn, err := grpc.NewClient(addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(jsonCodec{}.Name())),
	)
	if err != nil {
		return nil, fmt.Errorf("dial master %s: %w", addr, err)
	}
	return &PersistentConnectionToMaster{
		conn:           conn,
		breaker:        resilience.NewCircuitBreakerAdaptive(30*time.Second, 6, 5, 0.5, 5*time.Second, 2),
		limiter:        resilience.NewRateLimiter(50, 10, time.Second, 100),
		retryAttempts:  retryAttempts,
		retryBaseDelay: retryBaseDelay,
	}, nil
}

// Close tears down the underlying gRPC connection.
func (m *PersistentConnectionToMaster) Close() error {
	return m.conn.Close()
}

// MessageSender returns the send capability for listenerID. The core only
// ever uses RuntimeMasterMessageListenerID, but the method is kept general
// per the consumed-contract shape in spec §6.
func (m *PersistentConnectionToMaster) MessageSender(listenerID string) MessageSender {
	return &masterMessageSender{conn: m, listenerID: listenerID}
}

type masterMessageSender struct {
	conn       *PersistentConnectionToMaster
	listenerID string
}

func (s *masterMessageSender) Send(ctx context.Context, msg Message) error {
	if !s.conn.breaker.Allow() {
		return fmt.Errorf("master connection circuit open, dropping message %s", msg.ID)
	}
	if !s.conn.limiter.Allow() {
		return fmt.Errorf("master connection rate limited, dropping message %s", msg.ID)
	}

	_, err := resilience.Retry(ctx, s.conn.retryAttempts, s.conn.retryBaseDelay, func() (struct{}, error) {
		var reply controlAck
		invokeErr := s.conn.conn.Invoke(ctx, "/taskexecutor.Master/SendControlMessage", msg, &reply)
		return struct{}{}, invokeErr
	})
	s.conn.breaker.RecordResult(err == nil)
	if err != nil {
		slog.Warn("control message send failed", "message_id", msg.ID, "error", err)
		return fmt.Errorf("send control message %s: %w", msg.ID, err)
	}
	return nil
}

// controlAck is the empty acknowledgment the master's SendControlMessage
// RPC returns.
type controlAck struct{}
