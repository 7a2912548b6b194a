package transfer

import (
	"bytes"
	"context"
	"encoding/gob"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	nats "github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/swarmguard/taskexecutor/internal/ir"
)

var propagator = propagation.TraceContext{}

func init() {
	// Built-in payload types usable without the caller registering their
	// own. Transform authors using richer payloads must gob.Register them
	// before the first Fetch/Write.
	gob.Register("")
	gob.Register(0)
	gob.Register(int64(0))
	gob.Register(float64(0))
	gob.Register(false)
	gob.Register([]byte(nil))
}

const (
	wireKindData byte = iota
	wireKindFinishmark
	wireKindWatermark
)

type wireElement struct {
	Kind      byte
	Payload   any
	Timestamp int64
}

func encodeElement(e ir.Element) ([]byte, error) {
	w := wireElement{Kind: wireKindData, Payload: e.Payload}
	if e.IsFinishmark() {
		w = wireElement{Kind: wireKindFinishmark}
	} else if wm, ok := e.IsWatermark(); ok {
		w = wireElement{Kind: wireKindWatermark, Timestamp: wm.Timestamp}
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&w); err != nil {
		return nil, fmt.Errorf("encode element: %w", err)
	}
	return buf.Bytes(), nil
}

func decodeElement(data []byte) (ir.Element, error) {
	var w wireElement
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&w); err != nil {
		return ir.Element{}, fmt.Errorf("decode element: %w", err)
	}
	switch w.Kind {
	case wireKindFinishmark:
		return ir.Finishmark, nil
	case wireKindWatermark:
		return ir.NewWatermarkElement(ir.Watermark{Timestamp: w.Timestamp}), nil
	default:
		return ir.NewElement(w.Payload), nil
	}
}

// natsDataTransferFactory builds readers/writers over a shared NATS
// connection, one subject per (task, vertex) pair.
type natsDataTransferFactory struct {
	nc *nats.Conn
}

// NewNATSDataTransferFactory adapts an established NATS connection into a
// DataTransferFactory.
func NewNATSDataTransferFactory(nc *nats.Conn) DataTransferFactory {
	return &natsDataTransferFactory{nc: nc}
}

func readerSubject(taskIndex int, srcVertex string) string {
	return fmt.Sprintf("taskexec.edge.%s.%d", srcVertex, taskIndex)
}

func writerSubject(taskID, dstVertex string) string {
	return fmt.Sprintf("taskexec.edge.%s.%s", dstVertex, taskID)
}

func (f *natsDataTransferFactory) CreateReader(taskIndex int, srcVertex string, edge ir.StageEdge) (InputReader, error) {
	r := &natsInputReader{srcVertex: srcVertex, queue: make(chan ir.Element, 256), errs: make(chan error, 1)}
	sub, err := subscribeWithTrace(f.nc, readerSubject(taskIndex, srcVertex), func(ctx context.Context, msg *nats.Msg) {
		elem, err := decodeElement(msg.Data)
		if err != nil {
			select {
			case r.errs <- err:
			default:
			}
			return
		}
		atomic.AddInt64(&r.serializedBytes, int64(len(msg.Data)))
		atomic.AddInt64(&r.encodedBytes, int64(len(msg.Data)))
		r.queue <- elem
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe reader for edge %s->%s: %w", edge.Src, edge.Dst, err)
	}
	r.sub = sub
	return r, nil
}

func (f *natsDataTransferFactory) CreateWriter(taskID string, dstVertex string, edge ir.StageEdge) (OutputWriter, error) {
	return &natsOutputWriter{
		nc:      f.nc,
		subject: writerSubject(taskID, dstVertex),
	}, nil
}

func subscribeWithTrace(nc *nats.Conn, subject string, handler func(context.Context, *nats.Msg)) (*nats.Subscription, error) {
	return nc.Subscribe(subject, func(m *nats.Msg) {
		carrier := propagation.HeaderCarrier(m.Header)
		ctx := propagator.Extract(context.Background(), carrier)
		tr := otel.Tracer("taskexecutor-transfer")
		ctx, span := tr.Start(ctx, "edge.consume", trace.WithSpanKind(trace.SpanKindConsumer))
		defer span.End()
		handler(ctx, m)
	})
}

func publishWithTrace(ctx context.Context, nc *nats.Conn, subject string, data []byte) error {
	hdr := nats.Header{}
	propagator.Inject(ctx, propagation.HeaderCarrier(hdr))
	return nc.PublishMsg(&nats.Msg{Subject: subject, Data: data, Header: hdr})
}

type natsInputReader struct {
	srcVertex string
	sub       *nats.Subscription
	queue     chan ir.Element
	errs      chan error

	serializedBytes int64
	encodedBytes    int64
}

func (r *natsInputReader) SrcVertex() string { return r.srcVertex }

func (r *natsInputReader) Fetch(ctx context.Context) (ir.Element, error) {
	select {
	case elem := <-r.queue:
		return elem, nil
	case err := <-r.errs:
		return ir.Element{}, err
	default:
		return ir.Element{}, ir.ErrEmpty
	}
}

func (r *natsInputReader) SerializedBytes() int64 { return atomic.LoadInt64(&r.serializedBytes) }
func (r *natsInputReader) EncodedBytes() int64    { return atomic.LoadInt64(&r.encodedBytes) }

func (r *natsInputReader) Close() error {
	if r.sub == nil {
		return nil
	}
	return r.sub.Unsubscribe()
}

// ErrEmpty re-exports ir.ErrEmpty for callers that only import transfer.
var ErrEmpty = ir.ErrEmpty

type natsOutputWriter struct {
	nc      *nats.Conn
	subject string

	mu           sync.Mutex
	writtenBytes uint64
	hasWritten   bool
}

func (w *natsOutputWriter) Write(ctx context.Context, element ir.Element) error {
	data, err := encodeElement(element)
	if err != nil {
		return err
	}
	if err := publishWithTrace(ctx, w.nc, w.subject, data); err != nil {
		return fmt.Errorf("publish to %s: %w", w.subject, err)
	}
	w.mu.Lock()
	w.writtenBytes += uint64(len(data))
	w.hasWritten = true
	w.mu.Unlock()
	return nil
}

func (w *natsOutputWriter) Close() error {
	return w.nc.FlushTimeout(5 * time.Second)
}

func (w *natsOutputWriter) WrittenBytes() (uint64, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.writtenBytes, w.hasWritten
}
