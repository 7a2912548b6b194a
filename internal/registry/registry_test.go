package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/swarmguard/taskexecutor/internal/ir"
)

func TestBuiltinTransformsRegistered(t *testing.T) {
	r := New()
	tr, err := r.Transform("identity", nil)
	require.NoError(t, err)
	require.NotNil(t, tr)

	_, err = r.Transform("does-not-exist", nil)
	require.Error(t, err)
}

func TestCountTransformEmitsOnClose(t *testing.T) {
	r := New()
	tr, err := r.Transform("count", nil)
	require.NoError(t, err)

	var emitted []ir.Element
	coll := collectorFunc{emit: func(e ir.Element) { emitted = append(emitted, e) }}
	tr.Prepare(context.Background(), &ir.TransformContext{}, coll)
	tr.OnData(ir.NewElement(1))
	tr.OnData(ir.NewElement(2))
	tr.Close()

	require.Len(t, emitted, 1)
	require.Equal(t, "2", emitted[0].Payload)
}

func TestStaticReadableReplaysThenFinishmark(t *testing.T) {
	r := New()
	readable, err := r.Readable("static", map[string]any{"elements": []any{"a", "b"}})
	require.NoError(t, err)

	e1, err := readable.Next()
	require.NoError(t, err)
	require.Equal(t, "a", e1.Payload)

	e2, err := readable.Next()
	require.NoError(t, err)
	require.Equal(t, "b", e2.Payload)

	e3, err := readable.Next()
	require.NoError(t, err)
	require.True(t, e3.IsFinishmark())
}

type collectorFunc struct {
	emit func(ir.Element)
}

func (c collectorFunc) Emit(e ir.Element)                  { c.emit(e) }
func (c collectorFunc) EmitTagged(tag string, e ir.Element) {}
func (c collectorFunc) EmitWatermark(w ir.Watermark)        {}
