package telemetry

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/attribute"
)

type digest string

func (d digest) String() string { return "0x" + string(d) }

func TestNilTracerProvider(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	provider := NewNilTracerProvider(ctx)
	tracer := provider.NewTracer("replay")

	span := tracer.Start("replay")
	span.SetAttributes(map[string]interface{}{"digest": "abc", "ok": true})
	span.RecordError(errors.New("boom"))
	span.Fail(errors.New("boom"))
	span.SetStatus(Error, "boom")
	span.End()

	assert.Equal(t, ctx, span.Context())

	child := tracer.StartWithContext(span.Context(), "attempt")
	assert.Equal(t, ctx, child.Context())
	assert.NoError(t, provider.Shutdown(ctx))
}

func TestConvertTypeToAttribute(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "x", convertTypeToAttribute("x").AsString())
	assert.Equal(t, int64(7), convertTypeToAttribute(uint64(7)).AsInt64())
	assert.Equal(t, "18446744073709551615", convertTypeToAttribute(uint64(math.MaxUint64)).AsString())
	assert.True(t, convertTypeToAttribute(true).AsBool())
	assert.Equal(t, "0xab", convertTypeToAttribute(digest("ab")).AsString())
	assert.Equal(t, "[1 2]", convertTypeToAttribute([]int{1, 2}).AsString())
}

func TestToKeyValuesSorted(t *testing.T) {
	t.Parallel()

	kvs := toKeyValues(map[string]interface{}{"b": 1, "a": "x"})

	assert.Equal(t, []attribute.KeyValue{
		attribute.String("a", "x"),
		attribute.Int("b", 1),
	}, kvs)
}
