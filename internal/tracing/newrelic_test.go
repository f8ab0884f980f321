package tracing

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/backstage/services/drafts/config"
)

func TestDisabledTracerIsNoop(t *testing.T) {
	tracer, err := NewTracer(config.TracingConfig{AppName: "drafts"})
	require.NoError(t, err)

	assert.Nil(t, tracer.Application())
	txn := tracer.StartTransaction("submit")
	assert.Nil(t, txn)

	assert.NotPanics(t, func() {
		tracer.AddAttribute(txn, "program_id", 1)
		tracer.RecordError(txn, errors.New("boom"))
		tracer.EndTransaction(txn)
		tracer.Close()
	})
}

func TestSegmentWithoutTransaction(t *testing.T) {
	assert.NotPanics(t, func() {
		Segment(context.Background(), "drafts.submit").End()
	})
}
