// Copyright © 2018 The ELPS authors

package status

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opencensus.io/stats/view"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestKindStrings(t *testing.T) {
	used := make(map[string]bool)
	for _, k := range Kinds() {
		s := k.String()
		assert.NotEmpty(t, s, "kind %d", k)
		assert.False(t, used[s], "kind string used twice: %s", s)
		used[s] = true
	}
	assert.Equal(t, "Unknown", Kind(-1).String())
	assert.False(t, CompilingEvaluatorFailed.Fatal())
	assert.True(t, CannotFindVariable.Fatal())
}

func TestStatusWriteOnce(t *testing.T) {
	s := New("Kotlin")
	assert.Equal(t, Success, s.Kind())
	assert.True(t, s.Fail(CannotFindVariable, errors.New("first")))
	assert.False(t, s.Fail(GenericException, errors.New("second")))
	assert.Equal(t, CannotFindVariable, s.Kind())
	assert.EqualError(t, s.Err(), "first")

	s.Mark(CompilingEvaluatorFailed)
	s.Mark(CompilingEvaluatorFailed)
	assert.True(t, s.Marked(CompilingEvaluatorFailed))
	assert.Equal(t, CannotFindVariable, s.Kind(), "markers do not change the outcome")
}

type countingReporter struct {
	reports []*Report
}

func (c *countingReporter) Report(ctx context.Context, r *Report) {
	c.reports = append(c.reports, r)
}

func TestStatusSendOnce(t *testing.T) {
	s := New("Kotlin")
	s.SetBackend(BackendInterpretation)
	s.Mark(CompilingEvaluatorFailed)
	r := &countingReporter{}
	s.Send(context.Background(), r)
	s.Send(context.Background(), r)
	require.Len(t, r.reports, 1)
	rep := r.reports[0]
	assert.Equal(t, s.ID(), rep.ID)
	assert.Equal(t, Success, rep.Kind)
	assert.Equal(t, BackendInterpretation, rep.Backend)
	assert.Equal(t, "Kotlin", rep.Language)
	assert.Equal(t, []Kind{CompilingEvaluatorFailed}, rep.Markers)
}

func TestErrorKind(t *testing.T) {
	err := Errorf(CannotFindVariable, "Cannot find local variable '%s'", "x")
	wrapped := fmt.Errorf("evaluate: %w", err)
	assert.Equal(t, CannotFindVariable, KindOf(wrapped))
	assert.True(t, errors.Is(wrapped, &Error{Kind: CannotFindVariable}))
	assert.False(t, errors.Is(wrapped, &Error{Kind: ErrorsInCode}))
	assert.Equal(t, GenericException, KindOf(errors.New("boom")))
	assert.Equal(t, Success, KindOf(nil))

	cause := errors.New("no such class")
	werr := Wrap(BackendException, cause, "compilation failed")
	assert.ErrorIs(t, werr, cause)
	assert.EqualError(t, werr, "compilation failed: no such class")
}

func TestLogReporter(t *testing.T) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	r := &LogReporter{Log: logrus.NewEntry(logger)}

	s := New("Kotlin")
	s.Fail(ThreadNotSuspended, errors.New("thread is running"))
	s.Send(context.Background(), r)
	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.WarnLevel, entry.Level)
	assert.Equal(t, "ThreadNotSuspended", entry.Data["kind"])
	assert.Equal(t, "none", entry.Data["backend"])

	s = New("Kotlin")
	s.SetBackend(BackendInjection)
	s.Send(context.Background(), r)
	entry = hook.LastEntry()
	assert.Equal(t, logrus.DebugLevel, entry.Level)
	assert.Equal(t, "injection", entry.Data["backend"])
}

func TestCensusReporter(t *testing.T) {
	r, err := NewCensusReporter()
	require.NoError(t, err)
	t.Cleanup(func() { view.Unregister(EvaluationsView, LatencyView) })

	for i := 0; i < 2; i++ {
		s := New("Kotlin")
		s.SetBackend(BackendInterpretation)
		s.Send(context.Background(), r)
	}
	rows, err := view.RetrieveData(EvaluationsView.Name)
	require.NoError(t, err)
	var total int64
	for _, row := range rows {
		count, ok := row.Data.(*view.CountData)
		require.True(t, ok)
		total += count.Value
	}
	assert.Equal(t, int64(2), total)
}

func TestTraceReporter(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSyncer(exporter),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	t.Cleanup(func() {
		assert.NoError(t, tp.Shutdown(context.Background()))
	})
	ctx, span := tp.Tracer("test").Start(context.Background(), "evaluate")
	s := New("Kotlin")
	s.Fail(ErrorsInCode, errors.New("type mismatch"))
	s.Send(ctx, Reporters{TraceReporter{}})
	span.End()

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	var kind string
	for _, attr := range spans[0].Attributes {
		if attr.Key == "fragmenteval.kind" {
			kind = attr.Value.AsString()
		}
	}
	assert.Equal(t, "ErrorsInCode", kind)
	assert.Equal(t, "Error", spans[0].Status.Code.String())
}
