// Copyright © 2018 The ELPS authors

package status

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"
	"go.opencensus.io/stats"
	"go.opencensus.io/stats/view"
	"go.opencensus.io/tag"
	octrace "go.opencensus.io/trace"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Reporters fans a report out to several reporters in order.
type Reporters []Reporter

func (rs Reporters) Report(ctx context.Context, r *Report) {
	for _, reporter := range rs {
		reporter.Report(ctx, r)
	}
}

// LogReporter logs reports.  Failed evaluations are logged at warning level.
type LogReporter struct {
	Log *logrus.Entry
}

func (l *LogReporter) Report(ctx context.Context, r *Report) {
	log := l.Log
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	entry := log.WithFields(logrus.Fields{
		"evaluation": r.ID.String(),
		"kind":       r.Kind.String(),
		"backend":    backendTag(r.Backend),
		"language":   r.Language,
		"duration":   r.Duration,
	})
	if len(r.Markers) > 0 {
		entry = entry.WithField("markers", markerString(r.Markers))
	}
	if r.Kind.Fatal() {
		entry.WithError(r.Err).Warn("evaluation failed")
		return
	}
	entry.Debug("evaluation succeeded")
}

// Tag keys and measures recorded by CensusReporter.
var (
	KeyKind    = tag.MustNewKey("kind")
	KeyBackend = tag.MustNewKey("backend")

	MeasureEvaluations = stats.Int64("fragmenteval/evaluations", "Number of fragment evaluations", stats.UnitDimensionless)
	MeasureLatency     = stats.Float64("fragmenteval/latency", "Duration of fragment evaluations", stats.UnitMilliseconds)

	EvaluationsView = &view.View{
		Name:        "fragmenteval/evaluations",
		Measure:     MeasureEvaluations,
		Description: "Count of fragment evaluations by outcome",
		Aggregation: view.Count(),
		TagKeys:     []tag.Key{KeyKind, KeyBackend},
	}
	LatencyView = &view.View{
		Name:        "fragmenteval/latency",
		Measure:     MeasureLatency,
		Description: "Distribution of fragment evaluation latency",
		Aggregation: view.Distribution(1, 5, 10, 50, 100, 500, 1000, 5000),
		TagKeys:     []tag.Key{KeyBackend},
	}
)

// CensusReporter records reports as OpenCensus stats and annotates the
// OpenCensus span found in the report context, if any.
type CensusReporter struct{}

// NewCensusReporter registers the evaluation views and returns a reporter.
func NewCensusReporter() (*CensusReporter, error) {
	if err := view.Register(EvaluationsView, LatencyView); err != nil {
		return nil, err
	}
	return &CensusReporter{}, nil
}

func (*CensusReporter) Report(ctx context.Context, r *Report) {
	mutators := []tag.Mutator{
		tag.Upsert(KeyKind, r.Kind.String()),
		tag.Upsert(KeyBackend, backendTag(r.Backend)),
	}
	ms := float64(r.Duration.Microseconds()) / 1000
	_ = stats.RecordWithTags(ctx, mutators, MeasureEvaluations.M(1), MeasureLatency.M(ms))
	if span := octrace.FromContext(ctx); span != nil {
		span.Annotate([]octrace.Attribute{
			octrace.StringAttribute("kind", r.Kind.String()),
			octrace.StringAttribute("backend", backendTag(r.Backend)),
		}, "evaluation")
	}
}

// TraceReporter attaches reports to the OpenTelemetry span found in the
// report context.
type TraceReporter struct{}

func (TraceReporter) Report(ctx context.Context, r *Report) {
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("fragmenteval.id", r.ID.String()),
		attribute.String("fragmenteval.kind", r.Kind.String()),
		attribute.String("fragmenteval.backend", backendTag(r.Backend)),
		attribute.String("fragmenteval.language", r.Language),
	}
	if len(r.Markers) > 0 {
		attrs = append(attrs, attribute.String("fragmenteval.markers", markerString(r.Markers)))
	}
	span.SetAttributes(attrs...)
	if r.Kind.Fatal() {
		if r.Err != nil {
			span.RecordError(r.Err)
		}
		span.SetStatus(codes.Error, r.Kind.String())
	}
}

func backendTag(b Backend) string {
	if b == BackendNone {
		return "none"
	}
	return string(b)
}

func markerString(markers []Kind) string {
	names := make([]string, len(markers))
	for i, k := range markers {
		names[i] = k.String()
	}
	return strings.Join(names, ",")
}
