package pipeline

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

type metrics struct {
	framesCaptured metric.Int64Counter
	framesDropped  metric.Int64Counter
	readErrors     metric.Int64Counter
	candidates     metric.Int64Counter
	accepted       metric.Int64Counter
	debounced      metric.Int64Counter
	spoken         metric.Int64Counter
	speechFailures metric.Int64Counter
}

func newMetrics() (*metrics, error) {
	meter := otel.Meter("github.com/visperlabs/visper-core/pipeline")

	m := &metrics{}
	var err error
	if m.framesCaptured, err = meter.Int64Counter("visper.frames.captured",
		metric.WithDescription("Frames handed to recognition")); err != nil {
		return nil, err
	}
	if m.framesDropped, err = meter.Int64Counter("visper.frames.dropped",
		metric.WithDescription("Unread frames overwritten in the slot")); err != nil {
		return nil, err
	}
	if m.readErrors, err = meter.Int64Counter("visper.frames.read_errors",
		metric.WithDescription("Transient frame read failures")); err != nil {
		return nil, err
	}
	if m.candidates, err = meter.Int64Counter("visper.ocr.candidates",
		metric.WithDescription("Plausible candidates produced by backends")); err != nil {
		return nil, err
	}
	if m.accepted, err = meter.Int64Counter("visper.ocr.accepted",
		metric.WithDescription("Detections accepted after fusion and debounce")); err != nil {
		return nil, err
	}
	if m.debounced, err = meter.Int64Counter("visper.ocr.debounced",
		metric.WithDescription("Detections suppressed by the debounce window")); err != nil {
		return nil, err
	}
	if m.spoken, err = meter.Int64Counter("visper.speech.spoken",
		metric.WithDescription("Utterances spoken")); err != nil {
		return nil, err
	}
	if m.speechFailures, err = meter.Int64Counter("visper.speech.failures",
		metric.WithDescription("Utterances dropped after all backends failed")); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *metrics) add(counter metric.Int64Counter, n int64) {
	if m == nil || counter == nil {
		return
	}
	counter.Add(context.Background(), n)
}
