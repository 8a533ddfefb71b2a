package collector

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"heatvision-agent/internal/capture"
	"heatvision-agent/internal/metrics"
	"heatvision-agent/internal/model"
	"heatvision-agent/internal/ocr"
)

// Extractor turns one verified capture into the screen's extracted values.
// Recognition runs on a bounded worker pool; results are rejoined in field
// order so the aggregator sees a deterministic batch.
type Extractor struct {
	engine  ocr.Engine
	lang    string
	workers int
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewExtractor(engine ocr.Engine, lang string, workers int, logger *slog.Logger, m *metrics.Metrics) *Extractor {
	if workers <= 0 {
		workers = 2
	}
	return &Extractor{engine: engine, lang: lang, workers: workers, logger: logger, metrics: m}
}

// Extract recognizes and validates every field of the screen. Fields fail
// independently: a garbled region yields a nil-valued entry for that field
// only.
func (e *Extractor) Extract(ctx context.Context, cap model.RawCapture, layout model.ScreenLayout) []model.ExtractedValue {
	results := make([][]model.ExtractedValue, len(layout.Fields))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i, def := range layout.Fields {
		g.Go(func() error {
			results[i] = e.extractField(gctx, cap, def)
			return nil
		})
	}
	_ = g.Wait()

	var out []model.ExtractedValue
	for _, vals := range results {
		out = append(out, vals...)
	}
	return out
}

func (e *Extractor) extractField(ctx context.Context, cap model.RawCapture, def model.FieldDefinition) []model.ExtractedValue {
	region, err := capture.Prepare(cap.Image, def)
	if err != nil {
		e.logger.Warn("region preparation failed", "field", def.Name, "error", err)
		return []model.ExtractedValue{{Field: def.Name, At: cap.At}}
	}

	raw, err := e.engine.Recognize(ctx, region, e.lang, def.PSM)
	if err != nil {
		e.logger.Warn("recognition failed", "field", def.Name, "error", err)
		raw = ""
	}

	vals, errs := ocr.Normalize(def, raw, cap.At)
	for _, perr := range errs {
		e.logger.Debug("recognition rejected", "screen", layoutID(cap), "error", perr)
		e.metrics.ParseErrorsTotal.Inc()
	}
	return vals
}

func layoutID(cap model.RawCapture) string {
	if cap.Screen == "" {
		return "unknown"
	}
	return cap.Screen
}
