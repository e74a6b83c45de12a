package extract

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/medx/lab-extractor/internal/config"
	"github.com/medx/lab-extractor/internal/ingest"
	"github.com/medx/lab-extractor/internal/reports"
)

// Options configures pipeline behavior.
type Options struct {
	// Models is the ordered fallback list; the first to return a result wins.
	Models []string

	// MaxAttempts bounds tries per model; only transient failures retry.
	MaxAttempts int

	// BaseDelay is the linear backoff unit: attempt n waits n × BaseDelay.
	BaseDelay time.Duration

	// RelevanceCheck enables the preliminary yes/no relevance call.
	RelevanceCheck bool

	// Sleep overrides the retry delay function; nil uses a context-aware timer.
	Sleep func(context.Context, time.Duration)
}

// OptionsFromConfig builds pipeline options from the Gemini configuration.
func OptionsFromConfig(cfg *config.GeminiConfig) Options {
	return Options{
		Models:         cfg.Models,
		MaxAttempts:    cfg.MaxAttempts,
		BaseDelay:      cfg.BaseDelayDuration(),
		RelevanceCheck: cfg.RelevanceCheck,
	}
}

// Pipeline orchestrates one extraction request: validate, extract with
// model fallback and retry, normalize, persist when an identity is
// present, respond. Attempts are strictly sequential; nothing is raced.
type Pipeline struct {
	capability Capability
	store      reports.System
	schema     *Schema
	logger     *slog.Logger
	opts       Options
}

// NewPipeline creates a pipeline. store may be nil when persistence is not
// deployed; results are then never written anywhere.
func NewPipeline(capability Capability, store reports.System, schema *Schema, logger *slog.Logger, opts Options) *Pipeline {
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	if opts.Sleep == nil {
		opts.Sleep = sleepContext
	}
	return &Pipeline{
		capability: capability,
		store:      store,
		schema:     schema,
		logger:     logger.With("system", "pipeline"),
		opts:       opts,
	}
}

// Run processes one upload. userID is the opaque client identity; empty
// means no persistence. The returned error is always one of the classified
// pipeline failures, mapped to a status by MapHTTPStatus; internal detail
// never leaks past the error message.
func (p *Pipeline) Run(ctx context.Context, up *ingest.Upload, userID string, meta reports.Metadata) (*Result, error) {
	if err := up.Validate(); err != nil {
		return nil, err
	}

	doc, err := up.Payload()
	if err != nil {
		return nil, fmt.Errorf("prepare document: %w", err)
	}

	if p.opts.RelevanceCheck {
		relevant, err := p.capability.CheckRelevance(ctx, p.opts.Models[0], doc)
		if err != nil {
			// Permissive on failure: extraction itself carries the
			// stronger validity signal.
			p.logger.Warn("relevance check failed, proceeding", "error", err)
		} else if !relevant {
			return nil, ErrNotLabReport
		}
	}

	result, err := p.extract(ctx, doc)
	if err != nil {
		return nil, err
	}

	if len(result.Results) == 0 {
		// Sentinel-empty-result: absence of signal is indistinguishable
		// from "not a lab report".
		return nil, ErrNotLabReport
	}

	result.Normalize(p.schema)

	if userID != "" && p.store != nil {
		p.persist(ctx, userID, result, meta)
	}

	return result, nil
}

func (p *Pipeline) extract(ctx context.Context, doc ingest.Payload) (*Result, error) {
	for _, model := range p.opts.Models {
		result, err := p.tryModel(ctx, model, doc)
		if err == nil {
			return result, nil
		}
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", ErrExhausted, ctx.Err())
		}
		p.logger.Warn("model failed, escalating", "model", model, "error", err)
	}

	return nil, ErrExhausted
}

func (p *Pipeline) tryModel(ctx context.Context, model string, doc ingest.Payload) (*Result, error) {
	var lastErr error

	for attempt := 1; attempt <= p.opts.MaxAttempts; attempt++ {
		result, err := p.capability.Extract(ctx, model, doc)
		if err == nil {
			p.logger.Info("extraction succeeded", "model", model, "attempt", attempt)
			return result, nil
		}
		lastErr = err

		if !transient(err) {
			if permanent(err) {
				p.logger.Warn("permanent capability error", "model", model, "attempt", attempt, "error", err)
			}
			break
		}

		if attempt < p.opts.MaxAttempts {
			delay := time.Duration(attempt) * p.opts.BaseDelay
			p.logger.Warn("transient capability error, retrying",
				"model", model, "attempt", attempt, "delay", delay.String(), "error", err)
			p.opts.Sleep(ctx, delay)
		}
	}

	return nil, lastErr
}

// persist files the report and swallows any failure: user-visible success
// must not depend on storage health. The write uses a detached context so
// a dropped client connection cannot abort a completed extraction's save.
func (p *Pipeline) persist(ctx context.Context, userID string, result *Result, meta reports.Metadata) {
	report, err := p.store.Append(context.WithoutCancel(ctx), userID, result.Results, meta)
	if err != nil {
		p.logger.Error("report save failed", "user_id", userID, "error", err)
		return
	}
	p.logger.Info("report saved", "user_id", userID, "report_id", report.ID)
}

func sleepContext(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
