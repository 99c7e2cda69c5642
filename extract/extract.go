// Package extract turns document units into structured JSON with the LLM
// gateway, one independent call per unit.
package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/brunobiangulo/aiworkflows/chunker"
	"github.com/brunobiangulo/aiworkflows/llm"
)

// ErrAllUnitsFailed is returned when no unit of a batch produced a result.
var ErrAllUnitsFailed = errors.New("aiworkflows: every unit failed")

// defaultConcurrency is the default number of units in flight.
const defaultConcurrency = 4

// Gateway is the part of llm.Gateway the extractor uses.
type Gateway interface {
	GetJSONResponse(ctx context.Context, req llm.JSONRequest) (*llm.JSONResponse, error)
}

// Config controls an Extractor.
type Config struct {
	Concurrency int    // units processed at once
	Schema      string // optional JSON Schema every unit's answer must satisfy
}

// Extractor runs per-unit JSON extraction with bounded concurrency.
type Extractor struct {
	gw  Gateway
	cfg Config
}

// New returns an Extractor calling gw.
func New(gw Gateway, cfg Config) *Extractor {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	return &Extractor{gw: gw, cfg: cfg}
}

// Extract sends every unit to the gateway with a prompt built from spec and
// returns one Entry per unit in ordinal order.
//
// A unit that fails after the gateway's retries is recorded in its Entry
// and the others continue. If every unit fails the error wraps
// ErrAllUnitsFailed. Cancelling ctx stops units that have not started;
// calls already in flight run to the gateway's own timeout.
func (x *Extractor) Extract(ctx context.Context, units []chunker.Unit, spec Spec) (*Result, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	res := &Result{Entries: make([]Entry, len(units))}
	if len(units) == 0 {
		return res, nil
	}

	slog.Info("extract: processing units", "total", len(units), "concurrency", x.cfg.Concurrency)
	start := time.Now()

	var (
		g      errgroup.Group
		failed atomic.Int32
	)
	g.SetLimit(x.cfg.Concurrency)

	for i, u := range units {
		res.Entries[i] = Entry{Ordinal: u.Ordinal, Page: u.Page}
		if ctx.Err() != nil {
			res.Entries[i].Err = ctx.Err()
			failed.Add(1)
			continue
		}
		g.Go(func() error {
			e := &res.Entries[i]
			if err := ctx.Err(); err != nil {
				e.Err = err
				failed.Add(1)
				return nil
			}

			resp, err := x.gw.GetJSONResponse(context.WithoutCancel(ctx), x.request(u, spec))
			if resp != nil {
				e.Raw = resp.Raw
				e.Retries = resp.Retries
			}
			if err != nil {
				e.Err = err
				failed.Add(1)
				slog.Warn("extract: unit failed", "unit", u.Ordinal, "page", u.Page, "error", err)
				return nil
			}
			e.Object = resp.Object
			slog.Debug("extract: unit processed", "unit", u.Ordinal, "retries", resp.Retries)
			return nil
		})
	}
	g.Wait()

	n := int(failed.Load())
	if n == len(units) {
		return res, fmt.Errorf("%w: all %d units failed; first error: %v", ErrAllUnitsFailed, n, res.Errors()[0].Err)
	}
	if err := ctx.Err(); err != nil {
		return res, err
	}
	if n > 0 {
		slog.Warn("extract: completed with failures",
			"succeeded", len(units)-n, "failed", n, "total", len(units), "elapsed", time.Since(start))
	} else {
		slog.Info("extract: completed", "units", len(units), "elapsed", time.Since(start))
	}
	return res, nil
}

func (x *Extractor) request(u chunker.Unit, spec Spec) llm.JSONRequest {
	req := llm.JSONRequest{Validation: spec.OutputSpec, Schema: x.cfg.Schema}
	if u.IsImage() {
		req.Prompt = PagePrompt(spec)
		req.Images = []llm.Image{{MIMEType: u.MIMEType, Data: u.Image}}
		return req
	}
	req.Prompt = MarkdownPrompt(spec, u.Text, u.Context)
	return req
}
