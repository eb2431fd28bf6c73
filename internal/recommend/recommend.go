// Package recommend turns the methods already used on a receiver into
// ranked method proposals.
package recommend

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"callrec/internal/slogutil"
	"callrec/internal/store"
)

// Defaults for Options.
const (
	DefaultMinProbability = 0.1
	DefaultMaxProposals   = 10

	// NoThreshold as Options.MinProbability keeps every proposal.
	NoThreshold = -1.0
)

// Evidence describes what the code under edit already does with a receiver.
type Evidence interface {
	// OverriddenMethods returns methods the enclosing class overrides.
	OverriddenMethods() []string
	// InvokedMethods returns methods already called on the receiver.
	InvokedMethods() []string
}

// Source hands out models. *store.Store implements it.
type Source interface {
	TryAcquire(ctx context.Context, key store.LookupKey) (*store.Borrowed, bool)
	Release(b *store.Borrowed) error
}

// Proposal is one recommended method.
type Proposal struct {
	Method      string  `json:"method"`
	Probability float64 `json:"probability"`
}

// Percent renders the probability as a whole percentage, e.g. "83%".
func (p Proposal) Percent() string {
	return fmt.Sprintf("%d%%", int(math.Round(p.Probability*100)))
}

// Options configures a Recommender.
type Options struct {
	// MinProbability drops proposals below it. Zero means
	// DefaultMinProbability; NoThreshold disables the cutoff.
	MinProbability float64
	// MaxProposals caps the result (default DefaultMaxProposals).
	MaxProposals int
	Logger       *slog.Logger
}

// Recommender produces proposals from pooled models.
type Recommender struct {
	source Source
	opts   Options
}

// New creates a Recommender.
func New(source Source, opts Options) *Recommender {
	if opts.MinProbability == 0 {
		opts.MinProbability = DefaultMinProbability
	}
	if opts.MaxProposals <= 0 {
		opts.MaxProposals = DefaultMaxProposals
	}
	if opts.Logger == nil {
		opts.Logger = slogutil.NewDiscardLogger()
	}
	return &Recommender{source: source, opts: opts}
}

// Recommend proposes methods for key given ev. Having no model is not an
// error: the result is then empty.
func (r *Recommender) Recommend(ctx context.Context, key store.LookupKey, ev Evidence) ([]Proposal, error) {
	b, ok := r.source.TryAcquire(ctx, key)
	if !ok {
		return []Proposal{}, nil
	}
	defer func() {
		if err := r.source.Release(b); err != nil {
			r.opts.Logger.Warn("Failed to release model", "key", key.String(), "error", err.Error())
		}
	}()

	m, err := b.Model()
	if err != nil {
		return nil, err
	}

	if ev != nil {
		m.SetObservedMethods(ev.OverriddenMethods())
		m.SetObservedMethods(ev.InvokedMethods())
	}

	recs := m.Recommend()
	proposals := make([]Proposal, 0, r.opts.MaxProposals)
	for _, rec := range recs {
		if rec.Probability < r.opts.MinProbability {
			// Sorted descending; nothing after this qualifies.
			break
		}
		proposals = append(proposals, Proposal{Method: rec.Method, Probability: rec.Probability})
		if len(proposals) == r.opts.MaxProposals {
			break
		}
	}

	r.opts.Logger.Debug("Computed proposals",
		"key", key.String(),
		"evidence", len(m.Evidence()),
		"candidates", len(recs),
		"proposals", len(proposals),
	)
	return proposals, nil
}

// StaticEvidence is Evidence backed by plain slices.
type StaticEvidence struct {
	Overridden []string `json:"overridden,omitempty" yaml:"overridden,omitempty"`
	Invoked    []string `json:"invoked,omitempty" yaml:"invoked,omitempty"`
}

func (e StaticEvidence) OverriddenMethods() []string { return e.Overridden }
func (e StaticEvidence) InvokedMethods() []string    { return e.Invoked }
