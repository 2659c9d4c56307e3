package drug_extractor

import (
	"context"
	"time"

	"github.com/turtacn/livecare/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/livecare/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/livecare/internal/infrastructure/opendata"
	"github.com/turtacn/livecare/internal/intelligence/common"
)

// RegistryLookup abstracts the pill identification registry.
// *opendata.GrainService satisfies it.
type RegistryLookup interface {
	Lookup(ctx context.Context, term string) (string, []opendata.Item)
}

// Match is the registry answer for one dispatched term.
type Match struct {
	Term     string          `json:"term"`
	Resolved string          `json:"resolved_term"`
	ItemName string          `json:"item_name,omitempty"`
	Items    []opendata.Item `json:"-"`
}

// Resolution is the full trace of one text resolution.
type Resolution struct {
	Candidates []string `json:"candidates"`
	Terms      []string `json:"terms"`
	Matches    []Match  `json:"matches"`
	ItemNames  []string `json:"item_names"`
}

// Resolver maps free text to registry item names.
type Resolver struct {
	lookup      RegistryLookup
	logger      logging.Logger
	metrics     *prometheus.PipelineMetrics
	concurrency int
	unitTimeout time.Duration
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

func WithConcurrency(n int) ResolverOption {
	return func(r *Resolver) { r.concurrency = n }
}

func WithUnitTimeout(d time.Duration) ResolverOption {
	return func(r *Resolver) { r.unitTimeout = d }
}

func WithMetrics(m *prometheus.PipelineMetrics) ResolverOption {
	return func(r *Resolver) { r.metrics = m }
}

// NewResolver returns a Resolver backed by lookup.
func NewResolver(lookup RegistryLookup, logger logging.Logger, opts ...ResolverOption) *Resolver {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	r := &Resolver{
		lookup:      lookup,
		logger:      logger.Named("resolver"),
		concurrency: common.DefaultConcurrency,
		unitTimeout: common.DefaultUnitTimeout,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Resolve extracts candidates from text, looks every dispatch term up
// concurrently and collects the resolved item names. A term whose lookup
// fails or finds nothing contributes no name. Empty text makes no calls.
func (r *Resolver) Resolve(ctx context.Context, text string) *Resolution {
	candidates := ExtractCandidates(text)
	terms := DispatchTerms(candidates)
	r.metrics.RecordCandidates(len(candidates))

	res := &Resolution{
		Candidates: candidates,
		Terms:      terms,
		Matches:    []Match{},
		ItemNames:  []string{},
	}
	if len(terms) == 0 {
		return res
	}

	results := common.Run(ctx, terms, func(ctx context.Context, term string) (Match, error) {
		resolved, items := r.lookup.Lookup(ctx, term)
		m := Match{Term: term, Resolved: resolved, Items: items}
		if len(items) > 0 {
			m.ItemName = items[0].ItemName()
		}
		return m, nil
	},
		common.WithStage("resolve"),
		common.WithConcurrency(r.concurrency),
		common.WithUnitTimeout(r.unitTimeout),
		common.WithLogger(r.logger),
		common.WithMetrics(r.metrics),
	)

	seen := make(map[string]struct{}, len(results))
	for i, slot := range results {
		if !slot.OK() {
			r.logger.Warn("registry lookup abandoned", logging.String("term", terms[i]), logging.Err(slot.Err))
			res.Matches = append(res.Matches, Match{Term: terms[i], Resolved: terms[i]})
			continue
		}
		m := slot.Value
		res.Matches = append(res.Matches, m)
		if m.ItemName == "" {
			continue
		}
		if _, dup := seen[m.ItemName]; dup {
			continue
		}
		seen[m.ItemName] = struct{}{}
		res.ItemNames = append(res.ItemNames, m.ItemName)
	}

	r.logger.Info("resolved item names",
		logging.Int("candidates", len(candidates)),
		logging.Int("terms", len(terms)),
		logging.Strings("item_names", res.ItemNames))
	return res
}

// ResolveItemNames is Resolve reduced to the deduplicated item names, in
// term order.
func (r *Resolver) ResolveItemNames(ctx context.Context, text string) []string {
	return r.Resolve(ctx, text).ItemNames
}
