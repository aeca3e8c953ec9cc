// Package planner implements the query-plan hook of spec.md §4.9: given a
// recognized `ORDER BY distance_<metric>(column, :query) LIMIT k [OFFSET o]`
// shape with an optional pre-filter, it decides between an index probe and
// a filter-then-rank fallback, or declines entirely when no index exists
// on the column. This is the SQL planner's top-k override hook named in
// spec.md §6.3 — the host's planner calls Plan in place of its default
// full-scan executor and only falls back to that executor on Decline.
//
// The pre-filter selectivity estimate itself is the host's job (it has the
// table's statistics); this package only consumes the estimate and applies
// the heuristic. The underlying boolean predicate algebra a host might use
// to build that estimate is adapted from the teacher's pkg/search/filter.go
// into Predicate/And/Or/Not below, for hosts that want a ready-made
// composable filter representation rather than rolling their own.
package planner

import (
	"context"

	"github.com/annexsearch/vecann/pkg/kernel"
	"github.com/annexsearch/vecann/pkg/registry"
	"github.com/annexsearch/vecann/pkg/vecerr"
)

// selectivityThreshold is the "estimated < 1% selectivity" heuristic named
// in spec.md §4.9 as an example choice; below this fraction of rows passing
// the pre-filter, probing the index and then checking the filter against
// each returned candidate wastes more work than scanning the filtered rows
// directly and ranking them.
const selectivityThreshold = 0.01

// DecisionKind is the plan the hook selected.
type DecisionKind int

const (
	// IndexProbe: query the vector index directly for the top k+offset
	// candidates; Decision.Candidates holds the already-ranked result.
	IndexProbe DecisionKind = iota
	// FilterThenRank: the pre-filter is selective enough that the host
	// should evaluate it first and rank the (small) surviving set itself
	// using the flat distance kernel, rather than probing the index.
	FilterThenRank
	// Decline: no index exists on the column; the host's default executor
	// should run its own full scan with the same distance kernel.
	Decline
)

func (k DecisionKind) String() string {
	switch k {
	case IndexProbe:
		return "index_probe"
	case FilterThenRank:
		return "filter_then_rank"
	case Decline:
		return "decline"
	default:
		return "unknown"
	}
}

// PreFilterEstimate carries the host's selectivity estimate for the WHERE
// clause accompanying a vector ORDER BY, if any.
type PreFilterEstimate struct {
	// Selectivity is the estimated fraction of rows (in [0,1]) that pass
	// the pre-filter. The host computes this from its own statistics;
	// Plan only consumes it.
	Selectivity float64
}

// Request describes a recognized query shape from spec.md §4.9.
type Request struct {
	Table  string
	Column string
	Metric kernel.Metric
	Query  []float32
	K      int
	Offset int

	// PreFilter is nil when the query has no WHERE clause.
	PreFilter *PreFilterEstimate
}

// Candidate is one ranked result from an index probe.
type Candidate struct {
	ID       uint64
	Distance float32
}

// Decision is the plan hook's output.
type Decision struct {
	Kind DecisionKind
	// Candidates holds the k results (after Offset has been applied) when
	// Kind == IndexProbe. Empty for FilterThenRank and Decline.
	Candidates []Candidate
}

// Planner resolves query-plan requests against a Registry of live indexes.
type Planner struct {
	reg *registry.Registry
}

// New creates a Planner bound to reg.
func New(reg *registry.Registry) *Planner {
	return &Planner{reg: reg}
}

// Plan implements the three-step resolution of spec.md §4.9: resolve the
// index, apply the selectivity heuristic, then probe or decline.
func (p *Planner) Plan(ctx context.Context, req Request) (*Decision, error) {
	key := registry.KeyFor(req.Table, req.Column)

	e, err := p.reg.GetOrLoad(key)
	if err != nil {
		return &Decision{Kind: Decline}, nil
	}

	if req.PreFilter != nil && req.PreFilter.Selectivity < selectivityThreshold {
		return &Decision{Kind: FilterThenRank}, nil
	}

	want := req.K + req.Offset
	if want <= 0 {
		return &Decision{Kind: IndexProbe}, nil
	}

	candidates, err := p.probe(ctx, e, req.Query, want)
	if err != nil {
		return nil, err
	}
	p.reg.MarkSearched(e)

	if req.Offset > 0 {
		if req.Offset >= len(candidates) {
			candidates = nil
		} else {
			candidates = candidates[req.Offset:]
		}
	}
	if len(candidates) > req.K {
		candidates = candidates[:req.K]
	}

	return &Decision{Kind: IndexProbe, Candidates: candidates}, nil
}

func (p *Planner) probe(ctx context.Context, e *registry.Entry, query []float32, want int) ([]Candidate, error) {
	kind, hnswIdx, flatIdx := e.Handle()
	switch kind {
	case registry.HNSW:
		result, err := hnswIdx.Search(ctx, query, want, 0)
		if err != nil {
			return nil, err
		}
		out := make([]Candidate, len(result.Results))
		for i, r := range result.Results {
			out[i] = Candidate{ID: r.ID, Distance: r.Distance}
		}
		return out, nil
	case registry.Flat:
		pairs, err := flatIdx.Search(query, want)
		if err != nil {
			return nil, err
		}
		out := make([]Candidate, len(pairs))
		for i, pr := range pairs {
			out[i] = Candidate{ID: pr.ID, Distance: pr.Distance}
		}
		return out, nil
	default:
		return nil, vecerr.Wrap("planner.probe", vecerr.ErrNoSuchIndex, "")
	}
}

// Predicate is a boolean condition a host can evaluate against a row's
// metadata to build its own selectivity estimate or to execute the
// FilterThenRank branch. Adapted from the teacher's pkg/search/filter.go
// ComparisonFilter/CompositeFilter model, generalized from "metadata
// filter" to "pre-filter predicate" since vecann has no metadata schema of
// its own — the host's row representation is opaque to this package.
type Predicate interface {
	Match(row map[string]interface{}) bool
}

// Op names a comparison a LeafPredicate performs.
type Op string

const (
	OpEquals  Op = "eq"
	OpNotEq   Op = "ne"
	OpGreater Op = "gt"
	OpLess    Op = "lt"
	OpGreaterEq Op = "gte"
	OpLessEq    Op = "lte"
)

// LeafPredicate compares one column's value in the row against a constant.
type LeafPredicate struct {
	Column string
	Op     Op
	Value  float64
}

// Match implements Predicate.
func (p *LeafPredicate) Match(row map[string]interface{}) bool {
	raw, ok := row[p.Column]
	if !ok {
		return false
	}
	v := toFloat64(raw)
	switch p.Op {
	case OpEquals:
		return v == p.Value
	case OpNotEq:
		return v != p.Value
	case OpGreater:
		return v > p.Value
	case OpLess:
		return v < p.Value
	case OpGreaterEq:
		return v >= p.Value
	case OpLessEq:
		return v <= p.Value
	default:
		return false
	}
}

func toFloat64(v interface{}) float64 {
	switch val := v.(type) {
	case float64:
		return val
	case float32:
		return float64(val)
	case int:
		return float64(val)
	case int64:
		return float64(val)
	case uint64:
		return float64(val)
	default:
		return 0
	}
}

// AndPredicate matches when every sub-predicate matches.
type AndPredicate struct{ Predicates []Predicate }

// Match implements Predicate.
func (p *AndPredicate) Match(row map[string]interface{}) bool {
	for _, sub := range p.Predicates {
		if !sub.Match(row) {
			return false
		}
	}
	return true
}

// OrPredicate matches when any sub-predicate matches.
type OrPredicate struct{ Predicates []Predicate }

// Match implements Predicate.
func (p *OrPredicate) Match(row map[string]interface{}) bool {
	for _, sub := range p.Predicates {
		if sub.Match(row) {
			return true
		}
	}
	return false
}

// NotPredicate negates a single sub-predicate.
type NotPredicate struct{ Predicate Predicate }

// Match implements Predicate.
func (p *NotPredicate) Match(row map[string]interface{}) bool {
	return !p.Predicate.Match(row)
}

// And builds a conjunction.
func And(predicates ...Predicate) Predicate { return &AndPredicate{Predicates: predicates} }

// Or builds a disjunction.
func Or(predicates ...Predicate) Predicate { return &OrPredicate{Predicates: predicates} }

// Not builds a negation.
func Not(p Predicate) Predicate { return &NotPredicate{Predicate: p} }

// EstimateSelectivity applies pred to a representative sample of rows and
// reports the fraction that pass, for hosts that don't maintain their own
// column statistics. Returns 0 for an empty sample.
func EstimateSelectivity(pred Predicate, sample []map[string]interface{}) float64 {
	if len(sample) == 0 {
		return 0
	}
	matched := 0
	for _, row := range sample {
		if pred.Match(row) {
			matched++
		}
	}
	return float64(matched) / float64(len(sample))
}
