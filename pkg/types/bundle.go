package types

// Filters narrows a context query to units matching the given predicates.
// Zero-value fields match everything.
type Filters struct {
	Kinds    []Kind // Match any of these kinds
	PathGlob string // doublestar glob over the unit path
}

// Query describes one context retrieval request. Queries are ephemeral and
// never persisted.
type Query struct {
	Text    string
	Filters Filters
	Budget  int // Maximum total excerpt bytes in the resulting bundle
	K       int // Candidate pool size; 0 means the configured default
}

// Validate checks the query parameters.
func (q *Query) Validate() error {
	if q.Text == "" {
		return ErrEmptyQuery
	}
	if q.Budget <= 0 {
		return ErrInvalidBudget
	}
	for _, k := range q.Filters.Kinds {
		if !ValidKind(k) {
			return ErrInvalidKind
		}
	}
	return nil
}

// BundleEntry is one unit selected into a context bundle.
type BundleEntry struct {
	UnitID     string
	Path       string
	Kind       Kind
	SymbolName string
	Excerpt    string
	Score      float64
	Truncated  bool // Excerpt was cut to fit the remaining budget
	Degraded   bool
}

// ContextBundle is the ordered, budget-bounded result of a context query.
// Entries are sorted by descending score; ties break on path, then unit ID.
type ContextBundle struct {
	Entries []BundleEntry
}

// Size returns the total excerpt bytes across all entries. The budget
// invariant is Size() <= Query.Budget.
func (b *ContextBundle) Size() int {
	total := 0
	for i := range b.Entries {
		total += len(b.Entries[i].Excerpt)
	}
	return total
}
