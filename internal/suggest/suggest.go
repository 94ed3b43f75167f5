package suggest

import (
	"context"
	"strings"

	model "github.com/and161185/hcservices/internal/model"
)

// Distinct returns the non-empty values of field over items, trimmed, deduplicated case-insensitively
// in first-seen order. Values not containing term (case-insensitive) are skipped; limit <= 0 means no limit.
func Distinct[T any](items []T, field func(T) string, term string, limit int) []string {
	term = strings.ToLower(strings.TrimSpace(term))
	seen := make(map[string]struct{})
	out := []string{}
	for _, it := range items {
		v := strings.TrimSpace(field(it))
		if v == "" {
			continue
		}
		low := strings.ToLower(v)
		if term != "" && !strings.Contains(low, term) {
			continue
		}
		if _, dup := seen[low]; dup {
			continue
		}
		seen[low] = struct{}{}
		out = append(out, v)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

// Suggester debounces terms per session, then reduces one list search to distinct field values.
type Suggester[T any] struct {
	deb   *Debouncer
	field func(T) string
	limit int
}

// New constructs a Suggester over field.
func New[T any](deb *Debouncer, field func(T) string, limit int) *Suggester[T] {
	if deb == nil {
		deb = NewDebouncer(0)
	}
	return &Suggester[T]{deb: deb, field: field, limit: limit}
}

// Suggest waits out the debounce window for session. A superseded call returns ok=false and never
// runs search; otherwise list runs once and its results are reduced.
func (s *Suggester[T]) Suggest(ctx context.Context, session, term string, list func(context.Context) ([]T, error)) ([]string, bool, error) {
	return s.SuggestMarked(ctx, session, s.deb.Mark(session), term, list)
}

// Mark registers a term for session ahead of SuggestMarked, fixing its order among the session's terms.
func (s *Suggester[T]) Mark(session string) uint64 { return s.deb.Mark(session) }

// SuggestMarked is Suggest for a term registered with Mark.
func (s *Suggester[T]) SuggestMarked(ctx context.Context, session string, seq uint64, term string, list func(context.Context) ([]T, error)) ([]string, bool, error) {
	ok, err := s.deb.WaitFor(ctx, session, seq)
	if err != nil || !ok {
		return nil, false, err
	}
	items, err := list(ctx)
	if err != nil {
		return nil, true, err
	}
	return Distinct(items, s.field, term, s.limit), true, nil
}

// CaseField selects a CaseSummary field by its wire name.
func CaseField(name string) (func(model.CaseSummary) string, bool) {
	switch name {
	case "pet_name":
		return func(c model.CaseSummary) string { return c.PetName }, true
	case "res_name":
		return func(c model.CaseSummary) string { return c.ResName }, true
	case "type_name":
		return func(c model.CaseSummary) string { return c.TypeName }, true
	case "status":
		return func(c model.CaseSummary) string { return c.Status }, true
	case "court_name":
		return func(c model.CaseSummary) string { return c.CourtName }, true
	default:
		return nil, false
	}
}
