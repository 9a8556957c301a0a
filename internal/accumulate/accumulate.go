// Package accumulate merges freshly normalized batches into an existing
// master history.
package accumulate

import (
	"slices"
	"time"
)

// Result is the outcome of one merge.
type Result[T any] struct {
	Records []T

	Existing int
	Incoming int
	// Added is len(Records) - Existing. It goes negative only when the
	// existing history itself held duplicate keys.
	Added int
	// Superseded counts existing keys replaced by an incoming record.
	Superseded int
}

// Anomalous reports whether the merge shrank the history.
func (r Result[T]) Anomalous() bool {
	return r.Added < 0
}

// Merge concatenates existing and incoming, keeps the last record for every
// key, and stable-sorts the survivors by ts. A nil existing slice means no
// history yet. Neither input is modified.
func Merge[T any](existing, incoming []T, key func(T) string, ts func(T) time.Time) Result[T] {
	res := Result[T]{Existing: len(existing), Incoming: len(incoming)}

	combined := make([]T, 0, len(existing)+len(incoming))
	combined = append(combined, existing...)
	combined = append(combined, incoming...)

	last := make(map[string]int, len(combined))
	for i, rec := range combined {
		last[key(rec)] = i
	}

	inExisting := make(map[string]struct{}, len(existing))
	for _, rec := range existing {
		inExisting[key(rec)] = struct{}{}
	}
	for k, i := range last {
		if _, ok := inExisting[k]; ok && i >= len(existing) {
			res.Superseded++
		}
	}

	merged := make([]T, 0, len(last))
	for i, rec := range combined {
		if last[key(rec)] == i {
			merged = append(merged, rec)
		}
	}

	slices.SortStableFunc(merged, func(a, b T) int {
		return ts(a).Compare(ts(b))
	})

	res.Records = merged
	res.Added = len(merged) - len(existing)
	return res
}
