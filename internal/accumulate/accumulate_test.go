package accumulate

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type rec struct {
	ID  string
	At  time.Time
	Val int
}

func recKey(r rec) string { return r.ID }
func recTime(r rec) time.Time { return r.At }

func day(d int) time.Time {
	return time.Date(2024, time.January, d, 0, 0, 0, 0, time.UTC)
}

func merge(existing, incoming []rec) Result[rec] {
	return Merge(existing, incoming, recKey, recTime)
}

func TestMerge_EndToEnd(t *testing.T) {
	existing := []rec{{"A", day(1), 1}}
	incoming := []rec{{"A", day(1), 2}, {"B", day(2), 3}}

	res := merge(existing, incoming)

	want := []rec{{"A", day(1), 2}, {"B", day(2), 3}}
	if diff := cmp.Diff(want, res.Records); diff != "" {
		t.Errorf("merged records mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 1, res.Added)
	assert.Equal(t, 1, res.Superseded)
	assert.False(t, res.Anomalous())
}

func TestMerge_NilExisting(t *testing.T) {
	incoming := []rec{{"B", day(2), 1}, {"A", day(1), 1}}

	res := merge(nil, incoming)

	require.Len(t, res.Records, 2)
	assert.Equal(t, "A", res.Records[0].ID)
	assert.Equal(t, 2, res.Added)
	assert.Zero(t, res.Superseded)
}

func TestMerge_Idempotent(t *testing.T) {
	existing := []rec{{"A", day(1), 1}, {"C", day(3), 1}}
	incoming := []rec{{"B", day(2), 5}, {"C", day(3), 9}}

	once := merge(existing, incoming)
	twice := merge(once.Records, incoming)

	if diff := cmp.Diff(once.Records, twice.Records); diff != "" {
		t.Errorf("second merge changed history (-once +twice):\n%s", diff)
	}
	assert.Zero(t, twice.Added)
	assert.Equal(t, 2, twice.Superseded)
}

func TestMerge_KeysUnique(t *testing.T) {
	existing := []rec{{"A", day(1), 1}, {"B", day(2), 1}}
	incoming := []rec{{"B", day(2), 2}, {"B", day(2), 3}, {"C", day(1), 1}}

	res := merge(existing, incoming)

	seen := map[string]bool{}
	for _, r := range res.Records {
		assert.False(t, seen[r.ID], "duplicate key %s", r.ID)
		seen[r.ID] = true
	}
	assert.Len(t, res.Records, 3)
}

func TestMerge_LastIncomingWins(t *testing.T) {
	existing := []rec{{"A", day(1), 1}}
	incoming := []rec{{"A", day(1), 2}, {"A", day(1), 3}}

	res := merge(existing, incoming)

	require.Len(t, res.Records, 1)
	assert.Equal(t, 3, res.Records[0].Val)
}

func TestMerge_SortedAndStable(t *testing.T) {
	existing := []rec{{"X", day(3), 0}, {"Y", day(1), 0}}
	incoming := []rec{{"Z", day(1), 0}, {"W", day(2), 0}}

	res := merge(existing, incoming)

	ids := make([]string, 0, len(res.Records))
	for i, r := range res.Records {
		if i > 0 {
			assert.False(t, r.At.Before(res.Records[i-1].At))
		}
		ids = append(ids, r.ID)
	}
	// Y and Z share a timestamp; Y came first in the concatenation.
	assert.Equal(t, []string{"Y", "Z", "W", "X"}, ids)
}

func TestMerge_EmptyIncomingIsNoop(t *testing.T) {
	existing := []rec{{"A", day(1), 1}, {"B", day(2), 2}}

	res := merge(existing, []rec{})

	if diff := cmp.Diff(existing, res.Records); diff != "" {
		t.Errorf("empty batch changed history (-want +got):\n%s", diff)
	}
	assert.Zero(t, res.Added)
}

func TestMerge_SupersetOfExisting(t *testing.T) {
	var existing []rec
	for i := 1; i <= 10; i++ {
		existing = append(existing, rec{fmt.Sprintf("k%02d", i), day(i), i})
	}
	incoming := []rec{{"k05", day(5), 50}, {"k11", day(11), 11}}

	res := merge(existing, incoming)

	got := map[string]rec{}
	for _, r := range res.Records {
		got[r.ID] = r
	}
	for _, r := range existing {
		assert.Contains(t, got, r.ID)
	}
	assert.Equal(t, 50, got["k05"].Val)
	assert.Equal(t, 1, res.Added)
}

func TestMerge_DuplicatedHistoryIsAnomalous(t *testing.T) {
	existing := []rec{{"A", day(1), 1}, {"A", day(1), 2}}

	res := merge(existing, nil)

	assert.Len(t, res.Records, 1)
	assert.Equal(t, -1, res.Added)
	assert.True(t, res.Anomalous())
}

func TestMerge_DoesNotMutateInputs(t *testing.T) {
	existing := []rec{{"B", day(2), 1}, {"A", day(1), 1}}
	before := append([]rec(nil), existing...)

	merge(existing, []rec{{"C", day(3), 1}})

	assert.Equal(t, before, existing)
}
