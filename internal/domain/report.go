package domain

// DropReason explains why the normalizer discarded a row.
type DropReason string

const (
	DropMissingID    DropReason = "missing_id"
	DropBadTimestamp DropReason = "bad_timestamp"
	DropBadRegion    DropReason = "bad_region"
	DropDuplicate    DropReason = "duplicate"
)

// NormalizeReport summarizes one normalization pass.
type NormalizeReport struct {
	Input   int
	Output  int
	Dropped map[DropReason]int
}

func newReport(input int) NormalizeReport {
	return NormalizeReport{Input: input, Dropped: make(map[DropReason]int)}
}

func (r *NormalizeReport) drop(reason DropReason) {
	r.Dropped[reason]++
}

// DroppedTotal returns the number of rows discarded for any reason.
func (r NormalizeReport) DroppedTotal() int {
	n := 0
	for _, c := range r.Dropped {
		n += c
	}
	return n
}
