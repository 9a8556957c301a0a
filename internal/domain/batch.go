package domain

// RunBatch is the normalized output of one run, handed to optional sinks.
type RunBatch struct {
	RunID      string
	Range      DateRange
	Weather    []WeatherRecord
	Collisions []CollisionRecord
}

// Len returns the number of records across both datasets.
func (b RunBatch) Len() int {
	return len(b.Weather) + len(b.Collisions)
}
