package pipeline

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/couchcryptid/nyc-traffic-weather-etl/internal/accumulate"
	"github.com/couchcryptid/nyc-traffic-weather-etl/internal/domain"
)

// RunIDLayout formats the run start time into a run ID. A driver suffixes the
// ID when it would repeat one it already issued.
const RunIDLayout = "20060102_150405.000"

// Phase names one stage of a run.
type Phase string

const (
	PhaseExtraction    Phase = "extraction"
	PhaseNormalization Phase = "normalization"
	PhaseAccumulation  Phase = "accumulation"
	PhasePersistence   Phase = "persistence"
	PhaseLoading       Phase = "loading"
)

// Status is the outcome of one phase.
type Status string

const (
	StatusOK       Status = "ok"
	StatusDegraded Status = "degraded"
	StatusFailed   Status = "failed"
	StatusSkipped  Status = "skipped"
)

// PhaseResult records how a phase ended.
type PhaseResult struct {
	Phase  Phase  `json:"phase"`
	Status Status `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// DatasetSummary describes one dataset after a run.
type DatasetSummary struct {
	Extracted   int  `json:"extracted"`
	Normalized  int  `json:"normalized"`
	Dropped     int  `json:"dropped"`
	Added       int  `json:"added"`
	Superseded  int  `json:"superseded"`
	MasterTotal int  `json:"master_total"`
	Anomalous   bool `json:"anomalous,omitempty"`

	First    time.Time      `json:"first,omitzero"`
	Last     time.Time      `json:"last,omitzero"`
	ByRegion map[string]int `json:"by_region,omitempty"`
	// BySeverity counts weather_severity or severity_level values; records
	// read from older masters without the column are counted as UNKNOWN.
	BySeverity map[string]int `json:"by_severity,omitempty"`
	ByCategory map[string]int `json:"by_category,omitempty"`

	Injured int `json:"injured,omitempty"`
	Killed  int `json:"killed,omitempty"`
}

// Artifacts lists the files a run produced.
type Artifacts struct {
	RawWeather         string `json:"raw_weather,omitempty"`
	RawCollisions      string `json:"raw_collisions,omitempty"`
	WeatherMaster      string `json:"weather_master,omitempty"`
	CollisionsMaster   string `json:"collisions_master,omitempty"`
	WeatherSnapshot    string `json:"weather_snapshot,omitempty"`
	CollisionsSnapshot string `json:"collisions_snapshot,omitempty"`
	Summary            string `json:"summary,omitempty"`
	Error              string `json:"error,omitempty"`
}

// Summary is the outcome of one run.
type Summary struct {
	RunID        string           `json:"run_id"`
	Requested    domain.DateRange `json:"requested"`
	Range        domain.DateRange `json:"range"`
	UsedFallback bool             `json:"used_fallback"`
	Started      time.Time        `json:"started"`
	Finished     time.Time        `json:"finished"`
	Success      bool             `json:"success"`
	Error        string           `json:"error,omitempty"`
	Phases       []PhaseResult    `json:"phases"`
	Weather      DatasetSummary   `json:"weather"`
	Collisions   DatasetSummary   `json:"collisions"`
	Artifacts    Artifacts        `json:"artifacts"`

	current Phase
}

func newSummary(started time.Time, r domain.DateRange) Summary {
	return Summary{
		RunID:     started.Format(RunIDLayout),
		Requested: r,
		Range:     r,
		Started:   started,
	}
}

// Duration is the wall time of the run.
func (s Summary) Duration() time.Duration {
	if s.Finished.IsZero() {
		return 0
	}
	return s.Finished.Sub(s.Started)
}

// Degraded reports whether any phase finished degraded.
func (s Summary) Degraded() bool {
	return slices.ContainsFunc(s.Phases, func(p PhaseResult) bool { return p.Status == StatusDegraded })
}

// PhaseStatus returns the recorded status of a phase.
func (s Summary) PhaseStatus(p Phase) (Status, bool) {
	for _, r := range s.Phases {
		if r.Phase == p {
			return r.Status, true
		}
	}
	return "", false
}

func (s *Summary) record(p Phase, st Status, detail string) {
	for i := range s.Phases {
		if s.Phases[i].Phase == p {
			s.Phases[i].Status, s.Phases[i].Detail = st, detail
			return
		}
	}
	s.Phases = append(s.Phases, PhaseResult{Phase: p, Status: st, Detail: detail})
}

func (s *Summary) hasStatus(p Phase) bool {
	_, ok := s.PhaseStatus(p)
	return ok
}

func (s *Summary) failCurrent(err error) {
	if s.current == "" {
		return
	}
	s.record(s.current, StatusFailed, err.Error())
}

func absorb[T any](d *DatasetSummary, res accumulate.Result[T], ts func(T) time.Time) {
	d.Added = res.Added
	d.Superseded = res.Superseded
	d.MasterTotal = len(res.Records)
	d.Anomalous = res.Anomalous()
	if n := len(res.Records); n > 0 {
		d.First, d.Last = ts(res.Records[0]), ts(res.Records[n-1])
	}
}

const unknownLevel = "UNKNOWN"

func (d *DatasetSummary) describeWeather(recs []domain.WeatherRecord) {
	d.ByRegion = make(map[string]int)
	d.BySeverity = make(map[string]int)
	d.ByCategory = make(map[string]int)
	for _, r := range recs {
		d.ByRegion[string(r.Region)]++
		d.BySeverity[optionalLabel(r.Severity)]++
		d.ByCategory[optionalLabel(r.Category)]++
	}
}

func (d *DatasetSummary) describeCollisions(recs []domain.CollisionRecord) {
	d.ByRegion = make(map[string]int)
	d.BySeverity = make(map[string]int)
	d.Injured, d.Killed = 0, 0
	for _, r := range recs {
		d.ByRegion[string(r.Region)]++
		d.BySeverity[optionalLabel(r.SeverityLevel)]++
		d.Injured += r.PersonsInjured
		d.Killed += r.PersonsKilled
	}
}

func optionalLabel[T ~string](o domain.Optional[T]) string {
	if v, ok := o.Get(); ok {
		return string(v)
	}
	return unknownLevel
}

// PerDay is the average number of normalized records per day of the range.
func (s Summary) PerDay(d DatasetSummary) float64 {
	days := s.Range.Days()
	if days == 0 {
		return 0
	}
	return float64(d.Normalized) / float64(days)
}

// Text renders the summary artifact.
func (s Summary) Text() string {
	var b strings.Builder
	status := "SUCCESS"
	switch {
	case !s.Success:
		status = "FAILED"
	case s.Degraded():
		status = "SUCCESS (degraded)"
	}

	fmt.Fprintf(&b, "NYC traffic and weather pipeline run %s\n", s.RunID)
	fmt.Fprintf(&b, "status: %s\n", status)
	fmt.Fprintf(&b, "range: %s (%d days)\n", s.Range, s.Range.Days())
	if s.UsedFallback {
		fmt.Fprintf(&b, "requested range: %s (extraction failed, fallback used)\n", s.Requested)
	}
	fmt.Fprintf(&b, "started: %s\n", s.Started.Format(time.RFC3339))
	if !s.Finished.IsZero() {
		fmt.Fprintf(&b, "duration: %s\n", s.Duration().Round(time.Millisecond))
	}
	if s.Error != "" {
		fmt.Fprintf(&b, "error: %s\n", s.Error)
	}

	s.writeDataset(&b, domain.WeatherDataset, s.Weather)
	s.writeDataset(&b, domain.CollisionDataset, s.Collisions)

	b.WriteString("\nphases\n")
	for _, p := range s.Phases {
		fmt.Fprintf(&b, "  %-14s %s", p.Phase, p.Status)
		if p.Detail != "" {
			fmt.Fprintf(&b, " (%s)", p.Detail)
		}
		b.WriteByte('\n')
	}

	if paths := s.Artifacts.list(); len(paths) > 0 {
		b.WriteString("\nartifacts\n")
		for _, p := range paths {
			fmt.Fprintf(&b, "  %s\n", p)
		}
	}
	return b.String()
}

func (s Summary) writeDataset(b *strings.Builder, ds domain.Dataset, d DatasetSummary) {
	fmt.Fprintf(b, "\n%s\n", ds)
	fmt.Fprintf(b, "  extracted: %d  normalized: %d  dropped: %d\n", d.Extracted, d.Normalized, d.Dropped)
	fmt.Fprintf(b, "  per day: %.1f\n", s.PerDay(d))
	fmt.Fprintf(b, "  added: %d  superseded: %d  master total: %d\n", d.Added, d.Superseded, d.MasterTotal)
	if d.Anomalous {
		b.WriteString("  WARNING: master shrank during merge\n")
	}
	if !d.First.IsZero() {
		fmt.Fprintf(b, "  master span: %s to %s\n",
			d.First.In(domain.NYC).Format(time.DateTime), d.Last.In(domain.NYC).Format(time.DateTime))
	}
	writeCounts(b, "by region", d.ByRegion)
	writeCounts(b, "by category", d.ByCategory)
	writeCounts(b, "by severity", d.BySeverity)
	if ds == domain.CollisionDataset {
		fmt.Fprintf(b, "  injured: %d  killed: %d\n", d.Injured, d.Killed)
	}
}

func writeCounts(b *strings.Builder, label string, counts map[string]int) {
	if len(counts) == 0 {
		return
	}
	keys := slices.Sorted(maps.Keys(counts))
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%d", k, counts[k]))
	}
	fmt.Fprintf(b, "  %s: %s\n", label, strings.Join(parts, " "))
}

func (a Artifacts) list() []string {
	var out []string
	for _, p := range []string{
		a.RawWeather, a.RawCollisions,
		a.WeatherMaster, a.CollisionsMaster,
		a.WeatherSnapshot, a.CollisionsSnapshot,
		a.Error,
	} {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func joinDetails(parts []string) string {
	return strings.Join(parts, "; ")
}
