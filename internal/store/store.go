// Package store persists the master datasets and per-run artifacts as flat
// files under a data directory:
//
//	<data>/raw/<dataset>_<start>_to_<end>.csv     extracted batch, as received
//	<data>/processed/<dataset>_master.csv         accumulated history
//	<data>/processed/<dataset>_<runID>.csv        normalized batch of one run
//	<data>/logs/pipeline_summary_<runID>.txt
//	<data>/logs/pipeline_error_<runID>.txt
package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/couchcryptid/nyc-traffic-weather-etl/internal/domain"
)

const (
	rawDir       = "raw"
	processedDir = "processed"
	logsDir      = "logs"
)

// MasterStore reads and rewrites the master CSV files.
type MasterStore struct {
	root string
}

// New returns a store rooted at dataDir. Directories are created by Init.
func New(dataDir string) *MasterStore {
	return &MasterStore{root: dataDir}
}

// Init creates the raw, processed, and logs directories.
func (s *MasterStore) Init() error {
	for _, d := range []string{rawDir, processedDir, logsDir} {
		if err := os.MkdirAll(filepath.Join(s.root, d), 0o755); err != nil {
			return fmt.Errorf("create %s dir: %w", d, err)
		}
	}
	return nil
}

// MasterPath returns the master file location for a dataset.
func (s *MasterStore) MasterPath(ds domain.Dataset) string {
	return filepath.Join(s.root, processedDir, string(ds)+"_master.csv")
}

// LoadWeather reads the weather master. It returns (nil, nil) when no master
// exists yet.
func (s *MasterStore) LoadWeather() ([]domain.WeatherRecord, error) {
	return loadCSV(s.MasterPath(domain.WeatherDataset), func(r *domain.WeatherRecord) error {
		if r.Timestamp.IsZero() {
			return errors.New("missing timestamp")
		}
		if _, ok := domain.ParseRegion(string(r.Region), false); !ok {
			return fmt.Errorf("invalid region %q", r.Region)
		}
		r.Timestamp = r.Timestamp.In(domain.NYC)
		return nil
	})
}

// LoadCollisions reads the collisions master. It returns (nil, nil) when no
// master exists yet.
func (s *MasterStore) LoadCollisions() ([]domain.CollisionRecord, error) {
	return loadCSV(s.MasterPath(domain.CollisionDataset), func(r *domain.CollisionRecord) error {
		if r.CollisionID == "" {
			return errors.New("missing collision_id")
		}
		if r.CrashDatetime.IsZero() {
			return errors.New("missing crash_datetime")
		}
		region, ok := domain.ParseRegion(string(r.Region), true)
		if !ok {
			return fmt.Errorf("invalid region %q", r.Region)
		}
		r.Region = region
		r.CrashDatetime = r.CrashDatetime.In(domain.NYC)
		return nil
	})
}

// SaveWeather atomically replaces the weather master.
func (s *MasterStore) SaveWeather(recs []domain.WeatherRecord) error {
	return writeAtomic(s.MasterPath(domain.WeatherDataset), csvWriter(recs))
}

// SaveCollisions atomically replaces the collisions master.
func (s *MasterStore) SaveCollisions(recs []domain.CollisionRecord) error {
	return writeAtomic(s.MasterPath(domain.CollisionDataset), csvWriter(recs))
}

// SnapshotWeather writes the normalized batch of one run next to the master.
func (s *MasterStore) SnapshotWeather(runID string, recs []domain.WeatherRecord) (string, error) {
	path := s.snapshotPath(domain.WeatherDataset, runID)
	return path, writeAtomic(path, csvWriter(recs))
}

// SnapshotCollisions writes the normalized batch of one run next to the master.
func (s *MasterStore) SnapshotCollisions(runID string, recs []domain.CollisionRecord) (string, error) {
	path := s.snapshotPath(domain.CollisionDataset, runID)
	return path, writeAtomic(path, csvWriter(recs))
}

func (s *MasterStore) snapshotPath(ds domain.Dataset, runID string) string {
	return filepath.Join(s.root, processedDir, fmt.Sprintf("%s_%s.csv", ds, runID))
}

// Modified returns the master's modification time, or the zero time when no
// master exists.
func (s *MasterStore) Modified(ds domain.Dataset) time.Time {
	info, err := os.Stat(s.MasterPath(ds))
	if err != nil {
		return time.Time{}
	}
	return info.ModTime()
}
