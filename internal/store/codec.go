package store

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/jszwec/csvutil"
)

// MalformedMasterError reports a master file that exists but cannot be
// trusted. Callers must not overwrite the file when they see it.
type MalformedMasterError struct {
	Path string
	Line int
	Err  error
}

func (e *MalformedMasterError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("malformed master %s line %d: %v", e.Path, e.Line, e.Err)
	}
	return fmt.Sprintf("malformed master %s: %v", e.Path, e.Err)
}

func (e *MalformedMasterError) Unwrap() error { return e.Err }

// rename is swapped in tests to simulate a failed replace.
var rename = os.Rename

// loadCSV decodes every row of path into T. A missing file yields a nil
// slice; a file with no rows yields an empty one. check runs on every
// decoded row and may fix it up in place.
func loadCSV[T any](path string, check func(*T) error) ([]T, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	dec, err := csvutil.NewDecoder(csv.NewReader(f))
	if errors.Is(err, io.EOF) {
		return []T{}, nil
	}
	if err != nil {
		return nil, &MalformedMasterError{Path: path, Err: err}
	}

	out := []T{}
	for line := 2; ; line++ {
		var rec T
		err := dec.Decode(&rec)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &MalformedMasterError{Path: path, Line: line, Err: err}
		}
		if err := check(&rec); err != nil {
			return nil, &MalformedMasterError{Path: path, Line: line, Err: err}
		}
		out = append(out, rec)
	}
	return out, nil
}

// csvWriter returns a writer func that encodes recs with a header row. An
// empty slice still produces the header.
func csvWriter[T any](recs []T) func(io.Writer) error {
	return func(w io.Writer) error {
		cw := csv.NewWriter(w)
		enc := csvutil.NewEncoder(cw)
		if len(recs) == 0 {
			var zero T
			if err := enc.EncodeHeader(zero); err != nil {
				return fmt.Errorf("encode header: %w", err)
			}
		} else if err := enc.Encode(recs); err != nil {
			return fmt.Errorf("encode rows: %w", err)
		}
		cw.Flush()
		return cw.Error()
	}
}

// writeAtomic writes to a temp file in the target directory, syncs it, and
// renames it over path. On any failure the previous file is left in place.
func writeAtomic(path string, write func(io.Writer) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			tmp.Close()
			os.Remove(tmpName)
		}
	}()

	if err := write(tmp); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmpName, err)
	}
	if err := rename(tmpName, path); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	committed = true
	return nil
}
