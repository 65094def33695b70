package files

import (
	"encoding/gob"
	"fmt"
	"io"
	"os"

	"github.com/tidefall/go-kline-archive/internal/kline"
	"github.com/tidefall/go-kline-archive/internal/models"
)

// snapshot is the on-disk envelope for gob dumps. The version field lets a
// later schema change reject stale files instead of mis-decoding them.
type snapshot struct {
	Version int
	Klines  []models.Kline
}

const snapshotVersion = 1

// WriteGob writes the klines to w as a versioned gob snapshot. Snapshots
// are opaque and only meant to be read back by ReadGob; use CSV for
// interchange with other tools.
func WriteGob(w io.Writer, klines []models.Kline) error {
	if err := gob.NewEncoder(w).Encode(snapshot{Version: snapshotVersion, Klines: klines}); err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	return nil
}

// ReadGob reads a gob snapshot from r.
func ReadGob(r io.Reader) ([]models.Kline, error) {
	var s snapshot
	if err := gob.NewDecoder(r).Decode(&s); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	if s.Version != snapshotVersion {
		return nil, fmt.Errorf("unsupported snapshot version %d", s.Version)
	}
	return s.Klines, nil
}

// WriteGobFile writes the klines to a gob snapshot file at path.
func WriteGobFile(path string, klines []models.Kline) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteGob(f, klines); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// ReadGobFile reads a gob snapshot file at path.
func ReadGobFile(path string) ([]models.Kline, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadGob(f)
}

// executionsSnapshot is the gob envelope for raw execution dumps, kept
// separate from the kline snapshot so the two cannot be confused when
// decoding.
type executionsSnapshot struct {
	Version    int
	Executions []kline.Execution
}

// WriteExecutionsGob writes raw executions to w as a versioned gob
// snapshot.
func WriteExecutionsGob(w io.Writer, executions []kline.Execution) error {
	if err := gob.NewEncoder(w).Encode(executionsSnapshot{Version: snapshotVersion, Executions: executions}); err != nil {
		return fmt.Errorf("encode executions snapshot: %w", err)
	}
	return nil
}

// ReadExecutionsGob reads an executions gob snapshot from r.
func ReadExecutionsGob(r io.Reader) ([]kline.Execution, error) {
	var s executionsSnapshot
	if err := gob.NewDecoder(r).Decode(&s); err != nil {
		return nil, fmt.Errorf("decode executions snapshot: %w", err)
	}
	if s.Version != snapshotVersion {
		return nil, fmt.Errorf("unsupported snapshot version %d", s.Version)
	}
	return s.Executions, nil
}

// WriteExecutionsGobFile writes executions to a gob snapshot file at path.
func WriteExecutionsGobFile(path string, executions []kline.Execution) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteExecutionsGob(f, executions); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// ReadExecutionsGobFile reads an executions gob snapshot file at path.
func ReadExecutionsGobFile(path string) ([]kline.Execution, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadExecutionsGob(f)
}
