package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/theirongolddev/flamekit/internal/observability"
	"github.com/theirongolddev/flamekit/internal/source"
	"github.com/theirongolddev/flamekit/internal/store"
)

// ImportResult summarizes an import into the store.
type ImportResult struct {
	TotalFiles  int
	Imported    int
	Unchanged   int
	Removed     int
	ParseErrors int
	FileErrors  int
}

// LoadWithCache discovers profile files under dir, parses only those whose
// size or mtime changed since the last import, and stores them. Profiles of
// tracked files that disappeared from dir are deleted.
func LoadWithCache(dir string, db *store.DB, progressFn ProgressFunc) (*ImportResult, error) {
	files, err := source.ScanDir(dir)
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", dir, err)
	}

	tracked, err := db.GetTrackedFiles()
	if err != nil {
		return nil, fmt.Errorf("reading file tracker: %w", err)
	}

	result := &ImportResult{TotalFiles: len(files)}

	// Diff: partition into changed and unchanged
	var toReparse []source.DiscoveredFile
	seen := make(map[string]struct{}, len(files))
	for _, f := range files {
		seen[f.Path] = struct{}{}
		info, err := os.Stat(f.Path)
		if err != nil {
			continue
		}
		cached, ok := tracked[f.Path]
		if ok && cached.MtimeNs == info.ModTime().UnixNano() && cached.SizeBytes == info.Size() {
			result.Unchanged++
			continue
		}
		toReparse = append(toReparse, f)
	}
	observability.ImportFilesTotal.WithLabelValues("unchanged").Add(float64(result.Unchanged))

	// Forget files that are gone, but only those under dir.
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	for path, fi := range tracked {
		if _, ok := seen[path]; ok || !within(absDir, path) {
			continue
		}
		if err := db.DeleteProfile(fi.ProfileID); err != nil {
			return nil, fmt.Errorf("removing profile for %s: %w", path, err)
		}
		if err := db.DeleteFileTracker(path); err != nil {
			return nil, fmt.Errorf("untracking %s: %w", path, err)
		}
		result.Removed++
		observability.ImportFilesTotal.WithLabelValues("removed").Inc()
	}

	if len(toReparse) == 0 {
		return result, nil
	}

	for i, pr := range parseAll(toReparse, result.Unchanged, result.TotalFiles, progressFn) {
		if pr.Err != nil {
			result.FileErrors++
			observability.ImportFilesTotal.WithLabelValues("failed").Inc()
			continue
		}
		result.ParseErrors += pr.ParseErrors
		if err := save(db, toReparse[i], pr); err != nil {
			return nil, err
		}
		result.Imported++
		observability.ImportFilesTotal.WithLabelValues("imported").Inc()
	}
	return result, nil
}

// ImportFile parses and stores a single profile file regardless of the
// file tracker, and returns the stored profile's id.
func ImportFile(path string, db *store.DB) (string, int, error) {
	df, err := source.Discover(path)
	if err != nil {
		return "", 0, fmt.Errorf("%s: %w", path, err)
	}
	pr := source.ParseFile(df)
	if pr.Err != nil {
		observability.ImportFilesTotal.WithLabelValues("failed").Inc()
		return "", pr.ParseErrors, fmt.Errorf("parsing %s: %w", path, pr.Err)
	}
	if err := save(db, df, pr); err != nil {
		return "", pr.ParseErrors, err
	}
	observability.ImportFilesTotal.WithLabelValues("imported").Inc()
	return df.ProfileID, pr.ParseErrors, nil
}

func save(db *store.DB, df source.DiscoveredFile, pr source.ParseResult) error {
	if err := db.SaveProfile(pr.Profile); err != nil {
		return fmt.Errorf("saving %s: %w", df.Path, err)
	}
	info, err := os.Stat(df.Path)
	if err != nil {
		return nil //nolint:nilerr // stored; the tracker just retries next time
	}
	return db.TrackFile(df.Path, store.FileInfo{
		ProfileID: df.ProfileID,
		MtimeNs:   info.ModTime().UnixNano(),
		SizeBytes: info.Size(),
	})
}

func within(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// DataDir returns the platform-appropriate data directory.
func DataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "flamekit")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "flamekit")
}

// DBPath returns the full path to the profile database.
func DBPath() string {
	return filepath.Join(DataDir(), "profiles.db")
}
