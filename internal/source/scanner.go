package source

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// suffixes maps recognised file name suffixes to formats. Longer suffixes
// are checked first.
var suffixes = []struct {
	suffix string
	format string
}{
	{".speedscope.json", FormatSpeedscope},
	{".folded", FormatFolded},
	{".collapsed", FormatFolded},
	{".stacks", FormatFolded},
}

// DetectFormat returns the format implied by a file name, or "".
func DetectFormat(path string) (format, name string) {
	base := filepath.Base(path)
	lower := strings.ToLower(base)
	for _, s := range suffixes {
		if strings.HasSuffix(lower, s.suffix) {
			return s.format, base[:len(base)-len(s.suffix)]
		}
	}
	return "", ""
}

// Discover describes a single profile file.
func Discover(path string) (DiscoveredFile, error) {
	format, name := DetectFormat(path)
	if format == "" {
		return DiscoveredFile{}, ErrUnsupportedFormat
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return DiscoveredFile{}, err
	}
	return DiscoveredFile{
		Path:      abs,
		ProfileID: ProfileID(abs),
		Name:      name,
		Format:    format,
	}, nil
}

// ProfileID derives the stored id of a profile from its absolute path, so
// re-importing a file replaces its previous version.
func ProfileID(absPath string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("file://"+filepath.ToSlash(absPath))).String()
}

// ScanDir walks dir and discovers every supported profile file.
// A missing directory yields no files.
func ScanDir(dir string) ([]DiscoveredFile, error) {
	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	if !info.IsDir() {
		return nil, nil
	}

	var files []DiscoveredFile
	err = filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil //nolint:nilerr // intentionally skip unreadable entries
		}
		if d.IsDir() {
			if path != dir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		df, err := Discover(path)
		if err != nil {
			return nil //nolint:nilerr // not a profile file
		}
		files = append(files, df)
		return nil
	})
	return files, err
}
