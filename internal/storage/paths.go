package storage

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// Storage layout names.
const (
	DataFileName       = "Raven.voron"
	JournalsDirName    = "Journals"
	TempDirName        = "Temp"
	maxWindowsPathSize = 260
	longPathPrefix     = `\\?\`
)

// ErrEmptyPath is returned when a path setting resolves to nothing.
var ErrEmptyPath = errors.New("storage path is empty")

// PathSetting is a logical path resolved against a base directory.
// Environment variables ($VAR, ${VAR} and ${VAR:-default}) and a leading
// "~" are expanded.
type PathSetting struct {
	path string
	base string
}

// NewPathSetting creates a setting for path relative to base.
func NewPathSetting(path, base string) PathSetting {
	return PathSetting{path: path, base: base}
}

// Combine returns a setting for a child of this path.
func (p PathSetting) Combine(sub string) PathSetting {
	return PathSetting{path: filepath.Join(p.path, sub), base: p.base}
}

// String returns the unresolved path.
func (p PathSetting) String() string {
	return p.path
}

// FullPath resolves the setting to an absolute, cleaned path.
func (p PathSetting) FullPath() (string, error) {
	path := expandPath(p.path)
	if path == "" {
		return "", ErrEmptyPath
	}
	if !filepath.IsAbs(path) {
		base := expandPath(p.base)
		if base == "" {
			wd, err := os.Getwd()
			if err != nil {
				return "", err
			}
			base = wd
		}
		path = filepath.Join(base, path)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	return ToFullPath(abs, runtime.GOOS), nil
}

func expandPath(s string) string {
	s = strings.TrimSpace(s)
	if s == "~" || strings.HasPrefix(s, "~/") || strings.HasPrefix(s, `~\`) {
		if home, err := os.UserHomeDir(); err == nil {
			s = home + s[1:]
		}
	}
	return os.Expand(s, func(name string) string {
		if idx := strings.Index(name, ":-"); idx != -1 {
			if val := os.Getenv(name[:idx]); val != "" {
				return val
			}
			return name[idx+2:]
		}
		return os.Getenv(name)
	})
}

// ToFullPath applies the Windows long-path prefix to paths longer than
// MAX_PATH. Other platforms return the path unchanged.
func ToFullPath(path, goos string) string {
	if goos != "windows" || len(path) <= maxWindowsPathSize || strings.HasPrefix(path, longPathPrefix) {
		return path
	}
	if strings.HasPrefix(path, `\\`) {
		return longPathPrefix + `UNC\` + path[2:]
	}
	return longPathPrefix + path
}

// StoragePaths are the resolved directories of one environment.
type StoragePaths struct {
	Base     string
	Journal  string
	Temp     string
	DataFile string
}

// ResolvePaths resolves the directories named by opts. The journal and
// temp directories default to children of the base directory.
func ResolvePaths(opts EnvironmentOptions) (StoragePaths, error) {
	base := NewPathSetting(opts.BasePath, "")
	basePath, err := base.FullPath()
	if err != nil {
		return StoragePaths{}, err
	}

	journal := base.Combine(JournalsDirName)
	if opts.JournalPath != "" {
		journal = NewPathSetting(opts.JournalPath, basePath)
	}
	temp := base.Combine(TempDirName)
	if opts.TempPath != "" {
		temp = NewPathSetting(opts.TempPath, basePath)
	}

	paths := StoragePaths{Base: basePath, DataFile: filepath.Join(basePath, DataFileName)}
	if paths.Journal, err = journal.FullPath(); err != nil {
		return StoragePaths{}, err
	}
	if paths.Temp, err = temp.FullPath(); err != nil {
		return StoragePaths{}, err
	}
	return paths, nil
}

// EnsureDirectories creates every directory of the layout.
func (p StoragePaths) EnsureDirectories() error {
	for _, dir := range []string{p.Base, p.Journal, p.Temp} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return nil
}
