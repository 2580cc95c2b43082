package report

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"

	"github.com/segmentio/encoding/json"

	"fansync/pkg/logger"
)

// Store persists reports as JSON files, one per pass
type Store struct {
	dir    string
	logger logger.Logger
}

// NewStore writes to dir, or to the platform data directory when dir is
// empty.
func NewStore(dir string, log logger.Logger) (*Store, error) {
	if dir == "" {
		dataDir, err := dataDirectory()
		if err != nil {
			return nil, fmt.Errorf("failed to get data directory: %w", err)
		}
		dir = filepath.Join(dataDir, "reports")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create reports directory: %w", err)
	}
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Store{dir: dir, logger: log}, nil
}

// Dir returns the directory reports are written to
func (s *Store) Dir() string {
	return s.dir
}

// Save writes r atomically and returns its path
func (s *Store) Save(r *Report) (string, error) {
	r.mu.Lock()
	data, err := json.MarshalIndent(r, "", "  ")
	name := fmt.Sprintf("%s-%d-%s.json", r.Account, r.StartedAt.Unix(), r.ID[:8])
	r.mu.Unlock()
	if err != nil {
		return "", fmt.Errorf("failed to encode report: %w", err)
	}

	path := filepath.Join(s.dir, name)
	tempPath := path + ".tmp"
	file, err := os.Create(tempPath)
	if err != nil {
		return "", fmt.Errorf("failed to create temporary report file: %w", err)
	}
	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(tempPath)
		return "", fmt.Errorf("failed to write report: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tempPath)
		return "", fmt.Errorf("failed to sync report file: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tempPath)
		return "", fmt.Errorf("failed to close report file: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return "", fmt.Errorf("failed to move report into place: %w", err)
	}

	s.logger.DebugWithFields("Report saved", map[string]interface{}{
		"account":  r.Account,
		"failures": r.FailureCount(),
		"path":     path,
	})
	return path, nil
}

// List returns the report files of account, oldest first
func (s *Store) List(account string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(s.dir, account+"-*.json"))
	if err != nil {
		return nil, err
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return startOf(matches[i], account) < startOf(matches[j], account)
	})
	return matches, nil
}

// Latest loads the newest report of account, or nil when there is none
func (s *Store) Latest(account string) (*Report, error) {
	paths, err := s.List(account)
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, nil
	}
	return Load(paths[len(paths)-1])
}

// Load reads a report file
func Load(path string) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read report: %w", err)
	}
	var r Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to decode report: %w", err)
	}
	return &r, nil
}

func startOf(path, account string) int64 {
	rest := strings.TrimPrefix(filepath.Base(path), account+"-")
	ts, _, _ := strings.Cut(rest, "-")
	n, _ := strconv.ParseInt(ts, 10, 64)
	return n
}

// dataDirectory returns the per-user data directory for this OS
func dataDirectory() (string, error) {
	var dataDir string

	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		dataDir = filepath.Join(home, "Library", "Application Support", "fansync")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData == "" {
			return "", fmt.Errorf("APPDATA environment variable not set")
		}
		dataDir = filepath.Join(appData, "fansync")
	default:
		if xdgDataHome := os.Getenv("XDG_DATA_HOME"); xdgDataHome != "" {
			dataDir = filepath.Join(xdgDataHome, "fansync")
		} else {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			dataDir = filepath.Join(home, ".local", "share", "fansync")
		}
	}
	return dataDir, nil
}
