package storage

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	bwerr "github.com/jiin/botwatch/internal/errors"
	"github.com/jiin/botwatch/internal/logger"
	"github.com/jiin/botwatch/internal/models"
)

const (
	filePrefix = "metrics-"
	fileSuffix = ".json"

	// fixed-width so lexicographic order is chronological
	nameLayout = "2006-01-02T15:04:05.000Z"

	// a name may run ahead of its snapshot by at most this many collision
	// steps of one millisecond
	maxNameShift = 1000
)

// FileName returns the snapshot file name for t, with ':' and '.' made
// filesystem-safe.
func FileName(t time.Time) string {
	stamp := t.UTC().Format(nameLayout)
	stamp = strings.NewReplacer(":", "-", ".", "-").Replace(stamp)
	return filePrefix + stamp + fileSuffix
}

// ParseFileName recovers the time embedded in a snapshot file name
func ParseFileName(name string) (time.Time, bool) {
	if !isSnapshotFile(name) {
		return time.Time{}, false
	}
	stamp := []byte(strings.TrimSuffix(strings.TrimPrefix(name, filePrefix), fileSuffix))
	if len(stamp) != len(nameLayout) {
		return time.Time{}, false
	}
	stamp[13], stamp[16], stamp[19] = ':', ':', '.'
	t, err := time.Parse(nameLayout, string(stamp))
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func isSnapshotFile(name string) bool {
	return strings.HasPrefix(name, filePrefix) && strings.HasSuffix(name, fileSuffix)
}

// FileStore keeps one JSON file per snapshot in a directory and caps the
// number of files retained.
type FileStore struct {
	dir      string
	maxFiles int
	now      func() time.Time

	mu  sync.Mutex // serializes writes and deletions
	log *logger.Logger
}

// Option configures a FileStore
type Option func(*FileStore)

// WithClock sets the clock used to name snapshots without a timestamp
func WithClock(now func() time.Time) Option {
	return func(s *FileStore) { s.now = now }
}

// NewFileStore creates a store rooted at dir. maxFiles <= 0 disables the cap.
func NewFileStore(dir string, maxFiles int, opts ...Option) *FileStore {
	s := &FileStore{
		dir:      dir,
		maxFiles: maxFiles,
		now:      time.Now,
		log:      logger.WithComponent("store"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Dir returns the snapshot directory
func (s *FileStore) Dir() string {
	return s.dir
}

// EnsureDir creates the snapshot directory if missing
func (s *FileStore) EnsureDir() error {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return bwerr.Wrap(err, bwerr.CodeStoreSaveWriteFailure, "creating metrics directory", bwerr.Field("dir", s.dir))
	}
	return nil
}

// Save writes the snapshot to a new file then prunes. A pruning failure is
// logged and not returned.
func (s *FileStore) Save(snap *models.Snapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return bwerr.Wrap(err, bwerr.CodeStoreSaveWriteFailure, "encoding snapshot")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.EnsureDir(); err != nil {
		return err
	}

	path, err := s.write(s.nameTime(snap), data)
	if err != nil {
		return err
	}
	s.log.Debug("Snapshot saved", "file", filepath.Base(path))

	if removed, err := s.prune(); err != nil {
		s.log.Error("Failed to prune metrics files", "dir", s.dir, "error", err)
	} else if removed > 0 {
		s.log.Debug("Pruned metrics files", "removed", removed)
	}
	return nil
}

// nameTime is the snapshot's own timestamp, so a file name never sorts
// before the snapshot it holds.
func (s *FileStore) nameTime(snap *models.Snapshot) time.Time {
	if snap.Timestamp == 0 {
		return s.now()
	}
	return time.UnixMilli(snap.Timestamp)
}

// write creates a file named after t. A name already taken moves forward
// one millisecond so nothing is overwritten.
func (s *FileStore) write(t time.Time, data []byte) (string, error) {
	for attempt := 0; attempt < maxNameShift; attempt++ {
		path := filepath.Join(s.dir, FileName(t))
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
		if errors.Is(err, fs.ErrExist) {
			t = t.Add(time.Millisecond)
			continue
		}
		if err != nil {
			return "", bwerr.Wrap(err, bwerr.CodeStoreSaveWriteFailure, "creating snapshot file", bwerr.Field("path", path))
		}

		_, werr := f.Write(data)
		cerr := f.Close()
		if werr == nil {
			werr = cerr
		}
		if werr != nil {
			os.Remove(path)
			return "", bwerr.Wrap(werr, bwerr.CodeStoreSaveWriteFailure, "writing snapshot file", bwerr.Field("path", path))
		}
		return path, nil
	}
	return "", bwerr.New(bwerr.CodeStoreSaveWriteFailure, "no free snapshot file name", bwerr.Field("dir", s.dir))
}

// Prune deletes the oldest files beyond the retention cap
func (s *FileStore) Prune() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.prune()
}

func (s *FileStore) prune() (int, error) {
	if s.maxFiles <= 0 {
		return 0, nil
	}

	names, err := s.list()
	if err != nil {
		return 0, bwerr.Wrap(err, bwerr.CodeStorePruneFailure, "listing metrics files")
	}
	if len(names) <= s.maxFiles {
		return 0, nil
	}

	surplus := names[:len(names)-s.maxFiles]
	removed := 0
	var firstErr error
	for _, name := range surplus {
		if err := os.Remove(filepath.Join(s.dir, name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			if firstErr == nil {
				firstErr = bwerr.Wrap(err, bwerr.CodeStorePruneFailure, "removing metrics file", bwerr.Field("file", name))
			}
			continue
		}
		removed++
	}
	return removed, firstErr
}

// list returns snapshot file names in ascending (chronological) order
func (s *FileStore) list() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Type().IsRegular() && isSnapshotFile(e.Name()) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// Count returns the number of snapshot files on disk
func (s *FileStore) Count() (int, error) {
	names, err := s.list()
	if err != nil {
		return 0, bwerr.Wrap(err, bwerr.CodeStoreHistoryReadFailure, "listing metrics files")
	}
	return len(names), nil
}

// GetHistory scans files newest first, keeps snapshots whose timestamp is
// inside the query range and stops once the limit is reached. File names
// bound the timestamps they hold, so files clearly outside the range are
// never opened. Unreadable files are logged and skipped.
func (s *FileStore) GetHistory(query models.HistoryQuery) ([]models.Snapshot, error) {
	names, err := s.list()
	if err != nil {
		return nil, bwerr.Wrap(err, bwerr.CodeStoreHistoryReadFailure, "listing metrics files")
	}

	limit := query.GetLimit()
	out := make([]models.Snapshot, 0, min(limit, len(names)))
	for k := len(names) - 1; k >= 0 && len(out) < limit; k-- {
		if named, ok := ParseFileName(names[k]); ok {
			// timestamp <= name time, and every older file is older still
			if !query.StartTime.IsZero() && named.Before(query.StartTime.Truncate(time.Millisecond)) {
				break
			}
			if !query.EndTime.IsZero() && named.After(query.EndTime.Add(maxNameShift*time.Millisecond)) {
				continue
			}
		}
		snap, err := s.read(names[k])
		if err != nil {
			s.log.Error("Skipping unreadable metrics file", "file", names[k], "error", err)
			continue
		}
		if query.Contains(snap.Timestamp) {
			out = append(out, *snap)
		}
	}
	return out, nil
}

func (s *FileStore) read(name string) (*models.Snapshot, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		return nil, err
	}
	var snap models.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// Cleanup deletes files whose embedded time is before olderThan
func (s *FileStore) Cleanup(olderThan time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	names, err := s.list()
	if err != nil {
		return 0, bwerr.Wrap(err, bwerr.CodeStoreCleanupFailure, "listing metrics files")
	}

	var removed int64
	for _, name := range names {
		saved, ok := ParseFileName(name)
		if !ok {
			continue
		}
		// names are sorted, so everything after is newer
		if !saved.Before(olderThan) {
			break
		}
		if err := os.Remove(filepath.Join(s.dir, name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return removed, bwerr.Wrap(err, bwerr.CodeStoreCleanupFailure, "removing metrics file", bwerr.Field("file", name))
		}
		removed++
	}
	return removed, nil
}
