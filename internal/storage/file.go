package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/gofrs/flock"
	"github.com/spf13/afero"

	"widgetd/internal/widget"
	logx "widgetd/pkg/logx"
)

const compactEvery = 64

// fileStore persists the widget set as:
//   - <prefix>.snapshot.json  (full set, replaced atomically)
//   - <prefix>.journal.jsonl  (append-only put/delete records)
//   - <prefix>.lock           (advisory lock shared by every process)
//
// The daemon and the CLI may hold the same files open at once. Every
// operation takes the lock and re-reads snapshot and journal first, so a
// compaction never folds away records another process appended.
// The journal is folded into the snapshot every compactEvery writes and on Close.
type fileStore struct {
	fs  afero.Fs
	log logx.Logger

	mu   sync.Mutex
	lock fileLock

	snapshotPath string
	journalPath  string
	journal      afero.File
	widgets      map[string]widget.Record

	writes int
}

// fileLock serializes access between processes sharing the same files.
type fileLock interface {
	Lock() error
	Unlock() error
}

type nopLock struct{}

func (nopLock) Lock() error   { return nil }
func (nopLock) Unlock() error { return nil }

// newFileLock uses flock(2) on the real filesystem. In-memory filesystems are
// private to one store, so they need no lock.
func newFileLock(fs afero.Fs, path string) fileLock {
	if _, ok := fs.(*afero.OsFs); ok {
		return flock.New(path)
	}
	return nopLock{}
}

type journalOp string

const (
	opPut journalOp = "put"
	opDel journalOp = "del"
)

type journalRecord struct {
	Op     journalOp      `json:"op"`
	ID     string         `json:"id"`
	Widget *widget.Record `json:"widget,omitempty"`
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	fs := cfg.Fs
	if fs == nil {
		fs = afero.NewOsFs()
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	prefix := filepath.Join(dir, base)

	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	s := &fileStore{
		fs:           fs,
		log:          log,
		lock:         newFileLock(fs, prefix+".lock"),
		snapshotPath: prefix + ".snapshot.json",
		journalPath:  prefix + ".journal.jsonl",
	}

	if err := s.lock.Lock(); err != nil {
		return nil, fmt.Errorf("lock %s: %w", prefix, err)
	}
	defer s.unlock()

	jf, err := fs.OpenFile(s.journalPath, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o600)
	if err != nil {
		return nil, err
	}
	s.journal = jf
	if err := s.reloadLocked(); err != nil {
		_ = jf.Close()
		return nil, err
	}
	return s, nil
}

func (s *fileStore) unlock() {
	if err := s.lock.Unlock(); err != nil {
		s.log.Warn("storage unlock failed", logx.Err(err))
	}
}

// withLock runs fn holding both the in-process mutex and the file lock, on
// a widget map freshly read from disk.
func (s *fileStore) withLock(fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return ErrDisabled
	}
	if err := s.lock.Lock(); err != nil {
		return fmt.Errorf("lock storage: %w", err)
	}
	defer s.unlock()
	if err := s.reloadLocked(); err != nil {
		return err
	}
	return fn()
}

// reloadLocked rebuilds the widget map from disk. A torn journal tail is
// folded away at once so later appends do not land on the broken line.
func (s *fileStore) reloadLocked() error {
	widgets := map[string]widget.Record{}
	if err := loadSnapshot(s.fs, s.snapshotPath, widgets); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load snapshot %s: %w", s.snapshotPath, err)
	}
	torn, err := replayJournal(s.fs, s.journalPath, widgets, s.log)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("replay journal %s: %w", s.journalPath, err)
	}
	s.widgets = widgets
	if torn {
		return s.compactLocked()
	}
	return nil
}

func (s *fileStore) Close() error {
	err := s.withLock(s.compactLocked)
	if errors.Is(err, ErrDisabled) {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return err
	}
	cerr := s.journal.Close()
	s.journal = nil
	return errors.Join(err, cerr)
}

func (s *fileStore) LoadWidgets(ctx context.Context) ([]widget.Record, error) {
	_ = ctx
	var out []widget.Record
	err := s.withLock(func() error {
		out = make([]widget.Record, 0, len(s.widgets))
		for _, w := range s.widgets {
			out = append(out, w)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sortRecords(out)
	return out, nil
}

func (s *fileStore) SaveWidgets(ctx context.Context, recs []widget.Record) error {
	_ = ctx
	for _, r := range recs {
		if err := r.Validate(); err != nil {
			return err
		}
	}
	return s.withLock(func() error {
		for i := range recs {
			r := recs[i]
			if err := s.appendLocked(journalRecord{Op: opPut, ID: r.ID, Widget: &r}); err != nil {
				return err
			}
			s.widgets[r.ID] = r
		}
		return s.maybeCompactLocked()
	})
}

func (s *fileStore) DeleteWidget(ctx context.Context, id string) error {
	_ = ctx
	id = strings.TrimSpace(id)
	return s.withLock(func() error {
		if _, ok := s.widgets[id]; !ok {
			return ErrNotFound
		}
		if err := s.appendLocked(journalRecord{Op: opDel, ID: id}); err != nil {
			return err
		}
		delete(s.widgets, id)
		return s.maybeCompactLocked()
	})
}

func (s *fileStore) appendLocked(rec journalRecord) error {
	if err := json.NewEncoder(s.journal).Encode(rec); err != nil {
		return err
	}
	s.writes++
	return nil
}

func (s *fileStore) maybeCompactLocked() error {
	if s.writes < compactEvery {
		return nil
	}
	if err := s.compactLocked(); err != nil {
		s.log.Debug("journal compact failed", logx.Err(err))
	}
	return nil
}

// compactLocked requires the file lock and a map reloaded under it.
func (s *fileStore) compactLocked() error {
	recs := make([]widget.Record, 0, len(s.widgets))
	for _, w := range s.widgets {
		recs = append(recs, w)
	}
	sortRecords(recs)

	tmp := s.snapshotPath + ".tmp"
	f, err := s.fs.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(recs); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := s.fs.Rename(tmp, s.snapshotPath); err != nil {
		return err
	}
	if err := s.journal.Truncate(0); err != nil {
		return err
	}
	s.writes = 0
	_, err = s.journal.Seek(0, io.SeekEnd)
	return err
}

func loadSnapshot(fs afero.Fs, path string, out map[string]widget.Record) error {
	f, err := fs.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	var recs []widget.Record
	if err := json.NewDecoder(f).Decode(&recs); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}
	for _, r := range recs {
		out[r.ID] = r
	}
	return nil
}

// replayJournal applies journal records in order. A torn final line (crash
// mid-append) is dropped and reported; corruption anywhere else fails the load.
func replayJournal(fs afero.Fs, path string, out map[string]widget.Record, log logx.Logger) (bool, error) {
	f, err := fs.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	var pending error
	line := 0
	for sc.Scan() {
		line++
		if pending != nil {
			return false, pending
		}
		b := sc.Bytes()
		if len(strings.TrimSpace(string(b))) == 0 {
			continue
		}
		var r journalRecord
		if err := json.Unmarshal(b, &r); err != nil {
			pending = fmt.Errorf("line %d: %w", line, err)
			continue
		}
		switch r.Op {
		case opPut:
			if r.Widget == nil {
				return false, fmt.Errorf("line %d: put without widget", line)
			}
			out[r.ID] = *r.Widget
		case opDel:
			delete(out, r.ID)
		default:
			return false, fmt.Errorf("line %d: unknown op %q", line, r.Op)
		}
	}
	if err := sc.Err(); err != nil {
		return false, err
	}
	if pending != nil {
		log.Warn("dropping torn journal tail", logx.Err(pending))
		return true, nil
	}
	return false, nil
}

func sortRecords(recs []widget.Record) {
	sort.Slice(recs, func(i, j int) bool {
		if !recs[i].CreatedAt.Equal(recs[j].CreatedAt) {
			return recs[i].CreatedAt.Before(recs[j].CreatedAt)
		}
		return recs[i].ID < recs[j].ID
	})
}
