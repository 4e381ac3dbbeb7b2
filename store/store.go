// Package store manages the on-disk scratch directory spec.md §6
// describes: ".mreplay/" recreated on start, one log per execution id
// (event.WriteLog), a root log labelled "0", and an advisory lock so two
// explorer runs never share a scratch directory.
package store

import (
	"os"
	"path/filepath"
	"strconv"

	"github.com/gofrs/flock"

	"mreplay/event"
	cerrors "mreplay/errors"
)

// ScratchDirName is the scratch directory's fixed name, created relative
// to the working directory the explorer is invoked from.
const ScratchDirName = ".mreplay"

// lockFileName is the advisory lock spec.md §5 names ("Shared resources").
const lockFileName = ".lock"

// RootExecutionID is the id the root (unmutated) log is written under.
const RootExecutionID = "0"

// Store owns one scratch directory and its advisory lock.
type Store struct {
	Dir  string
	lock *flock.Flock
}

// Open creates dir if needed, acquires its advisory lock, and then removes
// every stale entry in it except the lock file. Callers must Close the Store
// when exploration ends.
func Open(dir string) (*Store, error) {
	if dir == "" {
		dir = ScratchDirName
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, cerrors.Wrap(err, cerrors.ErrIO, "store open")
	}

	lock := flock.New(filepath.Join(dir, lockFileName))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, cerrors.Wrap(err, cerrors.ErrIO, "store open")
	}
	if !locked {
		return nil, cerrors.ErrScratchLocked
	}

	entries, _ := os.ReadDir(dir)
	for _, ent := range entries {
		if ent.Name() != lockFileName {
			if err := os.RemoveAll(filepath.Join(dir, ent.Name())); err != nil {
				lock.Unlock()
				return nil, cerrors.Wrap(err, cerrors.ErrIO, "store open")
			}
		}
	}

	return &Store{Dir: dir, lock: lock}, nil
}

// Close releases the scratch lock. The scratch directory's contents are
// left on disk for inspection after the run.
func (s *Store) Close() error {
	if s.lock == nil {
		return nil
	}
	if err := s.lock.Unlock(); err != nil {
		return cerrors.Wrap(err, cerrors.ErrIO, "store close")
	}
	return nil
}

// Path returns the on-disk path for an execution id's log.
func (s *Store) Path(id string) string {
	return filepath.Join(s.Dir, id)
}

// WriteLog atomically writes events as the log for execution id (spec.md
// §6 "Output format": "written atomically to <scratch>/<execution-id>").
func (s *Store) WriteLog(id string, events []*event.Raw) error {
	if err := event.WriteLog(s.Path(id), events); err != nil {
		return cerrors.WrapWithExecution(err, cerrors.ErrIO, "write log", id)
	}
	return nil
}

// WriteRootLog writes the unmutated input log under the reserved root id.
func (s *Store) WriteRootLog(events []*event.Raw) error {
	return s.WriteLog(RootExecutionID, events)
}

// OpenLog memory-maps the log for execution id for reading.
func (s *Store) OpenLog(id string) (*event.Log, error) {
	log, err := event.OpenLog(s.Path(id))
	if err != nil {
		return nil, cerrors.WrapWithExecution(err, cerrors.ErrNotFound, "open log", id)
	}
	return log, nil
}

// IDFromInt renders an execution's integer id the way the scratch
// directory keys it.
func IDFromInt(n int) string {
	return strconv.Itoa(n)
}
