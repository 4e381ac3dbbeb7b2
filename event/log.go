package event

import (
	"os"

	"golang.org/x/sys/unix"

	cerrors "mreplay/errors"
)

// Log is a memory-mapped, read-only view of a recorded event log, matching
// spec.md §6 ("a binary log of recorded events consumed via memory-mapped
// read").
type Log struct {
	file *os.File
	data []byte
}

// OpenLog mmaps path for reading.
func OpenLog(path string) (*Log, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, cerrors.Wrap(err, cerrors.ErrIO, "open log")
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, cerrors.Wrap(err, cerrors.ErrIO, "stat log")
	}
	if info.Size() == 0 {
		return &Log{file: f, data: nil}, nil
	}
	data, err := unix.Mmap(int(f.Fd()), 0, int(info.Size()), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, cerrors.Wrap(err, cerrors.ErrIO, "mmap log")
	}
	return &Log{file: f, data: data}, nil
}

// Close unmaps the log and closes the underlying file.
func (l *Log) Close() error {
	var err error
	if l.data != nil {
		err = unix.Munmap(l.data)
		l.data = nil
	}
	if cerr := l.file.Close(); err == nil {
		err = cerr
	}
	return err
}

// Events decodes every record in the mapped region, in file order.
func (l *Log) Events() ([]*Raw, error) {
	var out []*Raw
	b := l.data
	for len(b) > 0 {
		r, n, err := Decode(b)
		if err != nil {
			return nil, cerrors.Wrap(err, cerrors.ErrIO, "decode log")
		}
		out = append(out, r)
		b = b[n:]
	}
	return out, nil
}

// WriteLog atomically writes a sequence of encoded records to path, matching
// spec.md §6 ("written atomically to <scratch>/<execution-id>"). It writes to
// a temp file in the same directory and renames into place so a partially
// written file is never observed at path.
func WriteLog(path string, events []*Raw) error {
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return cerrors.Wrap(err, cerrors.ErrIO, "create log")
	}
	for _, e := range events {
		if _, err := f.Write(e.Encode()); err != nil {
			f.Close()
			os.Remove(tmp)
			return cerrors.Wrap(err, cerrors.ErrIO, "write log")
		}
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return cerrors.Wrap(err, cerrors.ErrIO, "close log")
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return cerrors.Wrap(err, cerrors.ErrIO, "rename log")
	}
	return nil
}
