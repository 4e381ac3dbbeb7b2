// Package isolation wraps each replay in a union-mounted chroot, matching
// spec.md §5 ("Isolation") and the external environment preconditions of
// spec.md §6. It is the Go realization of the original execute.py
// ExecuteJail: a disposable root built from a union mount over the host
// filesystem, with /proc and /dev bind-mounted in and a marker file
// identifying the scratch root.
package isolation

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"

	"github.com/cenkalti/backoff"

	cerrors "mreplay/errors"
	"mreplay/logging"
)

// JailedMarker is the file that identifies a scratch root as jailed.
const JailedMarker = ".JAILED"

// Jail is a disposable chroot built from a union mount over Root.
// It mirrors execute.py's ExecuteJail: Open() performs the union mount
// and binds /proc, /dev (and an optional persistent path); Close()
// unwinds every bind in reverse order and tears down the union mount.
type Jail struct {
	// Root is the read-only lower layer (defaults to "/").
	Root string
	// Scratch is the writable upper layer; created under a temp dir if empty.
	Scratch string
	// Chroot is the union mount point; created under a temp dir if empty.
	Chroot string
	// Persist is an optional extra host path bind-mounted into the jail.
	Persist string

	bound   []string
	mounted bool
	rmdirs  []string
}

// CheckEnvironment verifies the preconditions spec.md §6 names for the
// isolated mode: the operator is root or sudo is available, and the
// unionfs-fuse helper used for the union mount is on PATH.
func CheckEnvironment() error {
	if os.Geteuid() != 0 {
		if _, err := exec.LookPath("sudo"); err != nil {
			return cerrors.WrapWithDetail(err, cerrors.ErrPermission, "check environment",
				"not running as root and sudo is not available")
		}
	}
	if _, err := exec.LookPath("unionfs-fuse"); err != nil {
		return cerrors.WrapWithDetail(err, cerrors.ErrPermission, "check environment",
			"unionfs-fuse not found on PATH")
	}
	return nil
}

// IsJailed reports whether the current process root is a jailed scratch root.
func IsJailed() bool {
	_, err := os.Stat(filepath.Join("/", JailedMarker))
	return err == nil
}

func sudo(ctx context.Context, args ...string) error {
	cmd := args
	if os.Geteuid() != 0 {
		cmd = append([]string{"sudo"}, args...)
	}
	c := exec.CommandContext(ctx, cmd[0], cmd[1:]...)
	out, err := c.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s: %w: %s", cmd, err, out)
	}
	return nil
}

// withMountRetry retries a mount/unmount operation a few times with a
// short exponential backoff, absorbing the transient EBUSY races that
// union filesystem teardown can leave behind (see SPEC_FULL.md §5
// "Isolation mount retry").
func withMountRetry(ctx context.Context, op func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 50 * time.Millisecond
	b.MaxElapsedTime = 2 * time.Second
	return backoff.Retry(func() error {
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(err)
		}
		return op()
	}, b)
}

// Open establishes the union mount and binds /proc, /dev, and Persist.
func (j *Jail) Open(ctx context.Context) (err error) {
	if j.mounted {
		return cerrors.New(cerrors.ErrInvalidState, "jail open", "already mounted")
	}
	if j.Root == "" {
		j.Root = "/"
	}

	isolateDir := "/tmp/isolate"
	if err := os.MkdirAll(isolateDir, 0777); err != nil && !os.IsExist(err) {
		return cerrors.Wrap(err, cerrors.ErrIO, "jail open")
	}
	if j.Scratch == "" {
		dir, err := os.MkdirTemp(isolateDir, "scratch-")
		if err != nil {
			return cerrors.Wrap(err, cerrors.ErrIO, "jail open")
		}
		os.Chmod(dir, 0777)
		j.Scratch = dir
		j.rmdirs = append(j.rmdirs, dir)
	}
	if j.Chroot == "" {
		dir, err := os.MkdirTemp(isolateDir, "chroot-")
		if err != nil {
			return cerrors.Wrap(err, cerrors.ErrIO, "jail open")
		}
		os.Chmod(dir, 0777)
		j.Chroot = dir
		j.rmdirs = append(j.rmdirs, dir)
	}

	if err := sudo(ctx, "touch", filepath.Join(j.Scratch, JailedMarker)); err != nil {
		return cerrors.Wrap(err, cerrors.ErrMountFailed.Kind, "jail open")
	}

	mountDirs := fmt.Sprintf("%s=rw:%s=ro", mustAbs(j.Scratch), mustAbs(j.Root))
	mountPoint := mustAbs(j.Chroot)

	mountErr := withMountRetry(ctx, func() error {
		return sudo(ctx, "unionfs-fuse", "-o",
			"cow,allow_other,use_ino,suid,dev,nonempty,max_files=32768",
			mountDirs, mountPoint)
	})
	if mountErr != nil {
		return cerrors.Wrap(mountErr, cerrors.ErrMountFailed.Kind, "union mount")
	}
	j.mounted = true

	defer func() {
		if err != nil {
			j.Close(ctx)
		}
	}()

	if err = j.bind(ctx, "/proc"); err != nil {
		return err
	}
	if err = j.bind(ctx, "/dev"); err != nil {
		return err
	}
	if j.Persist != "" {
		if err = j.bind(ctx, j.Persist); err != nil {
			return err
		}
	}

	return nil
}

// bind bind-mounts a host directory into the chroot at the same relative path.
func (j *Jail) bind(ctx context.Context, dir string) error {
	if dir == "" || dir[0] != '/' {
		return cerrors.New(cerrors.ErrInvalidConfig, "jail bind", "path must be absolute: "+dir)
	}
	mountPoint := filepath.Join(j.Chroot, dir[1:])
	err := withMountRetry(ctx, func() error {
		return sudo(ctx, "mount", "-o", "bind", dir, mountPoint)
	})
	if err != nil {
		return cerrors.Wrap(err, cerrors.ErrMountFailed.Kind, "jail bind "+dir)
	}
	j.bound = append(j.bound, dir)
	return nil
}

// unbind tears down one bind mount. Errors are logged, not fatal, so
// Close still attempts to unwind the remaining mounts (and the union
// mount itself) even if one bind is stuck.
func (j *Jail) unbind(ctx context.Context, dir string) {
	mountPoint := filepath.Join(j.Chroot, dir[1:])
	if err := withMountRetry(ctx, func() error {
		return sudo(ctx, "umount", "-l", mountPoint)
	}); err != nil {
		logging.WarnContext(ctx, "failed to unbind jail mount", "path", dir, "error", err)
	}
}

// Prepare runs inside the jailed child before the replayed program
// starts: it changes into Chroot and chroots there. It does not remount
// /proc; the jailed process sees the /proc bind mount that Open made.
func (j *Jail) Prepare() error {
	if err := os.Chdir(j.Chroot); err != nil {
		return cerrors.Wrap(err, cerrors.ErrIO, "jail prepare")
	}
	if err := syscall.Chroot("."); err != nil {
		return cerrors.Wrap(err, cerrors.ErrPermission, "jail prepare")
	}
	if err := os.Chdir("/"); err != nil {
		return cerrors.Wrap(err, cerrors.ErrIO, "jail prepare")
	}
	return nil
}

// Close unwinds every bind mount and the union mount, then removes the
// scratch and chroot temp directories this Jail created.
func (j *Jail) Close(ctx context.Context) error {
	if !j.mounted {
		return nil
	}

	for i := len(j.bound) - 1; i >= 0; i-- {
		j.unbind(ctx, j.bound[i])
	}
	j.bound = nil

	if err := withMountRetry(ctx, func() error {
		return sudo(ctx, "fusermount", "-z", "-u", j.Chroot)
	}); err != nil {
		logging.WarnContext(ctx, "failed to tear down union mount", "chroot", j.Chroot, "error", err)
	}

	for _, d := range j.rmdirs {
		sudo(ctx, "rm", "-rf", d)
	}

	j.mounted = false
	return nil
}

func mustAbs(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	return abs
}
