package isolation

import (
	"context"
	"testing"
)

func TestJail_BindRejectsRelativePath(t *testing.T) {
	j := &Jail{Chroot: "/tmp/chroot-test"}
	if err := j.bind(context.Background(), "relative/path"); err == nil {
		t.Error("bind with a relative path should fail")
	}
}

func TestJail_OpenRejectsDoubleOpen(t *testing.T) {
	j := &Jail{mounted: true}
	if err := j.Open(context.Background()); err == nil {
		t.Error("Open on an already-mounted jail should fail")
	}
}

func TestJail_CloseNoopWhenNotMounted(t *testing.T) {
	j := &Jail{}
	if err := j.Close(context.Background()); err != nil {
		t.Errorf("Close on an unmounted jail should be a no-op, got: %v", err)
	}
}

func TestIsJailed_FalseOutsideJail(t *testing.T) {
	// The test process's root is not expected to carry a .JAILED marker.
	if IsJailed() {
		t.Skip("test environment unexpectedly has a .JAILED marker at /")
	}
}

func TestMustAbs(t *testing.T) {
	if got := mustAbs("."); got == "." {
		t.Error("mustAbs(\".\") should resolve to an absolute path")
	}
}
