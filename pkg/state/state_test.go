package state

import (
	"os"
	"path/filepath"
	"testing"
)

func TestEnsureStateDirsCreatesLayout(t *testing.T) {
	db := t.TempDir()
	if err := EnsureStateDirs(db); err != nil {
		t.Fatalf("EnsureStateDirs failed: %v", err)
	}
	for _, p := range []string{StorePath(db), AuditDir(db), CrashDir(db), TmpDir(db)} {
		fi, err := os.Stat(p)
		if err != nil {
			t.Fatalf("stat %s: %v", p, err)
		}
		if !fi.IsDir() {
			t.Fatalf("%s is not a directory", p)
		}
		if fi.Mode().Perm()&0o022 != 0 {
			t.Fatalf("%s has permissive mode %v", p, fi.Mode().Perm())
		}
	}

	// idempotent on an existing layout
	if err := EnsureStateDirs(db); err != nil {
		t.Fatalf("second EnsureStateDirs failed: %v", err)
	}
}

func TestEnsureStateDirsRejectsSymlink(t *testing.T) {
	db := t.TempDir()
	real := filepath.Join(t.TempDir(), "real")
	if err := os.MkdirAll(real, 0o700); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.MkdirAll(filepath.Dir(StorePath(db)), 0o700); err != nil {
		t.Fatalf("mkdir parent: %v", err)
	}
	if err := os.Symlink(real, StorePath(db)); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}
	if err := EnsureStateDirs(db); err == nil {
		t.Fatalf("expected symlink rejection")
	}
}

func TestEnsureStateDirsRejectsPermissiveMode(t *testing.T) {
	db := t.TempDir()
	if err := os.MkdirAll(StorePath(db), 0o700); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.Chmod(StorePath(db), 0o777); err != nil {
		t.Fatalf("chmod: %v", err)
	}
	if err := EnsureStateDirs(db); err == nil {
		t.Fatalf("expected permissive mode rejection")
	}
}

func TestEnsureStateDirsRejectsFileCollision(t *testing.T) {
	db := t.TempDir()
	if err := os.MkdirAll(filepath.Join(db, "state"), 0o700); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(AuditDir(db), []byte("x"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := EnsureStateDirs(db); err == nil {
		t.Fatalf("expected non-directory rejection")
	}
}
