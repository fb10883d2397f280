package shutdown

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestWriteCrashDumpUsesArtifactRoot(t *testing.T) {
	root := t.TempDir()
	t.Setenv("CAPSULED_ARTIFACT_ROOT", root)

	path, err := WriteCrashDump("", "db open failed", errors.New("disk full"))
	if err != nil {
		t.Fatalf("WriteCrashDump: %v", err)
	}
	if !strings.HasPrefix(path, filepath.Join(root, "crash")) {
		t.Fatalf("dump written outside artifact root: %s", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !strings.Contains(string(data), "reason: db open failed") {
		t.Fatalf("dump missing reason:\n%s", data)
	}
	if !strings.Contains(string(data), "goroutine stacks") {
		t.Fatalf("dump missing stacks:\n%s", data)
	}
}
