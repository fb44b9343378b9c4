package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type recordingT struct {
	msg string
}

func (r *recordingT) Fatalf(format string, args ...any) { r.msg = fmt.Sprintf(format, args...) }

func writeFile(t *testing.T, dir, name, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestDirectImportViolations(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.go", "package x\n\nimport (\n\t\"fmt\"\n\t\"shelterhub/internal/core\"\n)\n\nvar _ = fmt.Sprint\nvar _ core.Cat\n")
	writeFile(t, dir, "b_test.go", "package x\n\nimport \"shelterhub/internal/adapters/httpapi\"\n")
	writeFile(t, dir, "notes.txt", "import \"shelterhub/internal/x\"")

	viols, err := directImportViolations(dir, InternalImportForbidden)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(viols) != 1 || !strings.Contains(viols[0], "shelterhub/internal/core (in a.go)") {
		t.Fatalf("unexpected violations %v", viols)
	}

	viols, err = directImportViolations(dir, AdapterImportForbidden)
	if err != nil || len(viols) != 0 {
		t.Fatalf("test files must be ignored, got %v err=%v", viols, err)
	}
}

func TestDirectImportViolationsParseError(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "broken.go", "package x\nimport (\n")
	if _, err := directImportViolations(dir, InternalImportForbidden); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestFailIfDirectViolations(t *testing.T) {
	rec := &recordingT{}
	failIfDirectViolations(rec, "layering", nil)
	if rec.msg != "" {
		t.Fatalf("unexpected failure %q", rec.msg)
	}
	failIfDirectViolations(rec, "layering", []string{"net/http (in a.go)"})
	if !strings.Contains(rec.msg, "layering") || !strings.Contains(rec.msg, "net/http") {
		t.Fatalf("unexpected message %q", rec.msg)
	}
}

func TestPredicates(t *testing.T) {
	if !AdapterImportForbidden("net/http") || !AdapterImportForbidden("shelterhub/internal/adapters/backup") {
		t.Fatalf("expected adapters forbidden")
	}
	if AdapterImportForbidden("shelterhub/internal/blob") || InternalImportForbidden("shelterhub/pkg/domain") {
		t.Fatalf("unexpected match")
	}
}
