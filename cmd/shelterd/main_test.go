package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func setupEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("SHELTERHUB_STORAGE_DRIVER", "sqlite")
	t.Setenv("SHELTERHUB_SQLITE_PATH", filepath.Join(dir, "shelter.db"))
	t.Setenv("SHELTERHUB_BLOB_DRIVER", "fs")
	t.Setenv("SHELTERHUB_BLOB_FS_ROOT", filepath.Join(dir, "blobs"))
	t.Setenv("SHELTERHUB_BCRYPT_COST", "4")
	t.Setenv("SHELTERHUB_LOG_LEVEL", "error")
	return dir
}

func run(t *testing.T, dir string, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--env-file", filepath.Join(dir, "missing.env")}, args...))
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		t.Fatalf("shelterd %s: %v\n%s", strings.Join(args, " "), err, out.String())
	}
	return out.String()
}

func TestSeedUserAndBackupCommands(t *testing.T) {
	dir := setupEnv(t)
	seedPath := filepath.Join(dir, "seed.yaml")
	doc := "wards:\n  - name: North\n    cages:\n      - label: N1\n        capacity: 2\nteams:\n  - name: Vets\nusers:\n  - email: admin@shelter.test\n    name: Ada\n    role: admin\n    password: admin-password\n"
	if err := os.WriteFile(seedPath, []byte(doc), 0o600); err != nil {
		t.Fatalf("write seed: %v", err)
	}

	out := run(t, dir, "seed", seedPath)
	var sum struct {
		WardsCreated int `json:"wards_created"`
		UsersCreated int `json:"users_created"`
	}
	if err := json.Unmarshal([]byte(out), &sum); err != nil {
		t.Fatalf("decode summary %q: %v", out, err)
	}
	if sum.WardsCreated != 1 || sum.UsersCreated != 1 {
		t.Fatalf("unexpected seed summary %s", out)
	}

	run(t, dir, "user", "add", "--email", "vet@shelter.test", "--name", "Val", "--role", "caretaker", "--team", "Vets", "--password", "caretaker-pw")
	out = run(t, dir, "user", "role", "vet@shelter.test", "manager")
	if !strings.Contains(out, `"manager"`) {
		t.Fatalf("expected promoted user, got %s", out)
	}
	out = run(t, dir, "user", "list")
	if !strings.Contains(out, "admin@shelter.test") || !strings.Contains(out, "vet@shelter.test") {
		t.Fatalf("expected both users listed, got %s", out)
	}

	out = run(t, dir, "backup", "--reason", "test")
	if !strings.Contains(out, `"succeeded"`) {
		t.Fatalf("expected succeeded backup, got %s", out)
	}
	matches, err := filepath.Glob(filepath.Join(dir, "blobs", "backups", "*.json"))
	if err != nil || len(matches) != 1 {
		t.Fatalf("expected one backup object, got %v err=%v", matches, err)
	}
	var record struct {
		ID  string `json:"id"`
		Key string `json:"key"`
	}
	if err := json.Unmarshal([]byte(out), &record); err != nil {
		t.Fatalf("decode backup record %q: %v", out, err)
	}

	run(t, dir, "user", "add", "--email", "late@shelter.test", "--role", "volunteer", "--password", "volunteer-pw")
	out = run(t, dir, "backup", "restore", record.Key)
	if !strings.Contains(out, record.ID) {
		t.Fatalf("expected restored backup id, got %s", out)
	}
	out = run(t, dir, "user", "list")
	if strings.Contains(out, "late@shelter.test") || !strings.Contains(out, "vet@shelter.test") {
		t.Fatalf("expected state from the backup after restore, got %s", out)
	}
}

func TestUserAddRequiresPassword(t *testing.T) {
	dir := setupEnv(t)
	t.Setenv("SHELTERHUB_NEW_USER_PASSWORD", "")
	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--env-file", filepath.Join(dir, "missing.env"), "user", "add", "--email", "x@shelter.test", "--role", "admin"})
	if err := cmd.ExecuteContext(context.Background()); err == nil || !strings.Contains(err.Error(), "password required") {
		t.Fatalf("expected password error, got %v", err)
	}
}

func TestServeRequiresTokenSecret(t *testing.T) {
	dir := setupEnv(t)
	t.Setenv("SHELTERHUB_TOKEN_SECRET", "")
	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--env-file", filepath.Join(dir, "missing.env"), "serve"})
	if err := cmd.ExecuteContext(context.Background()); err == nil || !strings.Contains(err.Error(), "SHELTERHUB_TOKEN_SECRET") {
		t.Fatalf("expected token secret error, got %v", err)
	}
}
