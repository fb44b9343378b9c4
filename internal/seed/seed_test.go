package seed

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"shelterhub/internal/core"
	"shelterhub/pkg/domain"
)

const sampleSeed = `
wards:
  - name: East
    description: Quarantine wing
    cages:
      - label: E1
        capacity: 2
      - label: E2
        capacity: 1
  - name: West
    cages:
      - label: W1
        capacity: 4
teams:
  - name: Morning shift
users:
  - email: Carer@Shelter.test
    name: Cara
    role: caretaker
    team: Morning shift
    password: caretaker-pw
  - email: boss@shelter.test
    name: Bo
    role: admin
    password_env: SEED_TEST_ADMIN_PASSWORD
`

func newService() *core.Service {
	return core.NewInMemoryService(core.NewDefaultRulesEngine(), core.WithBcryptCost(bcrypt.MinCost))
}

func TestApplyCreatesAndIsIdempotent(t *testing.T) {
	t.Setenv("SEED_TEST_ADMIN_PASSWORD", "admin-password")
	f, err := Parse(strings.NewReader(sampleSeed))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	svc := newService()
	ctx := context.Background()

	sum, err := Apply(ctx, svc, f)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	want := Summary{WardsCreated: 2, CagesCreated: 3, TeamsCreated: 1, UsersCreated: 2}
	if sum != want {
		t.Fatalf("unexpected summary %+v", sum)
	}

	if _, err := svc.Authenticate(ctx, "boss@shelter.test", "admin-password"); err != nil {
		t.Fatalf("admin login: %v", err)
	}
	carer, err := svc.FindUserByEmail(ctx, "carer@shelter.test")
	if err != nil {
		t.Fatalf("find carer: %v", err)
	}
	if carer.Role != domain.RoleCaretaker || carer.TeamID == nil {
		t.Fatalf("unexpected carer %+v", carer)
	}

	again, err := Apply(ctx, svc, f)
	if err != nil {
		t.Fatalf("second apply: %v", err)
	}
	if again != (Summary{Skipped: 2 + 3 + 1 + 2}) {
		t.Fatalf("expected everything skipped, got %+v", again)
	}
	cages, err := svc.ListCages(ctx)
	if err != nil || len(cages) != 3 {
		t.Fatalf("expected 3 cages, got %d err=%v", len(cages), err)
	}
}

func TestParseRejectsInvalidDocuments(t *testing.T) {
	cases := map[string]string{
		"unknown key":   "wardz: []\n",
		"bad role":      "users:\n  - email: a@b.c\n    role: owner\n    password: longenough\n",
		"missing team":  "users:\n  - email: a@b.c\n    role: admin\n    team: Night\n    password: longenough\n",
		"no password":   "users:\n  - email: a@b.c\n    role: admin\n",
		"zero capacity": "wards:\n  - name: A\n    cages:\n      - label: A1\n        capacity: 0\n",
	}
	for name, doc := range cases {
		if _, err := Parse(strings.NewReader(doc)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
	if f, err := Parse(strings.NewReader("")); err != nil || len(f.Wards) != 0 {
		t.Fatalf("expected empty document to parse, err=%v", err)
	}
}

func TestApplyMissingPasswordEnv(t *testing.T) {
	f, err := Parse(strings.NewReader("users:\n  - email: x@shelter.test\n    role: admin\n    password_env: SEED_TEST_UNSET_PASSWORD\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	os.Unsetenv("SEED_TEST_UNSET_PASSWORD")
	if _, err := Apply(context.Background(), newService(), f); err == nil || !strings.Contains(err.Error(), "SEED_TEST_UNSET_PASSWORD") {
		t.Fatalf("expected unset env error, got %v", err)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.yaml")
	if err := os.WriteFile(path, []byte("teams:\n  - name: Vets\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	f, err := Load(path)
	if err != nil || len(f.Teams) != 1 || f.Teams[0].Name != "Vets" {
		t.Fatalf("unexpected load result %+v err=%v", f, err)
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected missing file error")
	}
}

func TestStarterSeedFile(t *testing.T) {
	t.Setenv("SHELTERHUB_SEED_ADMIN_PASSWORD", "admin-password")
	t.Setenv("SHELTERHUB_SEED_VET_PASSWORD", "vet-password")
	f, err := Load(filepath.Join("testdata", "shelter.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	sum, err := Apply(context.Background(), newService(), f)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if sum != (Summary{WardsCreated: 2, CagesCreated: 4, TeamsCreated: 2, UsersCreated: 2}) {
		t.Fatalf("unexpected summary %+v", sum)
	}
}
