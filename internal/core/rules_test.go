package core

import (
	"context"
	"errors"
	"testing"

	"shelterhub/pkg/domain"
)

func TestDefaultRulesEngineRegistersBuiltins(t *testing.T) {
	names := NewDefaultRulesEngine().Rules()
	want := []string{"cage_capacity", "departed_cat_housing", "treatment_subject_status", "user_admin_presence"}
	if len(names) != len(want) {
		t.Fatalf("expected %d rules, got %v", len(want), names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("rule %d: want %s got %s", i, want[i], names[i])
		}
	}
}

func TestCageCapacityBlocksOverfill(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	_, cage := seedCage(t, svc, 1)
	first := intake(t, svc, "One")
	second := intake(t, svc, "Two")

	if _, _, err := svc.PlaceCat(ctx, first.ID, cage.ID); err != nil {
		t.Fatalf("place first: %v", err)
	}
	_, res, err := svc.PlaceCat(ctx, second.ID, cage.ID)
	var violation RuleViolationError
	if !errors.As(err, &violation) {
		t.Fatalf("expected rule violation, got %v", err)
	}
	if !hasViolation(res, "cage_capacity", domain.SeverityBlock) {
		t.Fatalf("expected cage_capacity violation, got %+v", res)
	}
	got, err := svc.GetCat(ctx, second.ID)
	if err != nil {
		t.Fatalf("get cat: %v", err)
	}
	if got.Housed() {
		t.Fatalf("expected blocked placement to leave cat unhoused")
	}

	if _, _, err := svc.UpdateCage(ctx, cage.ID, func(c *Cage) error {
		c.Capacity = 2
		return nil
	}); err != nil {
		t.Fatalf("grow cage: %v", err)
	}
	if _, _, err := svc.PlaceCat(ctx, second.ID, cage.ID); err != nil {
		t.Fatalf("place after growth: %v", err)
	}
	if _, _, err := svc.UpdateCage(ctx, cage.ID, func(c *Cage) error {
		c.Capacity = 1
		return nil
	}); !errors.As(err, &violation) {
		t.Fatalf("expected shrink below occupancy to be blocked, got %v", err)
	}
}

func TestDepartedCatHousingRule(t *testing.T) {
	rule := NewDepartedCatHousingRule()
	cageID := "cage-1"
	cat := domain.Cat{Base: domain.Base{ID: "cat-1"}, Name: "Gone", Status: domain.CatStatusAdopted, CageID: &cageID}
	view := stubView{cats: []domain.Cat{cat}}
	res, err := rule.Evaluate(context.Background(), view, []domain.Change{{Entity: domain.EntityCat, Action: domain.ActionUpdate, After: cat}})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !res.HasBlocking() {
		t.Fatalf("expected blocking violation for housed departed cat")
	}
	res, _ = rule.Evaluate(context.Background(), view, nil)
	if len(res.Violations) != 0 {
		t.Fatalf("expected untouched cats to be skipped")
	}
}

func TestAdminPresenceRequiresFirstAdmin(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	_, res, err := svc.CreateUser(ctx, NewUser{Email: "vol@example.org", Password: "password1", Role: domain.RoleVolunteer})
	var violation RuleViolationError
	if !errors.As(err, &violation) || !hasViolation(res, "user_admin_presence", domain.SeverityBlock) {
		t.Fatalf("expected admin presence violation, got %v", err)
	}

	admin, _, err := svc.CreateUser(ctx, NewUser{Email: "admin@example.org", Password: "password1", Role: domain.RoleAdmin})
	if err != nil {
		t.Fatalf("create admin: %v", err)
	}
	if _, _, err := svc.DeactivateUser(ctx, admin.ID); !errors.As(err, &violation) {
		t.Fatalf("expected deactivating last admin to be blocked, got %v", err)
	}
	if _, _, err := svc.UpdateUserRole(ctx, admin.ID, domain.RoleManager); !errors.As(err, &violation) {
		t.Fatalf("expected demoting last admin to be blocked, got %v", err)
	}
	second, _, err := svc.CreateUser(ctx, NewUser{Email: "second@example.org", Password: "password1", Role: domain.RoleAdmin})
	if err != nil {
		t.Fatalf("create second admin: %v", err)
	}
	if _, _, err := svc.UpdateUserRole(ctx, admin.ID, domain.RoleManager); err != nil {
		t.Fatalf("demote with another admin present: %v", err)
	}
	if second.PasswordHash != "" {
		t.Fatalf("expected password hash to be stripped from results")
	}
}

type stubView struct {
	cats []domain.Cat
}

func (stubView) ListWards() []domain.Ward                { return nil }
func (stubView) ListCages() []domain.Cage                { return nil }
func (v stubView) ListCats() []domain.Cat                { return v.cats }
func (stubView) ListTreatments() []domain.Treatment      { return nil }
func (stubView) ListDonations() []domain.Donation        { return nil }
func (stubView) ListLedgerEntries() []domain.LedgerEntry { return nil }
func (stubView) ListTeams() []domain.Team                { return nil }
func (stubView) ListUsers() []domain.User                { return nil }
func (stubView) FindWard(string) (domain.Ward, bool)     { return domain.Ward{}, false }
func (stubView) FindCage(string) (domain.Cage, bool)     { return domain.Cage{}, false }
func (v stubView) FindCat(id string) (domain.Cat, bool) {
	for _, c := range v.cats {
		if c.ID == id {
			return c, true
		}
	}
	return domain.Cat{}, false
}
func (stubView) FindTreatment(string) (domain.Treatment, bool) { return domain.Treatment{}, false }
func (stubView) FindDonation(string) (domain.Donation, bool)   { return domain.Donation{}, false }
func (stubView) FindLedgerEntry(string) (domain.LedgerEntry, bool) {
	return domain.LedgerEntry{}, false
}
func (stubView) FindTeam(string) (domain.Team, bool)        { return domain.Team{}, false }
func (stubView) FindUser(string) (domain.User, bool)        { return domain.User{}, false }
func (stubView) FindUserByEmail(string) (domain.User, bool) { return domain.User{}, false }
