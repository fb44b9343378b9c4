package core

import (
	"context"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"shelterhub/pkg/domain"
)

var fixedNow = time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)

func newTestService(t *testing.T, opts ...Option) *Service {
	t.Helper()
	base := []Option{
		WithBcryptCost(bcrypt.MinCost),
		WithClock(ClockFunc(func() time.Time { return fixedNow })),
	}
	return NewInMemoryService(NewDefaultRulesEngine(), append(base, opts...)...)
}

func seedCage(t *testing.T, svc *Service, capacity int) (Ward, Cage) {
	t.Helper()
	ctx := context.Background()
	ward, _, err := svc.CreateWard(ctx, Ward{Name: "Main"})
	if err != nil {
		t.Fatalf("create ward: %v", err)
	}
	cage, _, err := svc.CreateCage(ctx, Cage{Label: "C1", WardID: ward.ID, Capacity: capacity})
	if err != nil {
		t.Fatalf("create cage: %v", err)
	}
	return ward, cage
}

func intake(t *testing.T, svc *Service, name string) Cat {
	t.Helper()
	cat, _, err := svc.IntakeCat(context.Background(), Cat{Name: name})
	if err != nil {
		t.Fatalf("intake %s: %v", name, err)
	}
	return cat
}

func hasViolation(res Result, rule string, severity domain.Severity) bool {
	for _, v := range res.Violations {
		if v.Rule == rule && v.Severity == severity {
			return true
		}
	}
	return false
}

func strPtr(s string) *string { return &s }
