package core

import (
	"context"

	"shelterhub/pkg/domain"
)

// NewAdminPresenceRule keeps at least one active admin once any account exists.
func NewAdminPresenceRule() domain.Rule {
	return adminPresenceRule{}
}

type adminPresenceRule struct{}

func (adminPresenceRule) Name() string { return "user_admin_presence" }

func (adminPresenceRule) Evaluate(_ context.Context, view domain.TransactionView, changes []domain.Change) (domain.Result, error) {
	userChanged := false
	for _, change := range changes {
		if change.Entity == domain.EntityUser {
			userChanged = true
			break
		}
	}
	if !userChanged {
		return domain.Result{}, nil
	}
	users := view.ListUsers()
	if len(users) == 0 {
		return domain.Result{}, nil
	}
	for _, user := range users {
		if user.Active && user.Role == domain.RoleAdmin {
			return domain.Result{}, nil
		}
	}
	return domain.Result{Violations: []domain.Violation{{
		Rule:     "user_admin_presence",
		Severity: domain.SeverityBlock,
		Message:  "at least one active admin account is required",
		Entity:   domain.EntityUser,
	}}}, nil
}
