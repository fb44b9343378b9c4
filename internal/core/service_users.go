package core

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"shelterhub/pkg/domain"
)

// ErrInvalidCredentials is returned when authentication fails for any reason.
var ErrInvalidCredentials = errors.New("invalid email or password")

// MinPasswordLength is the shortest accepted password.
const MinPasswordLength = 8

// NewUser carries the fields accepted when creating an account.
type NewUser struct {
	Email    string
	Name     string
	Password string
	Role     Role
	TeamID   *string
}

func sanitizeUser(u User) User {
	u.PasswordHash = ""
	return u
}

// CreateTeam persists a new team.
func (s *Service) CreateTeam(ctx context.Context, team Team) (Team, Result, error) {
	ctx, done := s.begin(ctx, "create_team")
	var created Team
	res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
		var err error
		created, err = tx.CreateTeam(team)
		return err
	})
	done(created.ID, res, err)
	return created, res, err
}

// DeleteTeam removes a team without members.
func (s *Service) DeleteTeam(ctx context.Context, id string) (Result, error) {
	ctx, done := s.begin(ctx, "delete_team")
	res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
		return tx.DeleteTeam(id)
	})
	done(id, res, err)
	return res, err
}

// CreateUser hashes the password and stores an active account. The first
// account must be an admin.
func (s *Service) CreateUser(ctx context.Context, input NewUser) (User, Result, error) {
	ctx, done := s.begin(ctx, "create_user")
	if len(input.Password) < MinPasswordLength {
		err := domain.ValidationError{Entity: domain.EntityUser, Field: "password", Message: fmt.Sprintf("must be at least %d characters", MinPasswordLength)}
		done("", Result{}, err)
		return User{}, Result{}, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), s.bcryptCost)
	if err != nil {
		err = fmt.Errorf("hash password: %w", err)
		done("", Result{}, err)
		return User{}, Result{}, err
	}
	var created User
	res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
		var err error
		created, err = tx.CreateUser(User{
			Email:        input.Email,
			Name:         input.Name,
			PasswordHash: string(hash),
			Role:         input.Role,
			TeamID:       input.TeamID,
			Active:       true,
		})
		return err
	})
	done(created.ID, res, err)
	return sanitizeUser(created), res, err
}

func (s *Service) mutateUser(ctx context.Context, op, id string, mutator func(*User) error) (User, Result, error) {
	ctx, done := s.begin(ctx, op)
	var updated User
	res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
		var err error
		updated, err = tx.UpdateUser(id, mutator)
		return err
	})
	done(id, res, err)
	return sanitizeUser(updated), res, err
}

// UpdateUserRole changes a user's role. Demoting the last active admin is
// blocked by the user_admin_presence rule.
func (s *Service) UpdateUserRole(ctx context.Context, id string, role Role) (User, Result, error) {
	return s.mutateUser(ctx, "update_user_role", id, func(u *User) error {
		u.Role = role
		return nil
	})
}

// AssignUserTeam moves a user into a team, or out of any team when teamID is nil.
func (s *Service) AssignUserTeam(ctx context.Context, id string, teamID *string) (User, Result, error) {
	return s.mutateUser(ctx, "assign_user_team", id, func(u *User) error {
		u.TeamID = teamID
		return nil
	})
}

// DeactivateUser disables sign-in for a user.
func (s *Service) DeactivateUser(ctx context.Context, id string) (User, Result, error) {
	return s.mutateUser(ctx, "deactivate_user", id, func(u *User) error {
		u.Active = false
		return nil
	})
}

// Authenticate verifies credentials and returns the matching active user.
func (s *Service) Authenticate(ctx context.Context, email, password string) (User, error) {
	ctx, done := s.begin(ctx, "authenticate")
	var user User
	var found bool
	err := s.view(ctx, func(v TransactionView) error {
		user, found = v.FindUserByEmail(email)
		return nil
	})
	if err == nil {
		hash := []byte(user.PasswordHash)
		if !found {
			hash = s.decoyHash()
		}
		mismatch := bcrypt.CompareHashAndPassword(hash, []byte(password)) != nil
		if !found || !user.Active || mismatch {
			err = ErrInvalidCredentials
		}
	}
	done(user.ID, Result{}, err)
	if err != nil {
		return User{}, err
	}
	return sanitizeUser(user), nil
}

// GetUser returns a single user without its password hash.
func (s *Service) GetUser(ctx context.Context, id string) (User, error) {
	var user User
	err := s.view(ctx, func(v TransactionView) error {
		found, ok := v.FindUser(id)
		if !ok {
			return domain.NotFoundError{Entity: domain.EntityUser, ID: id}
		}
		user = sanitizeUser(found)
		return nil
	})
	return user, err
}

// FindUserByEmail looks up a user by address.
func (s *Service) FindUserByEmail(ctx context.Context, email string) (User, error) {
	var user User
	err := s.view(ctx, func(v TransactionView) error {
		found, ok := v.FindUserByEmail(email)
		if !ok {
			return domain.NotFoundError{Entity: domain.EntityUser, ID: domain.NormalizeEmail(email)}
		}
		user = sanitizeUser(found)
		return nil
	})
	return user, err
}

// ListUsers returns users ordered by email, without password hashes.
func (s *Service) ListUsers(ctx context.Context) ([]User, error) {
	ctx, done := s.begin(ctx, "list_users")
	var out []User
	err := s.view(ctx, func(v TransactionView) error {
		users := v.ListUsers()
		out = make([]User, 0, len(users))
		for _, u := range users {
			out = append(out, sanitizeUser(u))
		}
		return nil
	})
	done("", Result{}, err)
	return out, err
}

// ListTeams returns teams ordered by name.
func (s *Service) ListTeams(ctx context.Context) ([]Team, error) {
	ctx, done := s.begin(ctx, "list_teams")
	var out []Team
	err := s.view(ctx, func(v TransactionView) error {
		out = v.ListTeams()
		return nil
	})
	done("", Result{}, err)
	return out, err
}
