// Package seed loads initial wards, cages, teams and staff accounts from YAML.
package seed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"shelterhub/internal/core"
	"shelterhub/pkg/domain"
)

// File is the YAML document layout.
type File struct {
	Wards []Ward `yaml:"wards"`
	Teams []Team `yaml:"teams"`
	Users []User `yaml:"users"`
}

// Ward declares a ward and its cages.
type Ward struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Cages       []Cage `yaml:"cages"`
}

// Cage declares a cage inside its ward.
type Cage struct {
	Label    string `yaml:"label"`
	Capacity int    `yaml:"capacity"`
}

// Team declares a staff team.
type Team struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

// User declares a staff account. PasswordEnv names an environment variable
// holding the password and takes precedence over Password.
type User struct {
	Email       string      `yaml:"email"`
	Name        string      `yaml:"name"`
	Role        domain.Role `yaml:"role"`
	Team        string      `yaml:"team"`
	Password    string      `yaml:"password"`
	PasswordEnv string      `yaml:"password_env"`
}

// Summary counts what Apply created and what already existed.
type Summary struct {
	WardsCreated int `json:"wards_created"`
	CagesCreated int `json:"cages_created"`
	TeamsCreated int `json:"teams_created"`
	UsersCreated int `json:"users_created"`
	Skipped      int `json:"skipped"`
}

// Parse decodes a seed document, rejecting unknown keys.
func Parse(r io.Reader) (File, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var f File
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return File{}, nil
		}
		return File{}, fmt.Errorf("parse seed: %w", err)
	}
	return f, f.Validate()
}

// Load reads and parses the seed file at path.
func Load(path string) (File, error) {
	fh, err := os.Open(path)
	if err != nil {
		return File{}, err
	}
	defer fh.Close()
	return Parse(fh)
}

// Validate checks references and required fields before anything is written.
func (f File) Validate() error {
	var errs []error
	teams := make(map[string]struct{}, len(f.Teams))
	for i, t := range f.Teams {
		if strings.TrimSpace(t.Name) == "" {
			errs = append(errs, fmt.Errorf("teams[%d]: name required", i))
		}
		teams[t.Name] = struct{}{}
	}
	for i, w := range f.Wards {
		if strings.TrimSpace(w.Name) == "" {
			errs = append(errs, fmt.Errorf("wards[%d]: name required", i))
		}
		for j, c := range w.Cages {
			if strings.TrimSpace(c.Label) == "" || c.Capacity <= 0 {
				errs = append(errs, fmt.Errorf("wards[%d].cages[%d]: label and positive capacity required", i, j))
			}
		}
	}
	for i, u := range f.Users {
		if strings.TrimSpace(u.Email) == "" {
			errs = append(errs, fmt.Errorf("users[%d]: email required", i))
		}
		if !u.Role.Valid() {
			errs = append(errs, fmt.Errorf("users[%d]: unknown role %q", i, u.Role))
		}
		if u.Team != "" {
			if _, ok := teams[u.Team]; !ok {
				errs = append(errs, fmt.Errorf("users[%d]: team %q not declared", i, u.Team))
			}
		}
		if u.Password == "" && u.PasswordEnv == "" {
			errs = append(errs, fmt.Errorf("users[%d]: password or password_env required", i))
		}
	}
	return errors.Join(errs...)
}

// Apply creates the declared records that do not exist yet. Wards and teams
// match by name, cages by label within their ward and users by email. Admin
// users are created first so the first account is always an admin.
func Apply(ctx context.Context, svc *core.Service, f File) (Summary, error) {
	var sum Summary

	wards, err := svc.ListWards(ctx)
	if err != nil {
		return sum, err
	}
	cages, err := svc.ListCages(ctx)
	if err != nil {
		return sum, err
	}
	wardByName := make(map[string]string, len(wards))
	for _, w := range wards {
		wardByName[w.Name] = w.ID
	}
	cageKeys := make(map[string]struct{}, len(cages))
	for _, c := range cages {
		cageKeys[c.WardID+"/"+c.Label] = struct{}{}
	}

	for _, w := range f.Wards {
		wardID, ok := wardByName[w.Name]
		if ok {
			sum.Skipped++
		} else {
			created, _, err := svc.CreateWard(ctx, domain.Ward{Name: w.Name, Description: w.Description})
			if err != nil {
				return sum, fmt.Errorf("ward %s: %w", w.Name, err)
			}
			wardID = created.ID
			wardByName[w.Name] = wardID
			sum.WardsCreated++
		}
		for _, c := range w.Cages {
			if _, exists := cageKeys[wardID+"/"+c.Label]; exists {
				sum.Skipped++
				continue
			}
			if _, _, err := svc.CreateCage(ctx, domain.Cage{Label: c.Label, WardID: wardID, Capacity: c.Capacity}); err != nil {
				return sum, fmt.Errorf("cage %s/%s: %w", w.Name, c.Label, err)
			}
			cageKeys[wardID+"/"+c.Label] = struct{}{}
			sum.CagesCreated++
		}
	}

	teams, err := svc.ListTeams(ctx)
	if err != nil {
		return sum, err
	}
	teamByName := make(map[string]string, len(teams))
	for _, t := range teams {
		teamByName[t.Name] = t.ID
	}
	for _, t := range f.Teams {
		if _, ok := teamByName[t.Name]; ok {
			sum.Skipped++
			continue
		}
		created, _, err := svc.CreateTeam(ctx, domain.Team{Name: t.Name, Description: t.Description})
		if err != nil {
			return sum, fmt.Errorf("team %s: %w", t.Name, err)
		}
		teamByName[t.Name] = created.ID
		sum.TeamsCreated++
	}

	for _, u := range adminsFirst(f.Users) {
		_, err := svc.FindUserByEmail(ctx, u.Email)
		if err == nil {
			sum.Skipped++
			continue
		}
		var notFound domain.NotFoundError
		if !errors.As(err, &notFound) {
			return sum, err
		}
		password := u.Password
		if u.PasswordEnv != "" {
			password = os.Getenv(u.PasswordEnv)
			if password == "" {
				return sum, fmt.Errorf("user %s: %s is not set", u.Email, u.PasswordEnv)
			}
		}
		input := core.NewUser{Email: u.Email, Name: u.Name, Password: password, Role: u.Role}
		if u.Team != "" {
			teamID := teamByName[u.Team]
			input.TeamID = &teamID
		}
		if _, _, err := svc.CreateUser(ctx, input); err != nil {
			return sum, fmt.Errorf("user %s: %w", u.Email, err)
		}
		sum.UsersCreated++
	}
	return sum, nil
}

func adminsFirst(users []User) []User {
	out := make([]User, 0, len(users))
	for _, u := range users {
		if u.Role == domain.RoleAdmin {
			out = append(out, u)
		}
	}
	for _, u := range users {
		if u.Role != domain.RoleAdmin {
			out = append(out, u)
		}
	}
	return out
}
