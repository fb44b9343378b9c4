package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"shelterhub/internal/adapters/backup"
	"shelterhub/internal/core"
	"shelterhub/internal/seed"
	"shelterhub/pkg/domain"
)

// cliActor is recorded as the actor of changes made from the command line.
const cliActor = "cli"

func newSeedCmd(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "seed FILE",
		Short: "Create wards, cages, teams and users from a YAML file",
		Long: `Create the wards, cages, teams and users declared in FILE.

Records that already exist are skipped, so seeding twice is harmless.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := seed.Load(args[0])
			if err != nil {
				return err
			}
			a, err := open(cmd, false)
			if err != nil {
				return err
			}
			defer a.close()
			sum, err := seed.Apply(core.WithActor(cmd.Context(), cliActor), a.svc, doc)
			if err != nil {
				return err
			}
			return printJSON(cmd, sum)
		},
	}
}

func newBackupCmd(open opener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Write a state snapshot to the blob store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			reason, _ := cmd.Flags().GetString("reason")
			a, err := open(cmd, false)
			if err != nil {
				return err
			}
			defer a.close()
			worker := backup.NewWorker(a.store, a.photos,
				backup.WithAudit(core.LogAuditRecorder{Logger: a.log.With("component", "audit")}),
				backup.WithLogger(a.log.With("component", "backup")),
			)
			record, err := worker.Run(cmd.Context(), backup.Request{RequestedBy: cliActor, Reason: reason})
			if printErr := printJSON(cmd, record); printErr != nil && err == nil {
				err = printErr
			}
			return err
		},
	}
	cmd.Flags().String("reason", "manual", "note stored with the backup record")

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List stored backups, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := open(cmd, false)
			if err != nil {
				return err
			}
			defer a.close()
			items, err := backup.NewWorker(a.store, a.photos).List(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, items)
		},
	}, newBackupRestoreCmd(open))
	return cmd
}

type restoreSummary struct {
	BackupID  string         `json:"backup_id"`
	CreatedAt time.Time      `json:"created_at"`
	Counts    map[string]int `json:"counts"`
}

func newBackupRestoreCmd(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "restore KEY",
		Short: "Replace all state with a stored backup",
		Long: `Replace all state with the backup stored under KEY, as printed by
"backup list". The backups/ prefix may be omitted.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := open(cmd, false)
			if err != nil {
				return err
			}
			defer a.close()
			worker := backup.NewWorker(a.store, a.photos,
				backup.WithAudit(core.LogAuditRecorder{Logger: a.log.With("component", "audit")}),
				backup.WithLogger(a.log.With("component", "backup")),
			)
			doc, err := worker.Restore(cmd.Context(), args[0], cliActor)
			if err != nil {
				return err
			}
			return printJSON(cmd, restoreSummary{BackupID: doc.BackupID, CreatedAt: doc.CreatedAt, Counts: doc.Counts()})
		},
	}
}

func newUserCmd(open opener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage staff accounts",
		Long: `Manage staff accounts.

Available subcommands:
  add        - create an account
  role       - change the role of an account
  deactivate - disable sign-in for an account
  list       - list accounts`,
	}
	cmd.AddCommand(newUserAddCmd(open), newUserRoleCmd(open), newUserDeactivateCmd(open), newUserListCmd(open))
	return cmd
}

func newUserAddCmd(open opener) *cobra.Command {
	var (
		email, name, role, team, password string
	)
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create a staff account",
		Long: `Create a staff account. The password is read from --password or,
when omitted, from SHELTERHUB_NEW_USER_PASSWORD.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if password == "" {
				password = os.Getenv("SHELTERHUB_NEW_USER_PASSWORD")
			}
			if password == "" {
				return errors.New("password required: pass --password or set SHELTERHUB_NEW_USER_PASSWORD")
			}
			if !domain.Role(role).Valid() {
				return fmt.Errorf("unknown role %q", role)
			}
			a, err := open(cmd, false)
			if err != nil {
				return err
			}
			defer a.close()
			ctx := core.WithActor(cmd.Context(), cliActor)
			input := core.NewUser{Email: email, Name: name, Password: password, Role: domain.Role(role)}
			if team != "" {
				teamID, err := findTeam(cmd, a, team)
				if err != nil {
					return err
				}
				input.TeamID = &teamID
			}
			user, _, err := a.svc.CreateUser(ctx, input)
			if err != nil {
				return err
			}
			return printJSON(cmd, user)
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "sign-in address")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&role, "role", string(domain.RoleVolunteer), "admin, manager, caretaker or volunteer")
	cmd.Flags().StringVar(&team, "team", "", "team name")
	cmd.Flags().StringVar(&password, "password", "", "initial password")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func findTeam(cmd *cobra.Command, a *app, name string) (string, error) {
	teams, err := a.svc.ListTeams(cmd.Context())
	if err != nil {
		return "", err
	}
	for _, t := range teams {
		if t.Name == name {
			return t.ID, nil
		}
	}
	return "", fmt.Errorf("team %q not found", name)
}

func newUserRoleCmd(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "role EMAIL ROLE",
		Short: "Change the role of a staff account",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			role := domain.Role(args[1])
			if !role.Valid() {
				return fmt.Errorf("unknown role %q", args[1])
			}
			a, err := open(cmd, false)
			if err != nil {
				return err
			}
			defer a.close()
			ctx := core.WithActor(cmd.Context(), cliActor)
			user, err := a.svc.FindUserByEmail(ctx, args[0])
			if err != nil {
				return err
			}
			updated, _, err := a.svc.UpdateUserRole(ctx, user.ID, role)
			if err != nil {
				return err
			}
			return printJSON(cmd, updated)
		},
	}
}

func newUserDeactivateCmd(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "deactivate EMAIL",
		Short: "Disable sign-in for a staff account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := open(cmd, false)
			if err != nil {
				return err
			}
			defer a.close()
			ctx := core.WithActor(cmd.Context(), cliActor)
			user, err := a.svc.FindUserByEmail(ctx, args[0])
			if err != nil {
				return err
			}
			updated, _, err := a.svc.DeactivateUser(ctx, user.ID)
			if err != nil {
				return err
			}
			return printJSON(cmd, updated)
		},
	}
}

func newUserListCmd(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List staff accounts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := open(cmd, false)
			if err != nil {
				return err
			}
			defer a.close()
			users, err := a.svc.ListUsers(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, users)
		},
	}
}
