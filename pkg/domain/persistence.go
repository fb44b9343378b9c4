package domain

import "context"

// Transaction exposes the domain operations that a persistence implementation
// must support within an atomic scope.
type Transaction interface {
	Snapshot() TransactionView
	CreateWard(Ward) (Ward, error)
	UpdateWard(id string, mutator func(*Ward) error) (Ward, error)
	DeleteWard(id string) error
	CreateCage(Cage) (Cage, error)
	UpdateCage(id string, mutator func(*Cage) error) (Cage, error)
	DeleteCage(id string) error
	CreateCat(Cat) (Cat, error)
	UpdateCat(id string, mutator func(*Cat) error) (Cat, error)
	DeleteCat(id string) error
	CreateTreatment(Treatment) (Treatment, error)
	UpdateTreatment(id string, mutator func(*Treatment) error) (Treatment, error)
	DeleteTreatment(id string) error
	CreateDonation(Donation) (Donation, error)
	DeleteDonation(id string) error
	CreateLedgerEntry(LedgerEntry) (LedgerEntry, error)
	DeleteLedgerEntry(id string) error
	CreateTeam(Team) (Team, error)
	UpdateTeam(id string, mutator func(*Team) error) (Team, error)
	DeleteTeam(id string) error
	CreateUser(User) (User, error)
	UpdateUser(id string, mutator func(*User) error) (User, error)
	DeleteUser(id string) error
}

// TransactionView provides read-only access to snapshot data for rules and
// read paths.
type TransactionView interface {
	ListWards() []Ward
	ListCages() []Cage
	ListCats() []Cat
	ListTreatments() []Treatment
	ListDonations() []Donation
	ListLedgerEntries() []LedgerEntry
	ListTeams() []Team
	ListUsers() []User
	FindWard(id string) (Ward, bool)
	FindCage(id string) (Cage, bool)
	FindCat(id string) (Cat, bool)
	FindTreatment(id string) (Treatment, bool)
	FindDonation(id string) (Donation, bool)
	FindLedgerEntry(id string) (LedgerEntry, bool)
	FindTeam(id string) (Team, bool)
	FindUser(id string) (User, bool)
	FindUserByEmail(email string) (User, bool)
}

// PersistentStore is the abstraction over durable backends used by the
// service layer.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
	ExportState() Snapshot
	// Restore replaces all state with snapshot and persists it.
	Restore(ctx context.Context, snapshot Snapshot) error
	RulesEngine() *RulesEngine
}
