// Package domain defines the persistent entities, value types, and rule
// evaluation primitives used by shelterhub.
package domain

import (
	"strings"
	"time"
)

// EntityType identifies the type of record stored in the core domain.
type EntityType string

// Supported entity type identifiers used in Change records and persistence buckets.
const (
	// EntityWard identifies a ward (room or area grouping cages).
	EntityWard EntityType = "ward"
	// EntityCage identifies a cage record.
	EntityCage EntityType = "cage"
	// EntityCat identifies an individual cat record.
	EntityCat EntityType = "cat"
	// EntityTreatment identifies a treatment record.
	EntityTreatment EntityType = "treatment"
	// EntityDonation identifies a donation record.
	EntityDonation EntityType = "donation"
	// EntityLedgerEntry identifies a ledger transaction record.
	EntityLedgerEntry EntityType = "ledger_entry"
	// EntityTeam identifies a staff team record.
	EntityTeam EntityType = "team"
	// EntityUser identifies a staff user record.
	EntityUser EntityType = "user"
)

// CatStatus enumerates the shelter lifecycle of a cat.
type CatStatus string

// Canonical cat statuses. Adopted, transferred and deceased are outcome statuses.
const (
	CatStatusIntake      CatStatus = "intake"
	CatStatusSheltered   CatStatus = "sheltered"
	CatStatusMedicalHold CatStatus = "medical_hold"
	CatStatusAdopted     CatStatus = "adopted"
	CatStatusTransferred CatStatus = "transferred"
	CatStatusDeceased    CatStatus = "deceased"
)

// Departed reports whether the status is an outcome that ends the cat's stay.
func (s CatStatus) Departed() bool {
	switch s {
	case CatStatusAdopted, CatStatusTransferred, CatStatusDeceased:
		return true
	default:
		return false
	}
}

// Valid reports whether s is a known status.
func (s CatStatus) Valid() bool {
	switch s {
	case CatStatusIntake, CatStatusSheltered, CatStatusMedicalHold,
		CatStatusAdopted, CatStatusTransferred, CatStatusDeceased:
		return true
	default:
		return false
	}
}

// TreatmentKind classifies veterinary care.
type TreatmentKind string

// Supported treatment kinds.
const (
	TreatmentVaccination TreatmentKind = "vaccination"
	TreatmentMedication  TreatmentKind = "medication"
	TreatmentSurgery     TreatmentKind = "surgery"
	TreatmentCheckup     TreatmentKind = "checkup"
	TreatmentDeworming   TreatmentKind = "deworming"
)

// Valid reports whether k is a known treatment kind.
func (k TreatmentKind) Valid() bool {
	switch k {
	case TreatmentVaccination, TreatmentMedication, TreatmentSurgery, TreatmentCheckup, TreatmentDeworming:
		return true
	default:
		return false
	}
}

// TreatmentStatus enumerates treatment lifecycle states.
type TreatmentStatus string

// Canonical treatment statuses.
const (
	TreatmentStatusPlanned    TreatmentStatus = "planned"
	TreatmentStatusInProgress TreatmentStatus = "in_progress"
	TreatmentStatusCompleted  TreatmentStatus = "completed"
	TreatmentStatusCancelled  TreatmentStatus = "cancelled"
	TreatmentStatusFlagged    TreatmentStatus = "flagged"
)

// Valid reports whether s is a known status.
func (s TreatmentStatus) Valid() bool {
	switch s {
	case TreatmentStatusPlanned, TreatmentStatusInProgress, TreatmentStatusCompleted,
		TreatmentStatusCancelled, TreatmentStatusFlagged:
		return true
	default:
		return false
	}
}

// Open reports whether the treatment still expects work.
func (s TreatmentStatus) Open() bool {
	return s == TreatmentStatusPlanned || s == TreatmentStatusInProgress || s == TreatmentStatusFlagged
}

// LedgerKind separates income from expenses.
type LedgerKind string

// Ledger kinds.
const (
	LedgerIncome  LedgerKind = "income"
	LedgerExpense LedgerKind = "expense"
)

// Role is a staff permission level.
type Role string

// Staff roles, most to least privileged.
const (
	RoleAdmin     Role = "admin"
	RoleManager   Role = "manager"
	RoleCaretaker Role = "caretaker"
	RoleVolunteer Role = "volunteer"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleManager, RoleCaretaker, RoleVolunteer:
		return true
	default:
		return false
	}
}

// DefaultCurrency applies when a monetary record omits its currency.
const DefaultCurrency = "EUR"

// Ledger categories booked automatically by service workflows.
const (
	CategoryDonation   = "donation"
	CategoryVeterinary = "veterinary"
)

// Base contains common fields for all domain records.
type Base struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Ward groups cages in a physical room or area.
type Ward struct {
	Base
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Cage is a housing place with a fixed capacity inside a ward.
type Cage struct {
	Base
	Label    string `json:"label"`
	WardID   string `json:"ward_id"`
	Capacity int    `json:"capacity"`
}

// Cat represents an individual animal in the shelter's care.
type Cat struct {
	Base
	IntakeNumber int64      `json:"intake_number"`
	Name         string     `json:"name"`
	Sex          string     `json:"sex,omitempty"`
	Breed        string     `json:"breed,omitempty"`
	Color        string     `json:"color,omitempty"`
	BirthDate    *time.Time `json:"birth_date,omitempty"`
	Status       CatStatus  `json:"status"`
	CageID       *string    `json:"cage_id"`
	IntakeAt     time.Time  `json:"intake_at"`
	OutcomeAt    *time.Time `json:"outcome_at,omitempty"`
	Notes        string     `json:"notes,omitempty"`
	PhotoKey     string     `json:"photo_key,omitempty"`
}

// Housed reports whether the cat currently occupies a cage.
func (c Cat) Housed() bool {
	return c.CageID != nil && *c.CageID != ""
}

// Treatment captures a veterinary intervention for a single cat.
type Treatment struct {
	Base
	CatID          string          `json:"cat_id"`
	Kind           TreatmentKind   `json:"kind"`
	Description    string          `json:"description,omitempty"`
	Status         TreatmentStatus `json:"status"`
	ScheduledAt    time.Time       `json:"scheduled_at"`
	AdministeredAt *time.Time      `json:"administered_at,omitempty"`
	AdministeredBy string          `json:"administered_by,omitempty"`
	CostCents      int64           `json:"cost_cents"`
}

// Donation records money received from a supporter.
type Donation struct {
	Base
	Donor       string    `json:"donor"`
	Email       string    `json:"email,omitempty"`
	AmountCents int64     `json:"amount_cents"`
	Currency    string    `json:"currency"`
	Method      string    `json:"method,omitempty"`
	ReceivedAt  time.Time `json:"received_at"`
	Note        string    `json:"note,omitempty"`
	CatID       *string   `json:"cat_id,omitempty"`
}

// LedgerEntry is a single income or expense transaction in the shelter books.
type LedgerEntry struct {
	Base
	Kind         LedgerKind `json:"kind"`
	Category     string     `json:"category"`
	AmountCents  int64      `json:"amount_cents"`
	Currency     string     `json:"currency"`
	Counterparty string     `json:"counterparty,omitempty"`
	OccurredAt   time.Time  `json:"occurred_at"`
	Note         string     `json:"note,omitempty"`
	TreatmentID  *string    `json:"treatment_id,omitempty"`
	DonationID   *string    `json:"donation_id,omitempty"`
}

// Team groups staff users.
type Team struct {
	Base
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// User is a staff account able to sign in.
type User struct {
	Base
	Email        string  `json:"email"`
	Name         string  `json:"name"`
	PasswordHash string  `json:"password_hash,omitempty"`
	Role         Role    `json:"role"`
	TeamID       *string `json:"team_id"`
	Active       bool    `json:"active"`
}

// NormalizeEmail lower-cases and trims an address for uniqueness checks.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NormalizeCurrency upper-cases a currency code, defaulting to DefaultCurrency.
func NormalizeCurrency(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return DefaultCurrency
	}
	return code
}

// ValidCurrency reports whether code is exactly three ASCII upper-case letters.
func ValidCurrency(code string) bool {
	if len(code) != 3 {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < 'A' || code[i] > 'Z' {
			return false
		}
	}
	return true
}

// Change describes a mutation applied to an entity during a transaction.
type Change struct {
	Entity EntityType
	Action Action
	Before any
	After  any
}

// Action indicates the type of modification performed.
type Action string

// Change actions enumerate supported mutations captured in the audit trail.
const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Snapshot is a point-in-time copy of every bucket, used for durable
// persistence and backups.
type Snapshot struct {
	Wards          map[string]Ward        `json:"wards"`
	Cages          map[string]Cage        `json:"cages"`
	Cats           map[string]Cat         `json:"cats"`
	Treatments     map[string]Treatment   `json:"treatments"`
	Donations      map[string]Donation    `json:"donations"`
	Ledger         map[string]LedgerEntry `json:"ledger"`
	Teams          map[string]Team        `json:"teams"`
	Users          map[string]User        `json:"users"`
	IntakeSequence int64                  `json:"intake_sequence"`
}
