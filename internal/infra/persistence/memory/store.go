// Package memory provides an in-memory implementation of the core persistence
// store used for tests, ephemeral environments, and as the transactional engine
// behind the durable backends.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"shelterhub/pkg/domain"
)

// Compile-time contract assertion ensuring Store adheres to the domain persistence interface.
var _ domain.PersistentStore = (*Store)(nil)

type (
	// Ward aliases domain.Ward for in-memory persistence operations.
	Ward = domain.Ward
	// Cage aliases domain.Cage.
	Cage = domain.Cage
	// Cat aliases domain.Cat.
	Cat = domain.Cat
	// Treatment aliases domain.Treatment.
	Treatment = domain.Treatment
	// Donation aliases domain.Donation.
	Donation = domain.Donation
	// LedgerEntry aliases domain.LedgerEntry.
	LedgerEntry = domain.LedgerEntry
	// Team aliases domain.Team.
	Team = domain.Team
	// User aliases domain.User.
	User = domain.User
	// Change aliases domain.Change captured in transactions.
	Change = domain.Change
	// Result aliases domain.Result summarizing rule evaluation.
	Result = domain.Result
	// RulesEngine aliases domain.RulesEngine used to evaluate rules.
	RulesEngine = domain.RulesEngine
	// Transaction aliases domain.Transaction representing a mutable unit of work.
	Transaction = domain.Transaction
	// TransactionView aliases domain.TransactionView providing read-only state.
	TransactionView = domain.TransactionView
	// Snapshot aliases domain.Snapshot.
	Snapshot = domain.Snapshot
)

type memoryState struct {
	wards      map[string]Ward
	cages      map[string]Cage
	cats       map[string]Cat
	treatments map[string]Treatment
	donations  map[string]Donation
	ledger     map[string]LedgerEntry
	teams      map[string]Team
	users      map[string]User
	intakeSeq  int64
}

func newMemoryState() memoryState {
	return memoryState{
		wards:      make(map[string]Ward),
		cages:      make(map[string]Cage),
		cats:       make(map[string]Cat),
		treatments: make(map[string]Treatment),
		donations:  make(map[string]Donation),
		ledger:     make(map[string]LedgerEntry),
		teams:      make(map[string]Team),
		users:      make(map[string]User),
	}
}

func (s memoryState) clone() memoryState {
	cloned := newMemoryState()
	for k, v := range s.wards {
		cloned.wards[k] = v
	}
	for k, v := range s.cages {
		cloned.cages[k] = v
	}
	for k, v := range s.cats {
		cloned.cats[k] = cloneCat(v)
	}
	for k, v := range s.treatments {
		cloned.treatments[k] = cloneTreatment(v)
	}
	for k, v := range s.donations {
		cloned.donations[k] = cloneDonation(v)
	}
	for k, v := range s.ledger {
		cloned.ledger[k] = cloneLedgerEntry(v)
	}
	for k, v := range s.teams {
		cloned.teams[k] = v
	}
	for k, v := range s.users {
		cloned.users[k] = cloneUser(v)
	}
	cloned.intakeSeq = s.intakeSeq
	return cloned
}

func snapshotFromMemoryState(state memoryState) Snapshot {
	cloned := state.clone()
	return Snapshot{
		Wards:          cloned.wards,
		Cages:          cloned.cages,
		Cats:           cloned.cats,
		Treatments:     cloned.treatments,
		Donations:      cloned.donations,
		Ledger:         cloned.ledger,
		Teams:          cloned.teams,
		Users:          cloned.users,
		IntakeSequence: cloned.intakeSeq,
	}
}

func memoryStateFromSnapshot(s Snapshot) memoryState {
	state := memoryState{
		wards:      s.Wards,
		cages:      s.Cages,
		cats:       s.Cats,
		treatments: s.Treatments,
		donations:  s.Donations,
		ledger:     s.Ledger,
		teams:      s.Teams,
		users:      s.Users,
		intakeSeq:  s.IntakeSequence,
	}
	return state.clone()
}

// migrateSnapshot repairs snapshots written by older builds or edited by hand:
// nil buckets are initialized, dangling references are dropped and the intake
// sequence is advanced past every stored intake number.
//
//nolint:gocyclo // one pass per bucket keeps the repair order explicit.
func migrateSnapshot(snapshot Snapshot) Snapshot {
	if snapshot.Wards == nil {
		snapshot.Wards = map[string]Ward{}
	}
	if snapshot.Cages == nil {
		snapshot.Cages = map[string]Cage{}
	}
	if snapshot.Cats == nil {
		snapshot.Cats = map[string]Cat{}
	}
	if snapshot.Treatments == nil {
		snapshot.Treatments = map[string]Treatment{}
	}
	if snapshot.Donations == nil {
		snapshot.Donations = map[string]Donation{}
	}
	if snapshot.Ledger == nil {
		snapshot.Ledger = map[string]LedgerEntry{}
	}
	if snapshot.Teams == nil {
		snapshot.Teams = map[string]Team{}
	}
	if snapshot.Users == nil {
		snapshot.Users = map[string]User{}
	}

	for id, cage := range snapshot.Cages {
		if _, ok := snapshot.Wards[cage.WardID]; !ok {
			delete(snapshot.Cages, id)
			continue
		}
		if cage.Capacity <= 0 {
			cage.Capacity = 1
		}
		snapshot.Cages[id] = cage
	}

	for id, cat := range snapshot.Cats {
		if cat.CageID != nil {
			if _, ok := snapshot.Cages[*cat.CageID]; !ok || cat.Status.Departed() {
				cat.CageID = nil
			}
		}
		if !cat.Status.Valid() {
			cat.Status = domain.CatStatusIntake
		}
		if cat.IntakeNumber > snapshot.IntakeSequence {
			snapshot.IntakeSequence = cat.IntakeNumber
		}
		snapshot.Cats[id] = cat
	}

	for id, treatment := range snapshot.Treatments {
		if _, ok := snapshot.Cats[treatment.CatID]; !ok {
			delete(snapshot.Treatments, id)
		}
	}

	for id, donation := range snapshot.Donations {
		if donation.CatID != nil {
			if _, ok := snapshot.Cats[*donation.CatID]; !ok {
				donation.CatID = nil
			}
		}
		donation.Currency = domain.NormalizeCurrency(donation.Currency)
		snapshot.Donations[id] = donation
	}

	for id, entry := range snapshot.Ledger {
		if entry.TreatmentID != nil {
			if _, ok := snapshot.Treatments[*entry.TreatmentID]; !ok {
				entry.TreatmentID = nil
			}
		}
		if entry.DonationID != nil {
			if _, ok := snapshot.Donations[*entry.DonationID]; !ok {
				entry.DonationID = nil
			}
		}
		entry.Currency = domain.NormalizeCurrency(entry.Currency)
		snapshot.Ledger[id] = entry
	}

	for id, user := range snapshot.Users {
		if user.TeamID != nil {
			if _, ok := snapshot.Teams[*user.TeamID]; !ok {
				user.TeamID = nil
			}
		}
		user.Email = domain.NormalizeEmail(user.Email)
		snapshot.Users[id] = user
	}

	return snapshot
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneCat(c Cat) Cat {
	cp := c
	cp.CageID = clonePtr(c.CageID)
	cp.BirthDate = clonePtr(c.BirthDate)
	cp.OutcomeAt = clonePtr(c.OutcomeAt)
	return cp
}

func cloneTreatment(t Treatment) Treatment {
	cp := t
	cp.AdministeredAt = clonePtr(t.AdministeredAt)
	return cp
}

func cloneDonation(d Donation) Donation {
	cp := d
	cp.CatID = clonePtr(d.CatID)
	return cp
}

func cloneLedgerEntry(e LedgerEntry) LedgerEntry {
	cp := e
	cp.TreatmentID = clonePtr(e.TreatmentID)
	cp.DonationID = clonePtr(e.DonationID)
	return cp
}

func cloneUser(u User) User {
	cp := u
	cp.TeamID = clonePtr(u.TeamID)
	return cp
}

// CommitFunc receives the state a transaction is about to install. It runs
// under the store's write lock; an error aborts the commit and leaves the
// live state untouched.
type CommitFunc func(ctx context.Context, next Snapshot) error

// Store provides an in-memory transactional store for the core domain.
type Store struct {
	mu     sync.RWMutex
	state  memoryState
	engine *RulesEngine
	nowFn  func() time.Time
	commit CommitFunc
}

// NewStore constructs an in-memory store backed by the provided rules engine.
func NewStore(engine *RulesEngine) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	return &Store{
		state:  newMemoryState(),
		engine: engine,
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
}

func newID() string {
	return uuid.NewString()
}

// ExportState clones the current store state for external persistence.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotFromMemoryState(s.state)
}

// ImportState replaces the store state with the provided snapshot.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = memoryStateFromSnapshot(migrateSnapshot(snapshot))
}

// Restore replaces the store state with snapshot. The commit hook sees the
// restored state first and can veto the swap.
func (s *Store) Restore(ctx context.Context, snapshot Snapshot) error {
	next := memoryStateFromSnapshot(migrateSnapshot(snapshot))
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.commit != nil {
		if err := s.commit(context.WithoutCancel(ctx), snapshotFromMemoryState(next)); err != nil {
			return err
		}
	}
	s.state = next
	return nil
}

// RulesEngine exposes the currently configured engine.
func (s *Store) RulesEngine() *RulesEngine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

// NowFunc returns the time provider used to stamp records.
func (s *Store) NowFunc() func() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nowFn
}

// OnCommit installs fn as the durable write performed before each commit.
func (s *Store) OnCommit(fn CommitFunc) {
	s.mu.Lock()
	s.commit = fn
	s.mu.Unlock()
}

// SetNowFunc overrides the time provider used to stamp records.
func (s *Store) SetNowFunc(fn func() time.Time) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	s.nowFn = fn
	s.mu.Unlock()
}

type transaction struct {
	state   memoryState
	changes []Change
	now     time.Time
}

type transactionView struct {
	state *memoryState
}

func newTransactionView(state *memoryState) TransactionView {
	return transactionView{state: state}
}

// RunInTransaction executes fn within a transactional copy of the store state.
// The copy replaces the live state only when fn succeeds, no rule blocks and
// the commit hook, if any, accepts it.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx Transaction) error) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	tx := &transaction{
		state: s.state.clone(),
		now:   s.nowFn(),
	}

	if err := fn(tx); err != nil {
		return Result{}, err
	}

	var result Result
	if s.engine != nil {
		view := newTransactionView(&tx.state)
		res, err := s.engine.Evaluate(ctx, view, tx.changes)
		if err != nil {
			return Result{}, err
		}
		result = res
		if res.HasBlocking() {
			return res, domain.RuleViolationError{Result: res}
		}
	}

	if s.commit != nil {
		if err := s.commit(context.WithoutCancel(ctx), snapshotFromMemoryState(tx.state)); err != nil {
			return result, err
		}
	}

	s.state = tx.state
	return result, nil
}

// View executes fn against a read-only snapshot of the store state.
func (s *Store) View(_ context.Context, fn func(TransactionView) error) error {
	s.mu.RLock()
	snapshot := s.state.clone()
	s.mu.RUnlock()

	return fn(newTransactionView(&snapshot))
}

func (tx *transaction) recordChange(change Change) {
	tx.changes = append(tx.changes, change)
}

// Snapshot returns a read-only view over the transactional state.
func (tx *transaction) Snapshot() TransactionView {
	return newTransactionView(&tx.state)
}

// ListWards returns wards ordered by name.
func (v transactionView) ListWards() []Ward {
	out := make([]Ward, 0, len(v.state.wards))
	for _, w := range v.state.wards {
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name == out[j].Name {
			return out[i].ID < out[j].ID
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// ListCages returns cages ordered by ward then label.
func (v transactionView) ListCages() []Cage {
	out := make([]Cage, 0, len(v.state.cages))
	for _, c := range v.state.cages {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].WardID != out[j].WardID {
			return out[i].WardID < out[j].WardID
		}
		if out[i].Label == out[j].Label {
			return out[i].ID < out[j].ID
		}
		return out[i].Label < out[j].Label
	})
	return out
}

// ListCats returns cats ordered by intake number.
func (v transactionView) ListCats() []Cat {
	out := make([]Cat, 0, len(v.state.cats))
	for _, c := range v.state.cats {
		out = append(out, cloneCat(c))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IntakeNumber < out[j].IntakeNumber })
	return out
}

// ListTreatments returns treatments ordered by schedule.
func (v transactionView) ListTreatments() []Treatment {
	out := make([]Treatment, 0, len(v.state.treatments))
	for _, t := range v.state.treatments {
		out = append(out, cloneTreatment(t))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ScheduledAt.Equal(out[j].ScheduledAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].ScheduledAt.Before(out[j].ScheduledAt)
	})
	return out
}

// ListDonations returns donations ordered by receipt time.
func (v transactionView) ListDonations() []Donation {
	out := make([]Donation, 0, len(v.state.donations))
	for _, d := range v.state.donations {
		out = append(out, cloneDonation(d))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ReceivedAt.Equal(out[j].ReceivedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].ReceivedAt.Before(out[j].ReceivedAt)
	})
	return out
}

// ListLedgerEntries returns ledger transactions ordered by occurrence.
func (v transactionView) ListLedgerEntries() []LedgerEntry {
	out := make([]LedgerEntry, 0, len(v.state.ledger))
	for _, e := range v.state.ledger {
		out = append(out, cloneLedgerEntry(e))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].OccurredAt.Equal(out[j].OccurredAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].OccurredAt.Before(out[j].OccurredAt)
	})
	return out
}

// ListTeams returns teams ordered by name.
func (v transactionView) ListTeams() []Team {
	out := make([]Team, 0, len(v.state.teams))
	for _, t := range v.state.teams {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ListUsers returns users ordered by email.
func (v transactionView) ListUsers() []User {
	out := make([]User, 0, len(v.state.users))
	for _, u := range v.state.users {
		out = append(out, cloneUser(u))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out
}

func (v transactionView) FindWard(id string) (Ward, bool) {
	w, ok := v.state.wards[id]
	return w, ok
}

func (v transactionView) FindCage(id string) (Cage, bool) {
	c, ok := v.state.cages[id]
	return c, ok
}

func (v transactionView) FindCat(id string) (Cat, bool) {
	c, ok := v.state.cats[id]
	if !ok {
		return Cat{}, false
	}
	return cloneCat(c), true
}

func (v transactionView) FindTreatment(id string) (Treatment, bool) {
	t, ok := v.state.treatments[id]
	if !ok {
		return Treatment{}, false
	}
	return cloneTreatment(t), true
}

func (v transactionView) FindDonation(id string) (Donation, bool) {
	d, ok := v.state.donations[id]
	if !ok {
		return Donation{}, false
	}
	return cloneDonation(d), true
}

func (v transactionView) FindLedgerEntry(id string) (LedgerEntry, bool) {
	e, ok := v.state.ledger[id]
	if !ok {
		return LedgerEntry{}, false
	}
	return cloneLedgerEntry(e), true
}

func (v transactionView) FindTeam(id string) (Team, bool) {
	t, ok := v.state.teams[id]
	return t, ok
}

func (v transactionView) FindUser(id string) (User, bool) {
	u, ok := v.state.users[id]
	if !ok {
		return User{}, false
	}
	return cloneUser(u), true
}

func (v transactionView) FindUserByEmail(email string) (User, bool) {
	email = domain.NormalizeEmail(email)
	for _, u := range v.state.users {
		if u.Email == email {
			return cloneUser(u), true
		}
	}
	return User{}, false
}

// CreateWard stores a new ward.
func (tx *transaction) CreateWard(w Ward) (Ward, error) {
	if w.ID == "" {
		w.ID = newID()
	}
	if _, exists := tx.state.wards[w.ID]; exists {
		return Ward{}, domain.ConflictError{Entity: domain.EntityWard, ID: w.ID, Reason: "already exists"}
	}
	if err := validateWard(w); err != nil {
		return Ward{}, err
	}
	w.CreatedAt = tx.now
	w.UpdatedAt = tx.now
	tx.state.wards[w.ID] = w
	tx.recordChange(Change{Entity: domain.EntityWard, Action: domain.ActionCreate, After: w})
	return w, nil
}

// UpdateWard mutates an existing ward.
func (tx *transaction) UpdateWard(id string, mutator func(*Ward) error) (Ward, error) {
	current, ok := tx.state.wards[id]
	if !ok {
		return Ward{}, domain.NotFoundError{Entity: domain.EntityWard, ID: id}
	}
	before := current
	if err := mutator(&current); err != nil {
		return Ward{}, err
	}
	if err := validateWard(current); err != nil {
		return Ward{}, err
	}
	current.ID = id
	current.CreatedAt = before.CreatedAt
	current.UpdatedAt = tx.now
	tx.state.wards[id] = current
	tx.recordChange(Change{Entity: domain.EntityWard, Action: domain.ActionUpdate, Before: before, After: current})
	return current, nil
}

// DeleteWard removes a ward that no longer holds cages.
func (tx *transaction) DeleteWard(id string) error {
	current, ok := tx.state.wards[id]
	if !ok {
		return domain.NotFoundError{Entity: domain.EntityWard, ID: id}
	}
	for _, cage := range tx.state.cages {
		if cage.WardID == id {
			return domain.ConflictError{Entity: domain.EntityWard, ID: id, Reason: fmt.Sprintf("still referenced by cage %q", cage.ID)}
		}
	}
	delete(tx.state.wards, id)
	tx.recordChange(Change{Entity: domain.EntityWard, Action: domain.ActionDelete, Before: current})
	return nil
}

func validateWard(w Ward) error {
	if strings.TrimSpace(w.Name) == "" {
		return domain.ValidationError{Entity: domain.EntityWard, Field: "name", Message: "required"}
	}
	return nil
}

// CreateCage stores a new cage inside an existing ward.
func (tx *transaction) CreateCage(c Cage) (Cage, error) {
	if c.ID == "" {
		c.ID = newID()
	}
	if _, exists := tx.state.cages[c.ID]; exists {
		return Cage{}, domain.ConflictError{Entity: domain.EntityCage, ID: c.ID, Reason: "already exists"}
	}
	if err := tx.validateCage(c); err != nil {
		return Cage{}, err
	}
	c.CreatedAt = tx.now
	c.UpdatedAt = tx.now
	tx.state.cages[c.ID] = c
	tx.recordChange(Change{Entity: domain.EntityCage, Action: domain.ActionCreate, After: c})
	return c, nil
}

// UpdateCage mutates an existing cage. Shrinking capacity below occupancy is
// left to the capacity rule.
func (tx *transaction) UpdateCage(id string, mutator func(*Cage) error) (Cage, error) {
	current, ok := tx.state.cages[id]
	if !ok {
		return Cage{}, domain.NotFoundError{Entity: domain.EntityCage, ID: id}
	}
	before := current
	if err := mutator(&current); err != nil {
		return Cage{}, err
	}
	if err := tx.validateCage(current); err != nil {
		return Cage{}, err
	}
	current.ID = id
	current.CreatedAt = before.CreatedAt
	current.UpdatedAt = tx.now
	tx.state.cages[id] = current
	tx.recordChange(Change{Entity: domain.EntityCage, Action: domain.ActionUpdate, Before: before, After: current})
	return current, nil
}

// DeleteCage removes an empty cage.
func (tx *transaction) DeleteCage(id string) error {
	current, ok := tx.state.cages[id]
	if !ok {
		return domain.NotFoundError{Entity: domain.EntityCage, ID: id}
	}
	for _, cat := range tx.state.cats {
		if cat.CageID != nil && *cat.CageID == id {
			return domain.ConflictError{Entity: domain.EntityCage, ID: id, Reason: fmt.Sprintf("still occupied by cat %q", cat.ID)}
		}
	}
	delete(tx.state.cages, id)
	tx.recordChange(Change{Entity: domain.EntityCage, Action: domain.ActionDelete, Before: current})
	return nil
}

func (tx *transaction) validateCage(c Cage) error {
	if strings.TrimSpace(c.Label) == "" {
		return domain.ValidationError{Entity: domain.EntityCage, Field: "label", Message: "required"}
	}
	if c.Capacity <= 0 {
		return domain.ValidationError{Entity: domain.EntityCage, Field: "capacity", Message: "must be positive"}
	}
	if c.WardID == "" {
		return domain.ValidationError{Entity: domain.EntityCage, Field: "ward_id", Message: "required"}
	}
	if _, ok := tx.state.wards[c.WardID]; !ok {
		return domain.NotFoundError{Entity: domain.EntityWard, ID: c.WardID}
	}
	return nil
}

// CreateCat stores a new cat and allocates its intake number from the store
// sequence when none is supplied.
func (tx *transaction) CreateCat(c Cat) (Cat, error) {
	if c.ID == "" {
		c.ID = newID()
	}
	if _, exists := tx.state.cats[c.ID]; exists {
		return Cat{}, domain.ConflictError{Entity: domain.EntityCat, ID: c.ID, Reason: "already exists"}
	}
	if c.Status == "" {
		c.Status = domain.CatStatusIntake
		if c.Housed() {
			c.Status = domain.CatStatusSheltered
		}
	}
	if err := tx.validateCat(c); err != nil {
		return Cat{}, err
	}
	if c.IntakeNumber == 0 {
		tx.state.intakeSeq++
		c.IntakeNumber = tx.state.intakeSeq
	} else {
		for _, existing := range tx.state.cats {
			if existing.IntakeNumber == c.IntakeNumber {
				return Cat{}, domain.ConflictError{Entity: domain.EntityCat, ID: c.ID, Reason: fmt.Sprintf("intake number %d already assigned", c.IntakeNumber)}
			}
		}
		if c.IntakeNumber > tx.state.intakeSeq {
			tx.state.intakeSeq = c.IntakeNumber
		}
	}
	if c.IntakeAt.IsZero() {
		c.IntakeAt = tx.now
	}
	c.CreatedAt = tx.now
	c.UpdatedAt = tx.now
	tx.state.cats[c.ID] = cloneCat(c)
	tx.recordChange(Change{Entity: domain.EntityCat, Action: domain.ActionCreate, After: cloneCat(c)})
	return cloneCat(c), nil
}

// UpdateCat mutates a cat. The intake number is immutable.
func (tx *transaction) UpdateCat(id string, mutator func(*Cat) error) (Cat, error) {
	current, ok := tx.state.cats[id]
	if !ok {
		return Cat{}, domain.NotFoundError{Entity: domain.EntityCat, ID: id}
	}
	before := cloneCat(current)
	if err := mutator(&current); err != nil {
		return Cat{}, err
	}
	if err := tx.validateCat(current); err != nil {
		return Cat{}, err
	}
	current.ID = id
	current.IntakeNumber = before.IntakeNumber
	current.CreatedAt = before.CreatedAt
	current.UpdatedAt = tx.now
	tx.state.cats[id] = cloneCat(current)
	tx.recordChange(Change{Entity: domain.EntityCat, Action: domain.ActionUpdate, Before: before, After: cloneCat(current)})
	return cloneCat(current), nil
}

// DeleteCat removes a cat without medical or financial history.
func (tx *transaction) DeleteCat(id string) error {
	current, ok := tx.state.cats[id]
	if !ok {
		return domain.NotFoundError{Entity: domain.EntityCat, ID: id}
	}
	for _, treatment := range tx.state.treatments {
		if treatment.CatID == id {
			return domain.ConflictError{Entity: domain.EntityCat, ID: id, Reason: fmt.Sprintf("still referenced by treatment %q", treatment.ID)}
		}
	}
	for _, donation := range tx.state.donations {
		if donation.CatID != nil && *donation.CatID == id {
			return domain.ConflictError{Entity: domain.EntityCat, ID: id, Reason: fmt.Sprintf("still referenced by donation %q", donation.ID)}
		}
	}
	delete(tx.state.cats, id)
	tx.recordChange(Change{Entity: domain.EntityCat, Action: domain.ActionDelete, Before: cloneCat(current)})
	return nil
}

func (tx *transaction) validateCat(c Cat) error {
	if strings.TrimSpace(c.Name) == "" {
		return domain.ValidationError{Entity: domain.EntityCat, Field: "name", Message: "required"}
	}
	if !c.Status.Valid() {
		return domain.ValidationError{Entity: domain.EntityCat, Field: "status", Message: fmt.Sprintf("unknown status %q", c.Status)}
	}
	if c.IntakeNumber < 0 {
		return domain.ValidationError{Entity: domain.EntityCat, Field: "intake_number", Message: "must not be negative"}
	}
	if c.CageID != nil {
		if *c.CageID == "" {
			return domain.ValidationError{Entity: domain.EntityCat, Field: "cage_id", Message: "must not be empty when set"}
		}
		if _, ok := tx.state.cages[*c.CageID]; !ok {
			return domain.NotFoundError{Entity: domain.EntityCage, ID: *c.CageID}
		}
	}
	return nil
}

// CreateTreatment stores a treatment for an existing cat.
func (tx *transaction) CreateTreatment(t Treatment) (Treatment, error) {
	if t.ID == "" {
		t.ID = newID()
	}
	if _, exists := tx.state.treatments[t.ID]; exists {
		return Treatment{}, domain.ConflictError{Entity: domain.EntityTreatment, ID: t.ID, Reason: "already exists"}
	}
	if t.Status == "" {
		t.Status = domain.TreatmentStatusPlanned
	}
	if t.ScheduledAt.IsZero() {
		t.ScheduledAt = tx.now
	}
	if err := tx.validateTreatment(t); err != nil {
		return Treatment{}, err
	}
	t.CreatedAt = tx.now
	t.UpdatedAt = tx.now
	tx.state.treatments[t.ID] = cloneTreatment(t)
	tx.recordChange(Change{Entity: domain.EntityTreatment, Action: domain.ActionCreate, After: cloneTreatment(t)})
	return cloneTreatment(t), nil
}

// UpdateTreatment mutates an existing treatment.
func (tx *transaction) UpdateTreatment(id string, mutator func(*Treatment) error) (Treatment, error) {
	current, ok := tx.state.treatments[id]
	if !ok {
		return Treatment{}, domain.NotFoundError{Entity: domain.EntityTreatment, ID: id}
	}
	before := cloneTreatment(current)
	if err := mutator(&current); err != nil {
		return Treatment{}, err
	}
	if err := tx.validateTreatment(current); err != nil {
		return Treatment{}, err
	}
	current.ID = id
	current.CreatedAt = before.CreatedAt
	current.UpdatedAt = tx.now
	tx.state.treatments[id] = cloneTreatment(current)
	tx.recordChange(Change{Entity: domain.EntityTreatment, Action: domain.ActionUpdate, Before: before, After: cloneTreatment(current)})
	return cloneTreatment(current), nil
}

// DeleteTreatment removes a treatment not yet booked in the ledger.
func (tx *transaction) DeleteTreatment(id string) error {
	current, ok := tx.state.treatments[id]
	if !ok {
		return domain.NotFoundError{Entity: domain.EntityTreatment, ID: id}
	}
	for _, entry := range tx.state.ledger {
		if entry.TreatmentID != nil && *entry.TreatmentID == id {
			return domain.ConflictError{Entity: domain.EntityTreatment, ID: id, Reason: fmt.Sprintf("still referenced by ledger entry %q", entry.ID)}
		}
	}
	delete(tx.state.treatments, id)
	tx.recordChange(Change{Entity: domain.EntityTreatment, Action: domain.ActionDelete, Before: cloneTreatment(current)})
	return nil
}

func (tx *transaction) validateTreatment(t Treatment) error {
	if t.CatID == "" {
		return domain.ValidationError{Entity: domain.EntityTreatment, Field: "cat_id", Message: "required"}
	}
	if _, ok := tx.state.cats[t.CatID]; !ok {
		return domain.NotFoundError{Entity: domain.EntityCat, ID: t.CatID}
	}
	if !t.Kind.Valid() {
		return domain.ValidationError{Entity: domain.EntityTreatment, Field: "kind", Message: fmt.Sprintf("unknown kind %q", t.Kind)}
	}
	if !t.Status.Valid() {
		return domain.ValidationError{Entity: domain.EntityTreatment, Field: "status", Message: fmt.Sprintf("unknown status %q", t.Status)}
	}
	if t.CostCents < 0 {
		return domain.ValidationError{Entity: domain.EntityTreatment, Field: "cost_cents", Message: "must not be negative"}
	}
	return nil
}

// CreateDonation stores a donation. Donations are immutable once recorded.
func (tx *transaction) CreateDonation(d Donation) (Donation, error) {
	if d.ID == "" {
		d.ID = newID()
	}
	if _, exists := tx.state.donations[d.ID]; exists {
		return Donation{}, domain.ConflictError{Entity: domain.EntityDonation, ID: d.ID, Reason: "already exists"}
	}
	if strings.TrimSpace(d.Donor) == "" {
		d.Donor = "anonymous"
	}
	d.Currency = domain.NormalizeCurrency(d.Currency)
	if d.ReceivedAt.IsZero() {
		d.ReceivedAt = tx.now
	}
	if d.AmountCents <= 0 {
		return Donation{}, domain.ValidationError{Entity: domain.EntityDonation, Field: "amount_cents", Message: "must be positive"}
	}
	if !domain.ValidCurrency(d.Currency) {
		return Donation{}, domain.ValidationError{Entity: domain.EntityDonation, Field: "currency", Message: "must be a 3-letter code"}
	}
	if d.CatID != nil {
		if _, ok := tx.state.cats[*d.CatID]; !ok {
			return Donation{}, domain.NotFoundError{Entity: domain.EntityCat, ID: *d.CatID}
		}
	}
	d.CreatedAt = tx.now
	d.UpdatedAt = tx.now
	tx.state.donations[d.ID] = cloneDonation(d)
	tx.recordChange(Change{Entity: domain.EntityDonation, Action: domain.ActionCreate, After: cloneDonation(d)})
	return cloneDonation(d), nil
}

// DeleteDonation removes a donation not yet booked in the ledger.
func (tx *transaction) DeleteDonation(id string) error {
	current, ok := tx.state.donations[id]
	if !ok {
		return domain.NotFoundError{Entity: domain.EntityDonation, ID: id}
	}
	for _, entry := range tx.state.ledger {
		if entry.DonationID != nil && *entry.DonationID == id {
			return domain.ConflictError{Entity: domain.EntityDonation, ID: id, Reason: fmt.Sprintf("still referenced by ledger entry %q", entry.ID)}
		}
	}
	delete(tx.state.donations, id)
	tx.recordChange(Change{Entity: domain.EntityDonation, Action: domain.ActionDelete, Before: cloneDonation(current)})
	return nil
}

// CreateLedgerEntry books an income or expense transaction.
func (tx *transaction) CreateLedgerEntry(e LedgerEntry) (LedgerEntry, error) {
	if e.ID == "" {
		e.ID = newID()
	}
	if _, exists := tx.state.ledger[e.ID]; exists {
		return LedgerEntry{}, domain.ConflictError{Entity: domain.EntityLedgerEntry, ID: e.ID, Reason: "already exists"}
	}
	e.Currency = domain.NormalizeCurrency(e.Currency)
	e.Category = strings.ToLower(strings.TrimSpace(e.Category))
	if e.Category == "" {
		e.Category = "general"
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = tx.now
	}
	if e.Kind != domain.LedgerIncome && e.Kind != domain.LedgerExpense {
		return LedgerEntry{}, domain.ValidationError{Entity: domain.EntityLedgerEntry, Field: "kind", Message: fmt.Sprintf("unknown kind %q", e.Kind)}
	}
	if e.AmountCents <= 0 {
		return LedgerEntry{}, domain.ValidationError{Entity: domain.EntityLedgerEntry, Field: "amount_cents", Message: "must be positive"}
	}
	if !domain.ValidCurrency(e.Currency) {
		return LedgerEntry{}, domain.ValidationError{Entity: domain.EntityLedgerEntry, Field: "currency", Message: "must be a 3-letter code"}
	}
	if e.TreatmentID != nil {
		if _, ok := tx.state.treatments[*e.TreatmentID]; !ok {
			return LedgerEntry{}, domain.NotFoundError{Entity: domain.EntityTreatment, ID: *e.TreatmentID}
		}
	}
	if e.DonationID != nil {
		if _, ok := tx.state.donations[*e.DonationID]; !ok {
			return LedgerEntry{}, domain.NotFoundError{Entity: domain.EntityDonation, ID: *e.DonationID}
		}
	}
	e.CreatedAt = tx.now
	e.UpdatedAt = tx.now
	tx.state.ledger[e.ID] = cloneLedgerEntry(e)
	tx.recordChange(Change{Entity: domain.EntityLedgerEntry, Action: domain.ActionCreate, After: cloneLedgerEntry(e)})
	return cloneLedgerEntry(e), nil
}

// DeleteLedgerEntry removes a ledger transaction.
func (tx *transaction) DeleteLedgerEntry(id string) error {
	current, ok := tx.state.ledger[id]
	if !ok {
		return domain.NotFoundError{Entity: domain.EntityLedgerEntry, ID: id}
	}
	delete(tx.state.ledger, id)
	tx.recordChange(Change{Entity: domain.EntityLedgerEntry, Action: domain.ActionDelete, Before: cloneLedgerEntry(current)})
	return nil
}

// CreateTeam stores a team with a unique name.
func (tx *transaction) CreateTeam(t Team) (Team, error) {
	if t.ID == "" {
		t.ID = newID()
	}
	if _, exists := tx.state.teams[t.ID]; exists {
		return Team{}, domain.ConflictError{Entity: domain.EntityTeam, ID: t.ID, Reason: "already exists"}
	}
	if err := tx.validateTeam(t); err != nil {
		return Team{}, err
	}
	t.CreatedAt = tx.now
	t.UpdatedAt = tx.now
	tx.state.teams[t.ID] = t
	tx.recordChange(Change{Entity: domain.EntityTeam, Action: domain.ActionCreate, After: t})
	return t, nil
}

// UpdateTeam mutates an existing team.
func (tx *transaction) UpdateTeam(id string, mutator func(*Team) error) (Team, error) {
	current, ok := tx.state.teams[id]
	if !ok {
		return Team{}, domain.NotFoundError{Entity: domain.EntityTeam, ID: id}
	}
	before := current
	if err := mutator(&current); err != nil {
		return Team{}, err
	}
	current.ID = id
	if err := tx.validateTeam(current); err != nil {
		return Team{}, err
	}
	current.CreatedAt = before.CreatedAt
	current.UpdatedAt = tx.now
	tx.state.teams[id] = current
	tx.recordChange(Change{Entity: domain.EntityTeam, Action: domain.ActionUpdate, Before: before, After: current})
	return current, nil
}

// DeleteTeam removes a team without members.
func (tx *transaction) DeleteTeam(id string) error {
	current, ok := tx.state.teams[id]
	if !ok {
		return domain.NotFoundError{Entity: domain.EntityTeam, ID: id}
	}
	for _, user := range tx.state.users {
		if user.TeamID != nil && *user.TeamID == id {
			return domain.ConflictError{Entity: domain.EntityTeam, ID: id, Reason: fmt.Sprintf("still has member %q", user.ID)}
		}
	}
	delete(tx.state.teams, id)
	tx.recordChange(Change{Entity: domain.EntityTeam, Action: domain.ActionDelete, Before: current})
	return nil
}

func (tx *transaction) validateTeam(t Team) error {
	name := strings.TrimSpace(t.Name)
	if name == "" {
		return domain.ValidationError{Entity: domain.EntityTeam, Field: "name", Message: "required"}
	}
	for _, existing := range tx.state.teams {
		if existing.ID != t.ID && strings.EqualFold(existing.Name, name) {
			return domain.ConflictError{Entity: domain.EntityTeam, ID: t.ID, Reason: fmt.Sprintf("name %q already taken", name)}
		}
	}
	return nil
}

// CreateUser stores a staff user with a unique email.
func (tx *transaction) CreateUser(u User) (User, error) {
	if u.ID == "" {
		u.ID = newID()
	}
	if _, exists := tx.state.users[u.ID]; exists {
		return User{}, domain.ConflictError{Entity: domain.EntityUser, ID: u.ID, Reason: "already exists"}
	}
	u.Email = domain.NormalizeEmail(u.Email)
	if u.Role == "" {
		u.Role = domain.RoleVolunteer
	}
	if err := tx.validateUser(u); err != nil {
		return User{}, err
	}
	u.CreatedAt = tx.now
	u.UpdatedAt = tx.now
	tx.state.users[u.ID] = cloneUser(u)
	tx.recordChange(Change{Entity: domain.EntityUser, Action: domain.ActionCreate, After: cloneUser(u)})
	return cloneUser(u), nil
}

// UpdateUser mutates an existing user.
func (tx *transaction) UpdateUser(id string, mutator func(*User) error) (User, error) {
	current, ok := tx.state.users[id]
	if !ok {
		return User{}, domain.NotFoundError{Entity: domain.EntityUser, ID: id}
	}
	before := cloneUser(current)
	if err := mutator(&current); err != nil {
		return User{}, err
	}
	current.ID = id
	current.Email = domain.NormalizeEmail(current.Email)
	if err := tx.validateUser(current); err != nil {
		return User{}, err
	}
	current.CreatedAt = before.CreatedAt
	current.UpdatedAt = tx.now
	tx.state.users[id] = cloneUser(current)
	tx.recordChange(Change{Entity: domain.EntityUser, Action: domain.ActionUpdate, Before: before, After: cloneUser(current)})
	return cloneUser(current), nil
}

// DeleteUser removes a staff user.
func (tx *transaction) DeleteUser(id string) error {
	current, ok := tx.state.users[id]
	if !ok {
		return domain.NotFoundError{Entity: domain.EntityUser, ID: id}
	}
	delete(tx.state.users, id)
	tx.recordChange(Change{Entity: domain.EntityUser, Action: domain.ActionDelete, Before: cloneUser(current)})
	return nil
}

func (tx *transaction) validateUser(u User) error {
	if u.Email == "" || !strings.Contains(u.Email, "@") {
		return domain.ValidationError{Entity: domain.EntityUser, Field: "email", Message: "must be a valid address"}
	}
	if !u.Role.Valid() {
		return domain.ValidationError{Entity: domain.EntityUser, Field: "role", Message: fmt.Sprintf("unknown role %q", u.Role)}
	}
	for _, existing := range tx.state.users {
		if existing.ID != u.ID && existing.Email == u.Email {
			return domain.ConflictError{Entity: domain.EntityUser, ID: u.ID, Reason: fmt.Sprintf("email %q already registered", u.Email)}
		}
	}
	if u.TeamID != nil {
		if _, ok := tx.state.teams[*u.TeamID]; !ok {
			return domain.NotFoundError{Entity: domain.EntityTeam, ID: *u.TeamID}
		}
	}
	return nil
}
