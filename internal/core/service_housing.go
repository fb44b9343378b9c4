package core

import "context"

// CreateWard persists a new ward.
func (s *Service) CreateWard(ctx context.Context, ward Ward) (Ward, Result, error) {
	ctx, done := s.begin(ctx, "create_ward")
	var created Ward
	res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
		var err error
		created, err = tx.CreateWard(ward)
		return err
	})
	done(created.ID, res, err)
	return created, res, err
}

// UpdateWard mutates a ward using the provided mutator.
func (s *Service) UpdateWard(ctx context.Context, id string, mutator func(*Ward) error) (Ward, Result, error) {
	ctx, done := s.begin(ctx, "update_ward")
	var updated Ward
	res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
		var err error
		updated, err = tx.UpdateWard(id, mutator)
		return err
	})
	done(id, res, err)
	return updated, res, err
}

// DeleteWard removes a ward without cages.
func (s *Service) DeleteWard(ctx context.Context, id string) (Result, error) {
	ctx, done := s.begin(ctx, "delete_ward")
	res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
		return tx.DeleteWard(id)
	})
	done(id, res, err)
	return res, err
}

// CreateCage persists a new cage inside a ward.
func (s *Service) CreateCage(ctx context.Context, cage Cage) (Cage, Result, error) {
	ctx, done := s.begin(ctx, "create_cage")
	var created Cage
	res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
		var err error
		created, err = tx.CreateCage(cage)
		return err
	})
	done(created.ID, res, err)
	return created, res, err
}

// UpdateCage mutates a cage. Shrinking below the current occupancy is
// rejected by the cage_capacity rule.
func (s *Service) UpdateCage(ctx context.Context, id string, mutator func(*Cage) error) (Cage, Result, error) {
	ctx, done := s.begin(ctx, "update_cage")
	var updated Cage
	res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
		var err error
		updated, err = tx.UpdateCage(id, mutator)
		return err
	})
	done(id, res, err)
	return updated, res, err
}

// DeleteCage removes an empty cage.
func (s *Service) DeleteCage(ctx context.Context, id string) (Result, error) {
	ctx, done := s.begin(ctx, "delete_cage")
	res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
		return tx.DeleteCage(id)
	})
	done(id, res, err)
	return res, err
}

// ListWards returns all wards ordered by name.
func (s *Service) ListWards(ctx context.Context) ([]Ward, error) {
	ctx, done := s.begin(ctx, "list_wards")
	var out []Ward
	err := s.view(ctx, func(v TransactionView) error {
		out = v.ListWards()
		return nil
	})
	done("", Result{}, err)
	return out, err
}

// ListCages returns all cages ordered by ward and label.
func (s *Service) ListCages(ctx context.Context) ([]Cage, error) {
	ctx, done := s.begin(ctx, "list_cages")
	var out []Cage
	err := s.view(ctx, func(v TransactionView) error {
		out = v.ListCages()
		return nil
	})
	done("", Result{}, err)
	return out, err
}
