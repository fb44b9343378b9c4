package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	blob "shelterhub/internal/blob/core"
	"shelterhub/pkg/domain"
)

// ErrPhotoStoreUnavailable is returned by photo operations when no blob store is configured.
var ErrPhotoStoreUnavailable = errors.New("photo store not configured")

// CatFilter narrows ListCats. Zero values match everything.
type CatFilter struct {
	Status          CatStatus
	WardID          string
	CageID          string
	IncludeDeparted bool
}

// IntakeCat registers a newly arrived cat. The intake number is allocated by
// the store inside the same transaction.
func (s *Service) IntakeCat(ctx context.Context, cat Cat) (Cat, Result, error) {
	ctx, done := s.begin(ctx, "intake_cat")
	if cat.Status.Departed() {
		err := domain.ValidationError{Entity: domain.EntityCat, Field: "status", Message: "intake cannot use an outcome status"}
		done("", Result{}, err)
		return Cat{}, Result{}, err
	}
	if cat.IntakeAt.IsZero() {
		cat.IntakeAt = s.clock.Now()
	}
	cat.OutcomeAt = nil
	var created Cat
	res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
		var err error
		created, err = tx.CreateCat(cat)
		return err
	})
	done(created.ID, res, err)
	return created, res, err
}

// UpdateCat mutates descriptive cat fields. Housing and status transitions go
// through PlaceCat, ReleaseCat and DischargeCat.
func (s *Service) UpdateCat(ctx context.Context, id string, mutator func(*Cat) error) (Cat, Result, error) {
	ctx, done := s.begin(ctx, "update_cat")
	var updated Cat
	res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
		var err error
		updated, err = tx.UpdateCat(id, func(c *Cat) error {
			cageID, status, outcome := c.CageID, c.Status, c.OutcomeAt
			if err := mutator(c); err != nil {
				return err
			}
			c.CageID, c.Status, c.OutcomeAt = cageID, status, outcome
			return nil
		})
		return err
	})
	done(id, res, err)
	return updated, res, err
}

// PlaceCat moves a cat into a cage. Capacity is enforced by the cage_capacity rule.
func (s *Service) PlaceCat(ctx context.Context, catID, cageID string) (Cat, Result, error) {
	ctx, done := s.begin(ctx, "place_cat")
	var updated Cat
	res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
		if _, ok := tx.Snapshot().FindCage(cageID); !ok {
			return domain.NotFoundError{Entity: domain.EntityCage, ID: cageID}
		}
		var err error
		updated, err = tx.UpdateCat(catID, func(c *Cat) error {
			if c.Status.Departed() {
				return domain.ConflictError{Entity: domain.EntityCat, ID: catID, Reason: fmt.Sprintf("cat is %s", c.Status)}
			}
			c.CageID = &cageID
			if c.Status == domain.CatStatusIntake {
				c.Status = domain.CatStatusSheltered
			}
			return nil
		})
		return err
	})
	done(catID, res, err)
	return updated, res, err
}

// ReleaseCat frees the cage place held by a cat.
func (s *Service) ReleaseCat(ctx context.Context, catID string) (Cat, Result, error) {
	ctx, done := s.begin(ctx, "release_cat")
	var updated Cat
	res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
		var err error
		updated, err = tx.UpdateCat(catID, func(c *Cat) error {
			if !c.Housed() {
				return domain.ConflictError{Entity: domain.EntityCat, ID: catID, Reason: "cat is not housed"}
			}
			c.CageID = nil
			return nil
		})
		return err
	})
	done(catID, res, err)
	return updated, res, err
}

// DischargeCat records an outcome (adopted, transferred or deceased) and frees
// the cage in the same transaction.
func (s *Service) DischargeCat(ctx context.Context, catID string, outcome CatStatus, at time.Time) (Cat, Result, error) {
	ctx, done := s.begin(ctx, "discharge_cat")
	if !outcome.Departed() {
		err := domain.ValidationError{Entity: domain.EntityCat, Field: "status", Message: fmt.Sprintf("%q is not an outcome status", outcome)}
		done(catID, Result{}, err)
		return Cat{}, Result{}, err
	}
	if at.IsZero() {
		at = s.clock.Now()
	}
	var updated Cat
	res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
		var err error
		updated, err = tx.UpdateCat(catID, func(c *Cat) error {
			if c.Status.Departed() {
				return domain.ConflictError{Entity: domain.EntityCat, ID: catID, Reason: fmt.Sprintf("cat already %s", c.Status)}
			}
			if at.Before(c.IntakeAt) {
				return domain.ValidationError{Entity: domain.EntityCat, Field: "outcome_at", Message: "must not precede intake"}
			}
			c.Status = outcome
			c.OutcomeAt = &at
			c.CageID = nil
			return nil
		})
		return err
	})
	done(catID, res, err)
	return updated, res, err
}

// SetMedicalHold toggles a resident cat between sheltered and medical_hold.
func (s *Service) SetMedicalHold(ctx context.Context, catID string, hold bool) (Cat, Result, error) {
	status := domain.CatStatusSheltered
	if hold {
		status = domain.CatStatusMedicalHold
	}
	return s.UpdateCatStatus(ctx, catID, status)
}

// UpdateCatStatus switches a resident cat between non-outcome statuses.
func (s *Service) UpdateCatStatus(ctx context.Context, catID string, status CatStatus) (Cat, Result, error) {
	ctx, done := s.begin(ctx, "update_cat")
	if status.Departed() || !status.Valid() {
		err := domain.ValidationError{Entity: domain.EntityCat, Field: "status", Message: fmt.Sprintf("%q is not a resident status", status)}
		done(catID, Result{}, err)
		return Cat{}, Result{}, err
	}
	var updated Cat
	res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
		var err error
		updated, err = tx.UpdateCat(catID, func(c *Cat) error {
			if c.Status.Departed() {
				return domain.ConflictError{Entity: domain.EntityCat, ID: catID, Reason: fmt.Sprintf("cat is %s", c.Status)}
			}
			c.Status = status
			return nil
		})
		return err
	})
	done(catID, res, err)
	return updated, res, err
}

// DeleteCat removes a cat registered by mistake. Cats with treatments or
// donations are discharged instead.
func (s *Service) DeleteCat(ctx context.Context, id string) (Result, error) {
	ctx, done := s.begin(ctx, "delete_cat")
	var photoKey string
	res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
		if cat, ok := tx.Snapshot().FindCat(id); ok {
			photoKey = cat.PhotoKey
		}
		return tx.DeleteCat(id)
	})
	if err == nil && photoKey != "" && s.photos != nil {
		if _, delErr := s.photos.Delete(context.WithoutCancel(ctx), photoKey); delErr != nil {
			s.logger.Warn("photo cleanup failed", "cat_id", id, "key", photoKey, "error", delErr)
		}
	}
	done(id, res, err)
	return res, err
}

// AttachCatPhoto uploads a photo to the blob store and links it to the cat.
// The previous photo, if any, is removed afterwards.
func (s *Service) AttachCatPhoto(ctx context.Context, catID, contentType string, body io.Reader) (Cat, Result, error) {
	ctx, done := s.begin(ctx, "attach_cat_photo")
	if s.photos == nil {
		done(catID, Result{}, ErrPhotoStoreUnavailable)
		return Cat{}, Result{}, ErrPhotoStoreUnavailable
	}
	if _, err := s.GetCat(ctx, catID); err != nil {
		done(catID, Result{}, err)
		return Cat{}, Result{}, err
	}
	key := fmt.Sprintf("photos/%s/%s", catID, uuid.NewString())
	if _, err := s.photos.Put(ctx, key, body, blob.PutOptions{
		ContentType: contentType,
		Metadata:    map[string]string{"cat_id": catID},
	}); err != nil {
		err = fmt.Errorf("upload photo: %w", err)
		done(catID, Result{}, err)
		return Cat{}, Result{}, err
	}

	var previous string
	var updated Cat
	res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
		var err error
		updated, err = tx.UpdateCat(catID, func(c *Cat) error {
			previous = c.PhotoKey
			c.PhotoKey = key
			return nil
		})
		return err
	})
	cleanup := previous
	if err != nil {
		cleanup = key
	}
	if cleanup != "" {
		if _, delErr := s.photos.Delete(context.WithoutCancel(ctx), cleanup); delErr != nil {
			s.logger.Warn("photo cleanup failed", "cat_id", catID, "key", cleanup, "error", delErr)
		}
	}
	done(catID, res, err)
	return updated, res, err
}

// CatPhoto opens the stored photo of a cat.
func (s *Service) CatPhoto(ctx context.Context, catID string) (blob.Info, io.ReadCloser, error) {
	key, err := s.photoKey(ctx, catID)
	if err != nil {
		return blob.Info{}, nil, err
	}
	return s.photos.Get(ctx, key)
}

// CatPhotoURL returns a time-limited URL for the cat's photo. Drivers without
// presigning return blob.ErrUnsupported.
func (s *Service) CatPhotoURL(ctx context.Context, catID string, expiry time.Duration) (string, error) {
	key, err := s.photoKey(ctx, catID)
	if err != nil {
		return "", err
	}
	return s.photos.PresignURL(ctx, key, blob.SignedURLOptions{Method: "GET", Expiry: expiry})
}

func (s *Service) photoKey(ctx context.Context, catID string) (string, error) {
	if s.photos == nil {
		return "", ErrPhotoStoreUnavailable
	}
	cat, err := s.GetCat(ctx, catID)
	if err != nil {
		return "", err
	}
	if cat.PhotoKey == "" {
		return "", domain.NotFoundError{Entity: "photo", ID: catID}
	}
	return cat.PhotoKey, nil
}

// GetCat returns a single cat.
func (s *Service) GetCat(ctx context.Context, id string) (Cat, error) {
	var cat Cat
	err := s.view(ctx, func(v TransactionView) error {
		found, ok := v.FindCat(id)
		if !ok {
			return domain.NotFoundError{Entity: domain.EntityCat, ID: id}
		}
		cat = found
		return nil
	})
	return cat, err
}

// ListCats returns cats matching filter ordered by intake number. Departed
// cats are excluded unless requested or selected by status.
func (s *Service) ListCats(ctx context.Context, filter CatFilter) ([]Cat, error) {
	ctx, done := s.begin(ctx, "list_cats")
	var out []Cat
	err := s.view(ctx, func(v TransactionView) error {
		out = make([]Cat, 0)
		for _, cat := range v.ListCats() {
			if filter.Status != "" && cat.Status != filter.Status {
				continue
			}
			if filter.Status == "" && !filter.IncludeDeparted && cat.Status.Departed() {
				continue
			}
			if filter.CageID != "" && (!cat.Housed() || *cat.CageID != filter.CageID) {
				continue
			}
			if filter.WardID != "" {
				if !cat.Housed() {
					continue
				}
				cage, ok := v.FindCage(*cat.CageID)
				if !ok || cage.WardID != filter.WardID {
					continue
				}
			}
			out = append(out, cat)
		}
		return nil
	})
	done("", Result{}, err)
	return out, err
}
