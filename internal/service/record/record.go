// Package record is the Record Service: it checks incoming records and
// orchestrates calls to the ranked record store.
//
// Validation happens here, before any store call, so a rejected record
// never costs a round trip. The rules:
//
//   - id is required
//   - if birthday is non-empty it must be a YYYY-MM-DD calendar date and
//     score must lie in [types.MinScore, types.MaxScore]
//   - with no birthday neither check applies
//
// Missing name, description and birthday are stored as "", a missing
// score as 0, the zero values the form decoder already produces.
//
// SaveRecord and UpdateRecord apply the same rules. Both are full-record
// upserts; update does not require the id to exist.
package record

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/aanand-mishra/records-api/internal/storage"
	"github.com/aanand-mishra/records-api/internal/types"
)

// ErrValidation marks a record rejected before reaching the store. The
// wrapped error is a validator.ValidationErrors.
var ErrValidation = errors.New("invalid record")

// Service is safe for concurrent use.
type Service struct {
	store    storage.Storage
	validate *validator.Validate
}

// New builds a Service on top of store.
func New(store storage.Storage) *Service {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterStructValidation(scoreInRange, types.Student{})

	return &Service{store: store, validate: v}
}

// scoreInRange enforces the score bounds only when a birthday was given.
func scoreInRange(sl validator.StructLevel) {
	s := sl.Current().Interface().(types.Student)
	if s.Birthday == "" {
		return
	}
	if s.Score < types.MinScore || s.Score > types.MaxScore {
		sl.ReportError(s.Score, "Score", "score", "score_range",
			fmt.Sprintf("%d-%d", types.MinScore, types.MaxScore))
	}
}

// Validate returns nil or an error wrapping ErrValidation.
func (svc *Service) Validate(s types.Student) error {
	if err := svc.validate.Struct(s); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return fmt.Errorf("%w: %w", ErrValidation, verrs)
		}
		return err
	}
	return nil
}

// RecordExists reports whether id is stored.
func (svc *Service) RecordExists(ctx context.Context, id string) (bool, error) {
	return svc.store.Exists(ctx, id)
}

// SaveRecord validates s and writes it.
func (svc *Service) SaveRecord(ctx context.Context, s types.Student) error {
	if err := svc.Validate(s); err != nil {
		return err
	}
	return svc.store.Save(ctx, s)
}

// RemoveRecord deletes id and its ranking entry.
func (svc *Service) RemoveRecord(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("%w: id is required", ErrValidation)
	}
	return svc.store.Remove(ctx, id)
}

// UpdateRecord validates s and rewrites it.
func (svc *Service) UpdateRecord(ctx context.Context, s types.Student) error {
	if err := svc.Validate(s); err != nil {
		return err
	}
	return svc.store.Update(ctx, s)
}

// ListRecordsPage returns a page of records, highest score first.
func (svc *Service) ListRecordsPage(ctx context.Context, pageNum, pageSize int) (types.PageInfo[types.Student], error) {
	return svc.store.ListPage(ctx, pageNum, pageSize)
}

// Ping checks the store is reachable.
func (svc *Service) Ping(ctx context.Context) error {
	return svc.store.Ping(ctx)
}
