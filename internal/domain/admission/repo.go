package admission

import (
	"context"
	"errors"
)

var (
	ErrStayNotFound    = errors.New("stay not found")
	ErrVersionConflict = errors.New("stay was modified concurrently")
)

// Repository persists workflow checkpoints.
type Repository interface {
	Create(ctx context.Context, s *Stay) error
	GetByAdmissionID(ctx context.Context, admissionID string) (*Stay, error)
	// Update saves s if its version still matches and bumps the version.
	Update(ctx context.Context, s *Stay) error
	ListByState(ctx context.Context, state State, limit, offset int) ([]*Stay, int, error)
}
