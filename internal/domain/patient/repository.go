package patient

import "context"

// Repository is the persistence contract for Patient Records.
type Repository interface {
	// Create stores p and its medications atomically and returns the new id.
	Create(ctx context.Context, p *Patient) (int64, error)

	// FindByID returns ErrCodePatientNotFound when no record matches.
	FindByID(ctx context.Context, id int64) (*Patient, error)
}
