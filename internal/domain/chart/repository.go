package chart

import "context"

// Repository persists charts of both kinds.
type Repository interface {
	// Create stores c in the table of c.Kind and returns the new id.
	Create(ctx context.Context, c *Chart) (int64, error)

	// FindByID returns ErrCodeChartNotFound when no chart matches.
	FindByID(ctx context.Context, kind Kind, id int64) (*Chart, error)

	// FindByFileHash looks up a voice chart by the MD5 of its recording.
	// It returns ErrCodeChartNotFound when none exists.
	FindByFileHash(ctx context.Context, hash string) (*Chart, error)

	// UpdateContent replaces the content of chart id and reports whether a row
	// was updated.
	UpdateContent(ctx context.Context, kind Kind, id int64, content string) (bool, error)
}
