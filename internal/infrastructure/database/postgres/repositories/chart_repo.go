package repositories

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/turtacn/livecare/internal/domain/chart"
	"github.com/turtacn/livecare/internal/infrastructure/database/postgres"
	"github.com/turtacn/livecare/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/livecare/pkg/errors"
)

type chartRow struct {
	ID        int64          `db:"id"`
	PatientID sql.NullInt64  `db:"patient_id"`
	Content   string         `db:"content"`
	FileName  sql.NullString `db:"file_name"`
	FileSize  sql.NullInt64  `db:"file_size"`
	FileType  sql.NullString `db:"file_type"`
	FileHash  sql.NullString `db:"file_hash"`
	CreatedAt time.Time      `db:"created_at"`
	UpdatedAt time.Time      `db:"updated_at"`
}

type postgresChartRepo struct {
	log      logging.Logger
	executor queryExecutor
}

// NewPostgresChartRepo returns a chart.Repository that stores prescription
// charts in medical_charts and voice charts in voice_medical_charts.
func NewPostgresChartRepo(conn *postgres.Connection, log logging.Logger) chart.Repository {
	return &postgresChartRepo{
		log:      log,
		executor: conn.DB(),
	}
}

func selectColumns(kind chart.Kind) string {
	cols := []string{"id", "patient_id", "content"}
	if kind == chart.KindVoice {
		cols = append(cols, "file_name", "file_size", "file_type", "file_hash")
	}
	return strings.Join(append(cols, "created_at", "updated_at"), ", ")
}

func (r *postgresChartRepo) Create(ctx context.Context, c *chart.Chart) (int64, error) {
	if c == nil {
		return 0, errors.InvalidParam("chart is required")
	}
	var patientID sql.NullInt64
	if c.PatientID != nil {
		patientID = sql.NullInt64{Int64: *c.PatientID, Valid: true}
	}

	var row *sqlx.Row
	switch c.Kind {
	case chart.KindPrescription:
		row = r.executor.QueryRowxContext(ctx,
			`INSERT INTO medical_charts (patient_id, content) VALUES ($1, $2)
			RETURNING id, created_at, updated_at`,
			patientID, c.Content)
	case chart.KindVoice:
		meta := c.File
		if meta == nil {
			meta = &chart.FileMetadata{}
		}
		row = r.executor.QueryRowxContext(ctx,
			`INSERT INTO voice_medical_charts (patient_id, content, file_name, file_size, file_type, file_hash)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING id, created_at, updated_at`,
			patientID, c.Content, meta.Name, meta.Size, meta.Type, nullIfEmpty(meta.Hash))
	default:
		return 0, errors.New(errors.ErrCodeChartKindInvalid, "unsupported chart kind").WithDetail(string(c.Kind))
	}

	if err := row.Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt); err != nil {
		if pqErr, ok := uniqueViolation(err); ok && pqErr.Constraint == "voice_medical_charts_file_hash_key" {
			return 0, errors.Wrap(err, errors.ErrCodeConflict, "a chart already exists for this recording")
		}
		return 0, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to insert chart")
	}
	return c.ID, nil
}

func (r *postgresChartRepo) FindByID(ctx context.Context, kind chart.Kind, id int64) (*chart.Chart, error) {
	query := `SELECT ` + selectColumns(kind) + ` FROM ` + kind.Table() + ` WHERE id = $1`
	return r.findOne(ctx, kind, query, id)
}

func (r *postgresChartRepo) FindByFileHash(ctx context.Context, hash string) (*chart.Chart, error) {
	query := `SELECT ` + selectColumns(chart.KindVoice) + ` FROM voice_medical_charts WHERE file_hash = $1`
	return r.findOne(ctx, chart.KindVoice, query, hash)
}

func (r *postgresChartRepo) findOne(ctx context.Context, kind chart.Kind, query string, key interface{}) (*chart.Chart, error) {
	var row chartRow
	if err := sqlx.GetContext(ctx, r.executor, &row, query, key); err != nil {
		if isNoRows(err) {
			return nil, errors.New(errors.ErrCodeChartNotFound, "chart not found").
				WithDetail(string(kind) + " " + toDetail(key))
		}
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to query chart")
	}

	c := &chart.Chart{
		ID:        row.ID,
		Kind:      kind,
		Content:   row.Content,
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}
	if row.PatientID.Valid {
		pid := row.PatientID.Int64
		c.PatientID = &pid
	}
	if kind == chart.KindVoice {
		c.File = &chart.FileMetadata{
			Name: row.FileName.String,
			Size: row.FileSize.Int64,
			Type: row.FileType.String,
			Hash: row.FileHash.String,
		}
	}
	return c, nil
}

func (r *postgresChartRepo) UpdateContent(ctx context.Context, kind chart.Kind, id int64, content string) (bool, error) {
	res, err := r.executor.ExecContext(ctx,
		`UPDATE `+kind.Table()+` SET content = $1, updated_at = NOW() WHERE id = $2`, content, id)
	if err != nil {
		return false, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to update chart")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to read affected rows")
	}
	return n > 0, nil
}

func nullIfEmpty(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
