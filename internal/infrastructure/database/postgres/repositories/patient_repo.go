package repositories

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"

	"github.com/turtacn/livecare/internal/domain/patient"
	"github.com/turtacn/livecare/internal/infrastructure/database/postgres"
	"github.com/turtacn/livecare/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/livecare/pkg/errors"
)

type postgresPatientRepo struct {
	conn     *postgres.Connection
	log      logging.Logger
	executor queryExecutor
}

// NewPostgresPatientRepo returns a patient.Repository backed by the patients
// and patient_medications tables.
func NewPostgresPatientRepo(conn *postgres.Connection, log logging.Logger) patient.Repository {
	return &postgresPatientRepo{
		conn:     conn,
		log:      log,
		executor: conn.DB(),
	}
}

func (r *postgresPatientRepo) Create(ctx context.Context, p *patient.Patient) (int64, error) {
	if p == nil {
		return 0, errors.InvalidParam("patient is required")
	}
	err := r.conn.WithTx(ctx, func(tx *sqlx.Tx) error {
		var age sql.NullInt64
		if p.Age != nil {
			age = sql.NullInt64{Int64: int64(*p.Age), Valid: true}
		}
		err := tx.QueryRowxContext(ctx,
			`INSERT INTO patients (name, age, gender) VALUES ($1, $2, $3) RETURNING id`,
			p.Name, age, p.Gender,
		).Scan(&p.ID)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to insert patient")
		}

		for i, name := range p.Medications {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO patient_medications (patient_id, position, item_name) VALUES ($1, $2, $3)`,
				p.ID, i, name,
			); err != nil {
				return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to insert patient medication").
					WithDetail(name)
			}
		}
		return nil
	})
	if err != nil {
		p.ID = 0
		return 0, err
	}
	return p.ID, nil
}

func (r *postgresPatientRepo) FindByID(ctx context.Context, id int64) (*patient.Patient, error) {
	var row struct {
		ID     int64          `db:"id"`
		Name   sql.NullString `db:"name"`
		Age    sql.NullInt64  `db:"age"`
		Gender sql.NullString `db:"gender"`
	}
	err := sqlx.GetContext(ctx, r.executor, &row,
		`SELECT id, name, age, gender FROM patients WHERE id = $1`, id)
	if err != nil {
		if isNoRows(err) {
			return nil, errors.New(errors.ErrCodePatientNotFound, "patient not found").WithDetail(toDetail(id))
		}
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to query patient")
	}

	p := &patient.Patient{ID: row.ID, Name: row.Name.String, Gender: row.Gender.String, Medications: []string{}}
	if row.Age.Valid {
		age := int(row.Age.Int64)
		p.Age = &age
	}

	if err := sqlx.SelectContext(ctx, r.executor, &p.Medications,
		`SELECT item_name FROM patient_medications WHERE patient_id = $1 ORDER BY position`, id); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to query patient medications")
	}
	return p, nil
}
