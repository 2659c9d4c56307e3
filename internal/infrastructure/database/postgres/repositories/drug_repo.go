package repositories

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/turtacn/livecare/internal/domain/drug"
	"github.com/turtacn/livecare/internal/infrastructure/database/postgres"
	"github.com/turtacn/livecare/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/livecare/pkg/errors"
)

// drugAttributeColumns are written on insert and update, in placeholder order.
var drugAttributeColumns = []string{
	"품목명", "주성분", "요약_보고서", "성상", "효능효과", "용법용량", "주의사항", "저장방법",
	"유효기간", "재심사기간", "포장단위", "허가종류", "제조_수입", "업체명", "품목일련번호",
	"허가일자", "전문_일반", "재심사대상",
}

var drugSelectColumns = "drug_id, " + strings.Join(drugAttributeColumns, ", ") + ", created_at, updated_at"

type drugRow struct {
	ID           int64     `db:"drug_id"`
	ItemName     string    `db:"품목명"`
	Ingredients  string    `db:"주성분"`
	Summary      string    `db:"요약_보고서"`
	Appearance   string    `db:"성상"`
	Efficacy     string    `db:"효능효과"`
	Dosage       string    `db:"용법용량"`
	Precautions  string    `db:"주의사항"`
	Storage      string    `db:"저장방법"`
	ValidTerm    string    `db:"유효기간"`
	ReexamPeriod string    `db:"재심사기간"`
	PackUnit     string    `db:"포장단위"`
	PermitKind   string    `db:"허가종류"`
	MakeMaterial string    `db:"제조_수입"`
	Manufacturer string    `db:"업체명"`
	ItemSeq      string    `db:"품목일련번호"`
	PermitDate   string    `db:"허가일자"`
	EtcOtc       string    `db:"전문_일반"`
	ReexamTarget string    `db:"재심사대상"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

type postgresDrugRepo struct {
	log      logging.Logger
	executor queryExecutor
}

// NewPostgresDrugRepo returns a drug.Repository backed by the drug_info table.
func NewPostgresDrugRepo(conn *postgres.Connection, log logging.Logger) drug.Repository {
	return &postgresDrugRepo{
		log:      log,
		executor: conn.DB(),
	}
}

func (r *postgresDrugRepo) InsertIfAbsent(ctx context.Context, d *drug.Drug) (bool, error) {
	args, err := drugArgs(d)
	if err != nil {
		return false, err
	}
	query := `INSERT INTO drug_info (` + strings.Join(drugAttributeColumns, ", ") + `)
		VALUES (` + placeholders(1, len(drugAttributeColumns)) + `)
		ON CONFLICT (품목명) DO NOTHING
		RETURNING drug_id, created_at, updated_at`

	err = r.executor.QueryRowxContext(ctx, query, args...).Scan(&d.ID, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		if isNoRows(err) {
			r.log.Debug("Drug record already present", logging.String("item_name", d.ItemName))
			return false, nil
		}
		return false, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to insert drug record").
			WithDetail(d.ItemName)
	}
	return true, nil
}

func (r *postgresDrugRepo) FindByName(ctx context.Context, itemName string) (*drug.Drug, error) {
	query := `SELECT ` + drugSelectColumns + ` FROM drug_info WHERE 품목명 = $1`
	return r.findOne(ctx, query, itemName)
}

func (r *postgresDrugRepo) FindByID(ctx context.Context, id int64) (*drug.Drug, error) {
	query := `SELECT ` + drugSelectColumns + ` FROM drug_info WHERE drug_id = $1`
	return r.findOne(ctx, query, id)
}

func (r *postgresDrugRepo) findOne(ctx context.Context, query string, key interface{}) (*drug.Drug, error) {
	var row drugRow
	if err := sqlx.GetContext(ctx, r.executor, &row, query, key); err != nil {
		if isNoRows(err) {
			return nil, errors.New(errors.ErrCodeDrugNotFound, "drug record not found").
				WithDetail(toDetail(key))
		}
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to query drug record")
	}
	return r.toDomain(&row), nil
}

func (r *postgresDrugRepo) Update(ctx context.Context, id int64, d *drug.Drug) (bool, error) {
	args, err := drugArgs(d)
	if err != nil {
		return false, err
	}
	sets := make([]string, len(drugAttributeColumns))
	for i, col := range drugAttributeColumns {
		sets[i] = col + " = $" + itoa(i+1)
	}
	query := `UPDATE drug_info SET ` + strings.Join(sets, ", ") + `, updated_at = NOW()
		WHERE drug_id = $` + itoa(len(drugAttributeColumns)+1)

	res, err := r.executor.ExecContext(ctx, query, append(args, id)...)
	if err != nil {
		if _, ok := uniqueViolation(err); ok {
			return false, errors.Wrap(err, errors.ErrCodeConflict, "another drug record has this item name").
				WithDetail(d.ItemName)
		}
		return false, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to update drug record")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to read affected rows")
	}
	return n > 0, nil
}

func (r *postgresDrugRepo) toDomain(row *drugRow) *drug.Drug {
	ing := drug.Ingredients{}
	if s := strings.TrimSpace(row.Ingredients); s != "" {
		if err := json.Unmarshal([]byte(s), &ing); err != nil {
			r.log.Warn("Stored ingredients are not valid JSON",
				logging.Int64("drug_id", row.ID), logging.Err(err))
			ing = drug.Ingredients{}
		}
	}
	return &drug.Drug{
		ID:           row.ID,
		ItemName:     row.ItemName,
		Ingredients:  ing,
		Summary:      row.Summary,
		Appearance:   row.Appearance,
		Efficacy:     row.Efficacy,
		Dosage:       row.Dosage,
		Precautions:  row.Precautions,
		Storage:      row.Storage,
		ValidTerm:    row.ValidTerm,
		ReexamPeriod: row.ReexamPeriod,
		PackUnit:     row.PackUnit,
		PermitKind:   row.PermitKind,
		MakeMaterial: row.MakeMaterial,
		Manufacturer: row.Manufacturer,
		ItemSeq:      row.ItemSeq,
		PermitDate:   row.PermitDate,
		EtcOtc:       row.EtcOtc,
		ReexamTarget: row.ReexamTarget,
		CreatedAt:    row.CreatedAt,
		UpdatedAt:    row.UpdatedAt,
	}
}

func drugArgs(d *drug.Drug) ([]interface{}, error) {
	if d == nil || strings.TrimSpace(d.ItemName) == "" {
		return nil, errors.InvalidParam("drug item name is required")
	}
	ing := d.Ingredients
	if ing == nil {
		ing = drug.Ingredients{}
	}
	ingJSON, err := json.Marshal(ing)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to encode ingredients")
	}
	return []interface{}{
		d.ItemName, string(ingJSON), d.Summary, d.Appearance, d.Efficacy, d.Dosage, d.Precautions,
		d.Storage, d.ValidTerm, d.ReexamPeriod, d.PackUnit, d.PermitKind, d.MakeMaterial,
		d.Manufacturer, d.ItemSeq, d.PermitDate, d.EtcOtc, d.ReexamTarget,
	}, nil
}
