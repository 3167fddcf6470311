package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"shipment-control/internal/domain/aliquots"
	"shipment-control/internal/domain/servicerr"
)

type AliquotsRepo struct {
	db *sql.DB
}

func NewAliquotsRepo(db *sql.DB) *AliquotsRepo {
	return &AliquotsRepo{db: db}
}

const aliquotColumns = `
	id, COALESCE(patient_id,''), COALESCE(patient_ref,''), COALESCE(sample_type,''),
	COALESCE(location_id,''), status, COALESCE(condition,''), COALESCE(task_id,''),
	COALESCE(shipment_id,''), created_at, updated_at`

func scanAliquot(row interface{ Scan(dest ...any) error }) (aliquots.Aliquot, error) {
	var a aliquots.Aliquot
	err := row.Scan(
		&a.ID,
		&a.PatientID,
		&a.PatientRef,
		&a.SampleType,
		&a.LocationID,
		&a.Status,
		&a.Condition,
		&a.TaskID,
		&a.ShipmentID,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	return a, err
}

func (r *AliquotsRepo) Get(ctx context.Context, id string) (aliquots.Aliquot, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+aliquotColumns+` FROM aliquots WHERE id = $1`, id)
	a, err := scanAliquot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return aliquots.Aliquot{}, servicerr.ErrNotFound
	}
	return a, err
}

// Put hace upsert por id. Las columnas "anulables" del dominio usan "" como
// null; aquí se normaliza con NULLIF para que los scans de reconciliación
// puedan comparar contra NULL.
func (r *AliquotsRepo) Put(ctx context.Context, a aliquots.Aliquot) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO aliquots (
			id, patient_id, patient_ref, sample_type, location_id,
			status, condition, task_id, shipment_id, created_at, updated_at
		) VALUES ($1,NULLIF($2,''),NULLIF($3,''),NULLIF($4,''),NULLIF($5,''),$6,NULLIF($7,''),NULLIF($8,''),NULLIF($9,''),$10,$11)
		ON CONFLICT (id) DO UPDATE
		SET patient_id = EXCLUDED.patient_id,
		    patient_ref = EXCLUDED.patient_ref,
		    sample_type = EXCLUDED.sample_type,
		    location_id = EXCLUDED.location_id,
		    status = EXCLUDED.status,
		    condition = EXCLUDED.condition,
		    task_id = EXCLUDED.task_id,
		    shipment_id = EXCLUDED.shipment_id,
		    created_at = EXCLUDED.created_at,
		    updated_at = EXCLUDED.updated_at
	`,
		a.ID,
		a.PatientID,
		a.PatientRef,
		string(a.SampleType),
		a.LocationID,
		int(a.Status),
		a.Condition,
		a.TaskID,
		a.ShipmentID,
		a.CreatedAt,
		a.UpdatedAt,
	)
	return err
}

func (r *AliquotsRepo) ListByIDs(ctx context.Context, ids []string) ([]aliquots.Aliquot, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := make([]string, 0, len(ids))
	args := make([]any, 0, len(ids))
	for i, id := range ids {
		placeholders = append(placeholders, fmt.Sprintf("$%d", i+1))
		args = append(args, id)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+aliquotColumns+` FROM aliquots WHERE id IN (`+strings.Join(placeholders, ",")+`) ORDER BY id`,
		args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAliquots(rows)
}

func (r *AliquotsRepo) ListByShipment(ctx context.Context, shipmentID string) ([]aliquots.Aliquot, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+aliquotColumns+` FROM aliquots WHERE shipment_id = $1 ORDER BY patient_id, id`,
		shipmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAliquots(rows)
}

func (r *AliquotsRepo) ListShippable(ctx context.Context, f aliquots.ShippableFilter) ([]aliquots.Aliquot, int, error) {
	conds := []string{"status = $1"}
	args := []any{int(aliquots.StatusAvailable)}

	if f.LocationID != "" {
		args = append(args, f.LocationID)
		conds = append(conds, fmt.Sprintf("location_id = $%d", len(args)))
	}
	if f.PatientRef != "" {
		args = append(args, "%"+f.PatientRef+"%")
		conds = append(conds, fmt.Sprintf("patient_ref LIKE $%d", len(args)))
	}
	if f.SampleType != "" {
		args = append(args, "%"+f.SampleType+"%")
		conds = append(conds, fmt.Sprintf("sample_type LIKE $%d", len(args)))
	}
	for _, id := range f.ExcludeIDs {
		args = append(args, id)
		conds = append(conds, fmt.Sprintf("id <> $%d", len(args)))
	}
	where := strings.Join(conds, " AND ")

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM aliquots WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + aliquotColumns + ` FROM aliquots WHERE ` + where + ` ORDER BY patient_ref, id`
	if f.PageSize > 0 {
		page := f.Page
		if page < 1 {
			page = 1
		}
		args = append(args, f.PageSize, (page-1)*f.PageSize)
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out, err := collectAliquots(rows)
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (r *AliquotsRepo) AppendHistory(ctx context.Context, rec aliquots.HistoryRecord) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO aliquots_history (
			id, aliquot_id, task_id, action, location_id,
			status, condition, shipment_id, updated_at, recorded_at
		) VALUES ($1,$2,NULLIF($3,''),$4,NULLIF($5,''),$6,NULLIF($7,''),NULLIF($8,''),$9,$10)
	`,
		rec.ID,
		rec.AliquotID,
		rec.TaskID,
		string(rec.Action),
		rec.LocationID,
		int(rec.Status),
		rec.Condition,
		rec.ShipmentID,
		rec.UpdatedAt,
		rec.RecordedAt,
	)
	return err
}

func (r *AliquotsRepo) HistoryByAliquot(ctx context.Context, aliquotID string) ([]aliquots.HistoryRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, aliquot_id, COALESCE(task_id,''), action, COALESCE(location_id,''),
		       status, COALESCE(condition,''), COALESCE(shipment_id,''), updated_at, recorded_at
		FROM aliquots_history
		WHERE aliquot_id = $1
		ORDER BY recorded_at, id
	`, aliquotID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]aliquots.HistoryRecord, 0)
	for rows.Next() {
		var rec aliquots.HistoryRecord
		if err := rows.Scan(
			&rec.ID,
			&rec.AliquotID,
			&rec.TaskID,
			&rec.Action,
			&rec.LocationID,
			&rec.Status,
			&rec.Condition,
			&rec.ShipmentID,
			&rec.UpdatedAt,
			&rec.RecordedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func collectAliquots(rows *sql.Rows) ([]aliquots.Aliquot, error) {
	out := make([]aliquots.Aliquot, 0)
	for rows.Next() {
		a, err := scanAliquot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
