package postgres

import (
	"context"
	"database/sql"
	"errors"

	"shipment-control/internal/domain/locations"
	"shipment-control/internal/domain/servicerr"
)

type LocationsRepo struct {
	db *sql.DB
}

func NewLocationsRepo(db *sql.DB) *LocationsRepo {
	return &LocationsRepo{db: db}
}

func (r *LocationsRepo) Upsert(ctx context.Context, l locations.Location) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO locations (id, code, name, is_lab, is_clinical_site)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (id) DO UPDATE
		SET code = EXCLUDED.code,
		    name = EXCLUDED.name,
		    is_lab = EXCLUDED.is_lab,
		    is_clinical_site = EXCLUDED.is_clinical_site
	`,
		l.ID,
		l.Code,
		l.Name,
		l.IsLab,
		l.IsClinicalSite,
	)
	return err
}

func (r *LocationsRepo) GetByID(ctx context.Context, id string) (locations.Location, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, code, name, is_lab, is_clinical_site
		FROM locations
		WHERE id = $1
	`, id)

	var l locations.Location
	if err := row.Scan(&l.ID, &l.Code, &l.Name, &l.IsLab, &l.IsClinicalSite); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return locations.Location{}, servicerr.ErrNotFound
		}
		return locations.Location{}, err
	}
	return l, nil
}

func (r *LocationsRepo) ListLabs(ctx context.Context) ([]locations.Location, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, code, name, is_lab, is_clinical_site
		FROM locations
		WHERE is_lab
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]locations.Location, 0)
	for rows.Next() {
		var l locations.Location
		if err := rows.Scan(&l.ID, &l.Code, &l.Name, &l.IsLab, &l.IsClinicalSite); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}
