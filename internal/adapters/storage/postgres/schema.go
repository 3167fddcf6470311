package postgres

import (
	"context"
	"database/sql"

	"shipment-control/internal/domain/locations"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS locations (
		id               text PRIMARY KEY,
		code             text NOT NULL DEFAULT '',
		name             text NOT NULL DEFAULT '',
		is_lab           boolean NOT NULL DEFAULT false,
		is_clinical_site boolean NOT NULL DEFAULT false
	)`,
	`CREATE TABLE IF NOT EXISTS shipments (
		id                 text PRIMARY KEY,
		ref                text NOT NULL DEFAULT '',
		status             int  NOT NULL,
		sent_from          text NOT NULL,
		sent_to            text,
		sender_id          text,
		sender             text,
		send_date          timestamptz,
		receiver_id        text,
		receiver           text,
		reception_date     timestamptz,
		reception_status   text,
		reception_comments text,
		created_at         timestamptz NOT NULL,
		updated_at         timestamptz NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS aliquots (
		id          text PRIMARY KEY,
		patient_id  text,
		patient_ref text,
		sample_type text,
		location_id text,
		status      int NOT NULL,
		condition   text,
		task_id     text,
		shipment_id text,
		created_at  timestamptz NOT NULL,
		updated_at  timestamptz NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS shipped_aliquots (
		shipment_id       text NOT NULL REFERENCES shipments(id),
		aliquot_id        text NOT NULL,
		condition         text,
		shipment_task_id  text,
		reception_task_id text,
		PRIMARY KEY (shipment_id, aliquot_id)
	)`,
	`CREATE TABLE IF NOT EXISTS aliquots_history (
		id          text PRIMARY KEY,
		aliquot_id  text NOT NULL,
		task_id     text,
		action      text NOT NULL,
		location_id text,
		status      int NOT NULL,
		condition   text,
		shipment_id text,
		updated_at  timestamptz NOT NULL,
		recorded_at timestamptz NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS aliquots_shipment_idx ON aliquots (shipment_id)`,
	`CREATE INDEX IF NOT EXISTS aliquots_history_aliquot_idx ON aliquots_history (aliquot_id)`,
}

// Deploy crea las tablas que falten y siembra las locations configuradas.
// Es idempotente: se ejecuta en cada arranque.
func Deploy(ctx context.Context, db *sql.DB, seeds []locations.Location) error {
	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}

	repo := NewLocationsRepo(db)
	for _, l := range seeds {
		if err := repo.Upsert(ctx, l); err != nil {
			return err
		}
	}
	return nil
}
