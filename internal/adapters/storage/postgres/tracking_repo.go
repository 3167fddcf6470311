package postgres

import (
	"context"
	"database/sql"

	"shipment-control/internal/domain/shipments"
	"shipment-control/internal/domain/tracking"
)

// TrackingRepo implementa las dos consultas de solo lectura del scanner
// directamente sobre el join SHIPPED_ALIQUOTS. La pertenencia se resuelve
// siempre por el join y no por el shipment_id del ledger, porque la
// recepción lo limpia.
type TrackingRepo struct {
	db *sql.DB
}

func NewTrackingRepo(db *sql.DB) *TrackingRepo {
	return &TrackingRepo{db: db}
}

func (r *TrackingRepo) UntrackedShipments(ctx context.Context) ([]tracking.PendingRow, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT DISTINCT sa.shipment_id, a.patient_id, COALESCE(a.patient_ref,''), s.send_date, s.id
		FROM shipped_aliquots sa
		JOIN shipments s ON sa.shipment_id = s.id
		JOIN aliquots a ON sa.aliquot_id = a.id
		WHERE s.status IN ($1, $2)
		  AND sa.shipment_task_id IS NULL
		  AND a.patient_id IS NOT NULL
		ORDER BY s.send_date, s.id, a.patient_id
	`, int(shipments.StatusShipped), int(shipments.StatusReceived))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPendingRows(rows, false)
}

func (r *TrackingRepo) UntrackedReceptions(ctx context.Context) ([]tracking.PendingRow, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT DISTINCT sa.shipment_id, a.patient_id, COALESCE(a.patient_ref,''), sa.shipment_task_id, s.send_date, s.id
		FROM shipped_aliquots sa
		JOIN shipments s ON sa.shipment_id = s.id
		JOIN aliquots a ON sa.aliquot_id = a.id
		WHERE s.status = $1
		  AND sa.shipment_task_id IS NOT NULL
		  AND sa.reception_task_id IS NULL
		  AND a.patient_id IS NOT NULL
		ORDER BY s.send_date, s.id, a.patient_id
	`, int(shipments.StatusReceived))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPendingRows(rows, true)
}

func collectPendingRows(rows *sql.Rows, withTask bool) ([]tracking.PendingRow, error) {
	out := make([]tracking.PendingRow, 0)
	for rows.Next() {
		var p tracking.PendingRow
		var sendDate sql.NullTime
		var shipmentID string
		var err error
		if withTask {
			err = rows.Scan(&p.ShipmentID, &p.PatientID, &p.PatientRef, &p.TaskID, &sendDate, &shipmentID)
		} else {
			err = rows.Scan(&p.ShipmentID, &p.PatientID, &p.PatientRef, &sendDate, &shipmentID)
		}
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
