package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"shipment-control/internal/domain/servicerr"
	"shipment-control/internal/domain/shipments"
)

type ShipmentsRepo struct {
	db *sql.DB
}

func NewShipmentsRepo(db *sql.DB) *ShipmentsRepo {
	return &ShipmentsRepo{db: db}
}

// Los nombres de origen/destino se resuelven en la lectura contra la tabla
// de locations, como columnas de solo lectura.
const shipmentColumns = `
	s.id, s.ref, s.status,
	s.sent_from, COALESCE(l1.name,''), COALESCE(s.sent_to,''), COALESCE(l2.name,''),
	COALESCE(s.sender_id,''), COALESCE(s.sender,''), s.send_date,
	COALESCE(s.receiver_id,''), COALESCE(s.receiver,''), s.reception_date,
	COALESCE(s.reception_status,''), COALESCE(s.reception_comments,''),
	s.created_at, s.updated_at`

const shipmentJoins = `
	FROM shipments s
	LEFT JOIN locations l1 ON s.sent_from = l1.id
	LEFT JOIN locations l2 ON s.sent_to = l2.id`

func scanShipment(row interface{ Scan(dest ...any) error }) (shipments.Shipment, error) {
	var s shipments.Shipment
	var sendDate, receptionDate sql.NullTime
	err := row.Scan(
		&s.ID,
		&s.Ref,
		&s.Status,
		&s.SentFromID,
		&s.SentFrom,
		&s.SentToID,
		&s.SentTo,
		&s.SenderID,
		&s.Sender,
		&sendDate,
		&s.ReceiverID,
		&s.Receiver,
		&receptionDate,
		&s.ReceptionStatus,
		&s.ReceptionComments,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		return shipments.Shipment{}, err
	}
	s.SendDate = nullTimePtr(sendDate)
	s.ReceptionDate = nullTimePtr(receptionDate)
	return s, nil
}

func nullTimePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func (r *ShipmentsRepo) Create(ctx context.Context, s shipments.Shipment) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO shipments (
			id, ref, status, sent_from, sent_to, sender_id, sender, send_date,
			receiver_id, receiver, reception_date, reception_status, reception_comments,
			created_at, updated_at
		) VALUES ($1,$2,$3,$4,NULLIF($5,''),NULLIF($6,''),NULLIF($7,''),$8,
			NULLIF($9,''),NULLIF($10,''),$11,NULLIF($12,''),NULLIF($13,''),$14,$15)
	`,
		s.ID,
		s.Ref,
		int(s.Status),
		s.SentFromID,
		s.SentToID,
		s.SenderID,
		s.Sender,
		s.SendDate,
		s.ReceiverID,
		s.Receiver,
		s.ReceptionDate,
		s.ReceptionStatus,
		s.ReceptionComments,
		s.CreatedAt,
		s.UpdatedAt,
	)
	return err
}

func (r *ShipmentsRepo) Update(ctx context.Context, s shipments.Shipment) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE shipments
		SET ref = $2,
		    status = $3,
		    sent_from = $4,
		    sent_to = NULLIF($5,''),
		    sender_id = NULLIF($6,''),
		    sender = NULLIF($7,''),
		    send_date = $8,
		    receiver_id = NULLIF($9,''),
		    receiver = NULLIF($10,''),
		    reception_date = $11,
		    reception_status = NULLIF($12,''),
		    reception_comments = NULLIF($13,''),
		    updated_at = $14
		WHERE id = $1
	`,
		s.ID,
		s.Ref,
		int(s.Status),
		s.SentFromID,
		s.SentToID,
		s.SenderID,
		s.Sender,
		s.SendDate,
		s.ReceiverID,
		s.Receiver,
		s.ReceptionDate,
		s.ReceptionStatus,
		s.ReceptionComments,
		s.UpdatedAt,
	)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return servicerr.ErrNotFound
	}
	return nil
}

func (r *ShipmentsRepo) GetByID(ctx context.Context, id string) (shipments.Shipment, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+shipmentColumns+shipmentJoins+` WHERE s.id = $1`, id)
	s, err := scanShipment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return shipments.Shipment{}, servicerr.ErrNotFound
	}
	return s, err
}

func (r *ShipmentsRepo) List(ctx context.Context, f shipments.ListFilter) ([]shipments.Shipment, int, error) {
	conds := make([]string, 0)
	args := make([]any, 0)

	if f.ActiveLocationID != "" {
		args = append(args, f.ActiveLocationID, int(shipments.StatusPreparing))
		conds = append(conds, fmt.Sprintf("(s.sent_from = $%d OR (s.sent_to = $%d AND s.status <> $%d))", len(args)-1, len(args)-1, len(args)))
	}
	if f.Ref != "" {
		args = append(args, "%"+f.Ref+"%")
		conds = append(conds, fmt.Sprintf("s.ref LIKE $%d", len(args)))
	}
	if f.SentFromID != "" {
		args = append(args, f.SentFromID)
		conds = append(conds, fmt.Sprintf("s.sent_from = $%d", len(args)))
	}
	if f.SentToID != "" {
		args = append(args, f.SentToID)
		conds = append(conds, fmt.Sprintf("s.sent_to = $%d", len(args)))
	}

	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM shipments s`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + shipmentColumns + shipmentJoins + where + ` ORDER BY s.created_at DESC, s.id`
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

	out := make([]shipments.Shipment, 0)
	for rows.Next() {
		s, err := scanShipment(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, s)
	}
	return out, total, rows.Err()
}

func (r *ShipmentsRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM shipments WHERE id = $1`, id)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return servicerr.ErrNotFound
	}
	return nil
}

func (r *ShipmentsRepo) AddAliquot(ctx context.Context, sa shipments.ShippedAliquot) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO shipped_aliquots (shipment_id, aliquot_id, condition, shipment_task_id, reception_task_id)
		VALUES ($1,$2,NULLIF($3,''),NULLIF($4,''),NULLIF($5,''))
		ON CONFLICT (shipment_id, aliquot_id) DO NOTHING
	`,
		sa.ShipmentID,
		sa.AliquotID,
		sa.Condition,
		sa.ShipmentTaskID,
		sa.ReceptionTaskID,
	)
	return err
}

func (r *ShipmentsRepo) RemoveAliquot(ctx context.Context, shipmentID, aliquotID string) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM shipped_aliquots WHERE shipment_id = $1 AND aliquot_id = $2`,
		shipmentID, aliquotID)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return servicerr.ErrNotFound
	}
	return nil
}

func (r *ShipmentsRepo) SetAliquotCondition(ctx context.Context, shipmentID, aliquotID, condition string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE shipped_aliquots SET condition = NULLIF($3,'') WHERE shipment_id = $1 AND aliquot_id = $2`,
		shipmentID, aliquotID, condition)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return servicerr.ErrNotFound
	}
	return nil
}

func (r *ShipmentsRepo) ListAliquots(ctx context.Context, shipmentID string) ([]shipments.ShippedAliquot, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT shipment_id, aliquot_id, COALESCE(condition,''), COALESCE(shipment_task_id,''), COALESCE(reception_task_id,'')
		FROM shipped_aliquots
		WHERE shipment_id = $1
		ORDER BY aliquot_id
	`, shipmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]shipments.ShippedAliquot, 0)
	for rows.Next() {
		var sa shipments.ShippedAliquot
		if err := rows.Scan(&sa.ShipmentID, &sa.AliquotID, &sa.Condition, &sa.ShipmentTaskID, &sa.ReceptionTaskID); err != nil {
			return nil, err
		}
		out = append(out, sa)
	}
	return out, rows.Err()
}

func (r *ShipmentsRepo) SetTrackingTask(ctx context.Context, kind shipments.TrackKind, shipmentID, taskID string, aliquotIDs []string) error {
	if len(aliquotIDs) == 0 {
		return nil
	}

	column := "shipment_task_id"
	if kind == shipments.TrackReception {
		column = "reception_task_id"
	}

	args := []any{taskID, shipmentID}
	placeholders := make([]string, 0, len(aliquotIDs))
	for _, id := range aliquotIDs {
		args = append(args, id)
		placeholders = append(placeholders, fmt.Sprintf("$%d", len(args)))
	}

	_, err := r.db.ExecContext(ctx,
		`UPDATE shipped_aliquots SET `+column+` = $1 WHERE shipment_id = $2 AND aliquot_id IN (`+strings.Join(placeholders, ",")+`)`,
		args...)
	return err
}
