package memory

import (
	"context"
	"sort"
	"time"

	"shipment-control/internal/domain/aliquots"
	"shipment-control/internal/domain/shipments"
	"shipment-control/internal/domain/tracking"
)

// trackingRepo reproduce en memoria las dos consultas de reconciliación
// (en postgres son joins sobre SHIPMENTS, SHIPPED_ALIQUOTS y ALIQUOTS).
type trackingRepo struct {
	ships shipments.Repository
	ali   aliquots.Repository
}

func NewTrackingRepo(ships shipments.Repository, ali aliquots.Repository) tracking.Repository {
	return &trackingRepo{ships: ships, ali: ali}
}

func (r *trackingRepo) UntrackedShipments(ctx context.Context) ([]tracking.PendingRow, error) {
	return r.scan(ctx,
		func(s shipments.Shipment) bool {
			return s.Status == shipments.StatusShipped || s.Status == shipments.StatusReceived
		},
		func(j shipments.ShippedAliquot) bool { return j.ShipmentTaskID == "" },
		func(j shipments.ShippedAliquot) string { return "" },
	)
}

func (r *trackingRepo) UntrackedReceptions(ctx context.Context) ([]tracking.PendingRow, error) {
	return r.scan(ctx,
		func(s shipments.Shipment) bool { return s.Status == shipments.StatusReceived },
		func(j shipments.ShippedAliquot) bool {
			return j.ShipmentTaskID != "" && j.ReceptionTaskID == ""
		},
		func(j shipments.ShippedAliquot) string { return j.ShipmentTaskID },
	)
}

// scan recorre los envíos que cumplen wantShipment y emite una fila por
// paciente con al menos un join pendiente según wantJoin. taskOf aporta el
// task id que acompaña la fila (vacío en el caso envío).
func (r *trackingRepo) scan(
	ctx context.Context,
	wantShipment func(shipments.Shipment) bool,
	wantJoin func(shipments.ShippedAliquot) bool,
	taskOf func(shipments.ShippedAliquot) string,
) ([]tracking.PendingRow, error) {
	all, _, err := r.ships.List(ctx, shipments.ListFilter{})
	if err != nil {
		return nil, err
	}

	candidates := make([]shipments.Shipment, 0)
	for _, s := range all {
		if wantShipment(s) {
			candidates = append(candidates, s)
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		di, dj := sendTime(candidates[i]), sendTime(candidates[j])
		if !di.Equal(dj) {
			return di.Before(dj)
		}
		return candidates[i].ID < candidates[j].ID
	})

	out := make([]tracking.PendingRow, 0)
	for _, s := range candidates {
		joins, err := r.ships.ListAliquots(ctx, s.ID)
		if err != nil {
			return nil, err
		}

		pending := make([]shipments.ShippedAliquot, 0)
		ids := make([]string, 0)
		for _, j := range joins {
			if wantJoin(j) {
				pending = append(pending, j)
				ids = append(ids, j.AliquotID)
			}
		}
		if len(pending) == 0 {
			continue
		}

		rows, err := r.ali.ListByIDs(ctx, ids)
		if err != nil {
			return nil, err
		}
		patientOf := make(map[string]aliquots.Aliquot, len(rows))
		for _, a := range rows {
			patientOf[a.ID] = a
		}

		seen := make(map[string]bool)
		shipmentRows := make([]tracking.PendingRow, 0)
		for _, j := range pending {
			a, ok := patientOf[j.AliquotID]
			if !ok || a.PatientID == "" || seen[a.PatientID] {
				continue
			}
			seen[a.PatientID] = true
			shipmentRows = append(shipmentRows, tracking.PendingRow{
				ShipmentID: s.ID,
				PatientID:  a.PatientID,
				PatientRef: a.PatientRef,
				TaskID:     taskOf(j),
			})
		}
		sort.Slice(shipmentRows, func(i, j int) bool {
			return shipmentRows[i].PatientID < shipmentRows[j].PatientID
		})
		out = append(out, shipmentRows...)
	}
	return out, nil
}

func sendTime(s shipments.Shipment) time.Time {
	if s.SendDate != nil {
		return *s.SendDate
	}
	return s.CreatedAt
}
