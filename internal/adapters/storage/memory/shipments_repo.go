package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"shipment-control/internal/domain/servicerr"
	"shipment-control/internal/domain/shipments"
)

type shipmentRepo struct {
	mu    sync.RWMutex
	byID  map[string]shipments.Shipment
	joins map[string][]shipments.ShippedAliquot // por shipment id
}

func NewShipmentRepo() shipments.Repository {
	return &shipmentRepo{
		byID:  make(map[string]shipments.Shipment),
		joins: make(map[string][]shipments.ShippedAliquot),
	}
}

func (r *shipmentRepo) Create(ctx context.Context, s shipments.Shipment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.byID[s.ID] = s
	return nil
}

func (r *shipmentRepo) Update(ctx context.Context, s shipments.Shipment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byID[s.ID]; !exists {
		return servicerr.ErrNotFound
	}
	r.byID[s.ID] = s
	return nil
}

func (r *shipmentRepo) GetByID(ctx context.Context, id string) (shipments.Shipment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.byID[id]
	if !ok {
		return shipments.Shipment{}, servicerr.ErrNotFound
	}
	return s, nil
}

func (r *shipmentRepo) List(ctx context.Context, f shipments.ListFilter) ([]shipments.Shipment, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]shipments.Shipment, 0)
	for _, s := range r.byID {
		if f.ActiveLocationID != "" {
			// los salientes siempre; los entrantes solo cuando ya salieron
			outgoing := s.SentFromID == f.ActiveLocationID
			incoming := s.SentToID == f.ActiveLocationID && s.Status != shipments.StatusPreparing
			if !outgoing && !incoming {
				continue
			}
		}
		if f.Ref != "" && !strings.Contains(s.Ref, f.Ref) {
			continue
		}
		if f.SentFromID != "" && s.SentFromID != f.SentFromID {
			continue
		}
		if f.SentToID != "" && s.SentToID != f.SentToID {
			continue
		}
		out = append(out, s)
	}

	// Más recientes primero; el id desempata para una paginación estable.
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})

	total := len(out)
	return paginate(out, f.Page, f.PageSize), total, nil
}

func (r *shipmentRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byID[id]; !exists {
		return servicerr.ErrNotFound
	}
	delete(r.byID, id)
	delete(r.joins, id)
	return nil
}

func (r *shipmentRepo) AddAliquot(ctx context.Context, sa shipments.ShippedAliquot) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, j := range r.joins[sa.ShipmentID] {
		if j.AliquotID == sa.AliquotID {
			return nil // ya asignado
		}
	}
	r.joins[sa.ShipmentID] = append(r.joins[sa.ShipmentID], sa)
	return nil
}

func (r *shipmentRepo) RemoveAliquot(ctx context.Context, shipmentID, aliquotID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rows := r.joins[shipmentID]
	for i, j := range rows {
		if j.AliquotID == aliquotID {
			r.joins[shipmentID] = append(rows[:i:i], rows[i+1:]...)
			return nil
		}
	}
	return servicerr.ErrNotFound
}

func (r *shipmentRepo) SetAliquotCondition(ctx context.Context, shipmentID, aliquotID, condition string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rows := r.joins[shipmentID]
	for i := range rows {
		if rows[i].AliquotID == aliquotID {
			rows[i].Condition = condition
			return nil
		}
	}
	return servicerr.ErrNotFound
}

func (r *shipmentRepo) ListAliquots(ctx context.Context, shipmentID string) ([]shipments.ShippedAliquot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rows := r.joins[shipmentID]
	out := make([]shipments.ShippedAliquot, len(rows))
	copy(out, rows)

	sort.Slice(out, func(i, j int) bool {
		return out[i].AliquotID < out[j].AliquotID
	})

	return out, nil
}

func (r *shipmentRepo) SetTrackingTask(ctx context.Context, kind shipments.TrackKind, shipmentID, taskID string, aliquotIDs []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	wanted := make(map[string]bool, len(aliquotIDs))
	for _, id := range aliquotIDs {
		wanted[id] = true
	}

	rows := r.joins[shipmentID]
	for i := range rows {
		if !wanted[rows[i].AliquotID] {
			continue
		}
		switch kind {
		case shipments.TrackShipment:
			rows[i].ShipmentTaskID = taskID
		case shipments.TrackReception:
			rows[i].ReceptionTaskID = taskID
		}
	}
	return nil
}
