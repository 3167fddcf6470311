package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"shipment-control/internal/domain/aliquots"
	"shipment-control/internal/domain/servicerr"
)

type aliquotRepo struct {
	mu      sync.RWMutex
	byID    map[string]aliquots.Aliquot
	history map[string][]aliquots.HistoryRecord
}

func NewAliquotRepo() aliquots.Repository {
	return &aliquotRepo{
		byID:    make(map[string]aliquots.Aliquot),
		history: make(map[string][]aliquots.HistoryRecord),
	}
}

func (r *aliquotRepo) Get(ctx context.Context, id string) (aliquots.Aliquot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.byID[id]
	if !ok {
		return aliquots.Aliquot{}, servicerr.ErrNotFound
	}
	return a, nil
}

func (r *aliquotRepo) Put(ctx context.Context, a aliquots.Aliquot) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.byID[a.ID] = a
	return nil
}

func (r *aliquotRepo) ListByIDs(ctx context.Context, ids []string) ([]aliquots.Aliquot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]aliquots.Aliquot, 0, len(ids))
	for _, id := range ids {
		if a, ok := r.byID[id]; ok {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *aliquotRepo) ListByShipment(ctx context.Context, shipmentID string) ([]aliquots.Aliquot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]aliquots.Aliquot, 0)
	for _, a := range r.byID {
		if a.ShipmentID == shipmentID {
			out = append(out, a)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].PatientID != out[j].PatientID {
			return out[i].PatientID < out[j].PatientID
		}
		return out[i].ID < out[j].ID
	})

	return out, nil
}

func (r *aliquotRepo) ListShippable(ctx context.Context, f aliquots.ShippableFilter) ([]aliquots.Aliquot, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	excluded := make(map[string]bool, len(f.ExcludeIDs))
	for _, id := range f.ExcludeIDs {
		excluded[id] = true
	}

	out := make([]aliquots.Aliquot, 0)
	for _, a := range r.byID {
		if a.Status != aliquots.StatusAvailable || excluded[a.ID] {
			continue
		}
		if f.LocationID != "" && a.LocationID != f.LocationID {
			continue
		}
		if f.PatientRef != "" && !strings.Contains(a.PatientRef, f.PatientRef) {
			continue
		}
		if f.SampleType != "" && !strings.Contains(string(a.SampleType), f.SampleType) {
			continue
		}
		out = append(out, a)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].PatientRef != out[j].PatientRef {
			return out[i].PatientRef < out[j].PatientRef
		}
		return out[i].ID < out[j].ID
	})

	total := len(out)
	return paginate(out, f.Page, f.PageSize), total, nil
}

func (r *aliquotRepo) AppendHistory(ctx context.Context, rec aliquots.HistoryRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.history[rec.AliquotID] = append(r.history[rec.AliquotID], rec)
	return nil
}

func (r *aliquotRepo) HistoryByAliquot(ctx context.Context, aliquotID string) ([]aliquots.HistoryRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	recs := r.history[aliquotID]
	out := make([]aliquots.HistoryRecord, len(recs))
	copy(out, recs)
	return out, nil
}

// paginate corta la página pedida; PageSize 0 significa "sin paginar".
func paginate[T any](items []T, page, pageSize int) []T {
	if pageSize <= 0 {
		return items
	}
	if page < 1 {
		page = 1
	}
	start := (page - 1) * pageSize
	if start >= len(items) {
		return []T{}
	}
	end := start + pageSize
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}
