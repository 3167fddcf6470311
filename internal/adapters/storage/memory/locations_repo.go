package memory

import (
	"context"
	"sort"
	"sync"

	"shipment-control/internal/domain/locations"
	"shipment-control/internal/domain/servicerr"
)

type locationRepo struct {
	mu   sync.RWMutex
	byID map[string]locations.Location
}

func NewLocationRepo() locations.Repository {
	return &locationRepo{
		byID: make(map[string]locations.Location),
	}
}

func (r *locationRepo) Upsert(ctx context.Context, l locations.Location) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.byID[l.ID] = l
	return nil
}

func (r *locationRepo) GetByID(ctx context.Context, id string) (locations.Location, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	l, ok := r.byID[id]
	if !ok {
		return locations.Location{}, servicerr.ErrNotFound
	}
	return l, nil
}

func (r *locationRepo) ListLabs(ctx context.Context) ([]locations.Location, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]locations.Location, 0)
	for _, l := range r.byID {
		if l.IsLab {
			out = append(out, l)
		}
	}

	// Orden estable por nombre (consistencia en dev)
	sort.Slice(out, func(i, j int) bool {
		return out[i].Name < out[j].Name
	})

	return out, nil
}
