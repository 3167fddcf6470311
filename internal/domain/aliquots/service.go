package aliquots

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"shipment-control/internal/domain/servicerr"
)

// Service es el dueño exclusivo de ALIQUOTS y ALIQUOTS_HISTORY. Toda mutación
// de un aliquot pasa por Upsert para que quede explicable desde el stream de
// historia.
type Service struct {
	repo Repository
	now  func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{
		repo: repo,
		now:  time.Now,
	}
}

// Upsert mezcla el row parcial con los valores almacenados (las columnas no
// informadas conservan su valor previo), escribe la fila resultante y, si se
// indica una acción, añade un registro de historia con la hora de pared
// actual como RECORD_TIMESTAMP.
func (s *Service) Upsert(ctx context.Context, row Row, action Action) (Aliquot, error) {
	if strings.TrimSpace(row.ID) == "" {
		return Aliquot{}, fmt.Errorf("aliquot id: %w", servicerr.ErrDataMissing)
	}

	now := s.now()

	merged, err := s.repo.Get(ctx, row.ID)
	switch {
	case err == nil:
		// merge sobre la fila existente
	case errors.Is(err, servicerr.ErrNotFound):
		merged = Aliquot{ID: row.ID, Status: StatusAvailable, CreatedAt: now, UpdatedAt: now}
	default:
		return Aliquot{}, err
	}

	if row.PatientID != nil {
		merged.PatientID = *row.PatientID
	}
	if row.PatientRef != nil {
		merged.PatientRef = *row.PatientRef
	}
	if row.SampleType != nil {
		merged.SampleType = *row.SampleType
	}
	if row.LocationID != nil {
		merged.LocationID = *row.LocationID
	}
	if row.Status != nil {
		merged.Status = *row.Status
	}
	if row.Condition.Present {
		merged.Condition = row.Condition.Value
	}
	if row.TaskID.Present {
		merged.TaskID = row.TaskID.Value
	}
	if row.ShipmentID.Present {
		merged.ShipmentID = row.ShipmentID.Value
	}
	if row.CreatedAt != nil {
		merged.CreatedAt = *row.CreatedAt
	}
	if row.UpdatedAt != nil {
		merged.UpdatedAt = *row.UpdatedAt
	}

	if err := s.repo.Put(ctx, merged); err != nil {
		return Aliquot{}, err
	}

	if action != ActionNone {
		rec := HistoryRecord{
			ID:         uuid.NewString(),
			AliquotID:  merged.ID,
			TaskID:     merged.TaskID,
			Action:     action,
			LocationID: merged.LocationID,
			Status:     merged.Status,
			Condition:  merged.Condition,
			ShipmentID: merged.ShipmentID,
			UpdatedAt:  merged.UpdatedAt,
			RecordedAt: now,
		}
		if err := s.repo.AppendHistory(ctx, rec); err != nil {
			return Aliquot{}, err
		}
	}

	return merged, nil
}

func (s *Service) Get(ctx context.Context, id string) (Aliquot, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Aliquot{}, fmt.Errorf("aliquot id: %w", servicerr.ErrDataMissing)
	}
	return s.repo.Get(ctx, id)
}

// FindByIDs devuelve los aliquots que existen de la lista pedida. El caller
// que necesite semántica "todos o ninguno" compara len(found) con len(ids);
// MissingIDs calcula la diferencia.
func (s *Service) FindByIDs(ctx context.Context, ids []string) ([]Aliquot, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return s.repo.ListByIDs(ctx, ids)
}

func (s *Service) ListByShipment(ctx context.Context, shipmentID string) ([]Aliquot, error) {
	return s.repo.ListByShipment(ctx, shipmentID)
}

func (s *Service) ListShippable(ctx context.Context, f ShippableFilter) ([]Aliquot, int, error) {
	return s.repo.ListShippable(ctx, f)
}

func (s *Service) History(ctx context.Context, aliquotID string) ([]HistoryRecord, error) {
	return s.repo.HistoryByAliquot(ctx, aliquotID)
}

// MissingIDs devuelve, ordenados, los ids pedidos que no aparecen en found.
func MissingIDs(ids []string, found []Aliquot) []string {
	have := make(map[string]bool, len(found))
	for _, a := range found {
		have[a.ID] = true
	}
	missing := make([]string, 0)
	for _, id := range ids {
		if !have[id] {
			missing = append(missing, id)
		}
	}
	sort.Strings(missing)
	return missing
}
