package tracking

import (
	"context"
	"sort"

	"shipment-control/internal/domain/shipments"
)

// PendingRow es una pareja (envío, paciente) con tracking remoto pendiente.
// TaskID solo viene informado en el caso recepción (la task que ya trackeó
// el envío y que la recepción reutiliza para localizar la admission).
type PendingRow struct {
	ShipmentID string
	PatientID  string
	PatientRef string
	TaskID     string
}

// Repository son las dos consultas de solo lectura que alimentan el loop de
// sincronización. Ambas son diferencias de conjuntos puras: nunca mutan
// estado, así que repetirlas tras un crash devuelve un conjunto equivalente.
type Repository interface {
	// UntrackedShipments: envíos SHIPPED o RECEIVED cuyas filas del join no
	// tienen todavía task de envío, ordenados por fecha de envío, id de envío
	// y después patient id.
	UntrackedShipments(ctx context.Context) ([]PendingRow, error)
	// UntrackedReceptions: envíos RECEIVED con task de envío ya anotada pero
	// sin task de recepción, mismo orden.
	UntrackedReceptions(ctx context.Context) ([]PendingRow, error)
}

// PendingPatient es un paciente de un envío con aliquots sin trackear.
type PendingPatient struct {
	PatientID      string
	PatientRef     string
	TrackingTaskID string
}

// PendingShipment agrupa el trabajo pendiente de un envío.
type PendingShipment struct {
	Shipment shipments.Shipment
	Patients []PendingPatient
}

// Scanner encuentra los envíos/recepciones cuyo tracking remoto va por
// detrás del ledger local. Solo lee; el orden del resultado es determinista
// para que dos invocaciones solapadas recorran el mismo plan.
type Scanner struct {
	repo  Repository
	ships *shipments.Service
}

func NewScanner(repo Repository, ships *shipments.Service) *Scanner {
	return &Scanner{repo: repo, ships: ships}
}

func (s *Scanner) UntrackedShipments(ctx context.Context) ([]PendingShipment, error) {
	rows, err := s.repo.UntrackedShipments(ctx)
	if err != nil {
		return nil, err
	}
	return s.group(ctx, rows)
}

func (s *Scanner) UntrackedReceptions(ctx context.Context) ([]PendingShipment, error) {
	rows, err := s.repo.UntrackedReceptions(ctx)
	if err != nil {
		return nil, err
	}
	return s.group(ctx, rows)
}

// group agrupa las filas por envío conservando el orden de llegada. Un envío
// que desapareció entre la consulta y la carga simplemente se omite (lo
// recogerá la siguiente invocación si reaparece).
func (s *Scanner) group(ctx context.Context, rows []PendingRow) ([]PendingShipment, error) {
	order := make([]string, 0)
	byShipment := make(map[string][]PendingPatient)
	for _, r := range rows {
		if _, seen := byShipment[r.ShipmentID]; !seen {
			order = append(order, r.ShipmentID)
		}
		byShipment[r.ShipmentID] = append(byShipment[r.ShipmentID], PendingPatient{
			PatientID:      r.PatientID,
			PatientRef:     r.PatientRef,
			TrackingTaskID: r.TaskID,
		})
	}

	out := make([]PendingShipment, 0, len(order))
	for _, id := range order {
		sh, err := s.ships.GetByID(ctx, id)
		if err != nil {
			continue
		}
		patients := byShipment[id]
		sort.SliceStable(patients, func(i, j int) bool {
			return patients[i].PatientID < patients[j].PatientID
		})
		out = append(out, PendingShipment{Shipment: sh, Patients: patients})
	}
	return out, nil
}
