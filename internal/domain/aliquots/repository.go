package aliquots

import "context"

// ShippableFilter acota la búsqueda de aliquots disponibles para envío.
type ShippableFilter struct {
	LocationID string
	PatientRef string // match parcial
	SampleType string // match parcial
	ExcludeIDs []string

	Page     int
	PageSize int
}

// Repository es el puerto de persistencia del ledger. Get devuelve
// servicerr.ErrNotFound (envuelto o no) cuando el aliquot no existe.
type Repository interface {
	Get(ctx context.Context, id string) (Aliquot, error)
	// Put inserta o reemplaza la fila completa (upsert por ID).
	Put(ctx context.Context, a Aliquot) error

	ListByIDs(ctx context.Context, ids []string) ([]Aliquot, error)
	// ListByShipment devuelve los aliquots con ShipmentID = shipmentID,
	// ordenados por patient id y después por id.
	ListByShipment(ctx context.Context, shipmentID string) ([]Aliquot, error)
	// ListShippable devuelve los aliquots disponibles que cumplen el filtro,
	// junto con el total sin paginar.
	ListShippable(ctx context.Context, f ShippableFilter) ([]Aliquot, int, error)

	AppendHistory(ctx context.Context, rec HistoryRecord) error
	HistoryByAliquot(ctx context.Context, aliquotID string) ([]HistoryRecord, error)
}
