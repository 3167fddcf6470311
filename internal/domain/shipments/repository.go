package shipments

import "context"

// ListFilter acota el listado de envíos vistos desde una location activa:
// los enviados por ella, más los dirigidos a ella que ya salieron.
type ListFilter struct {
	ActiveLocationID string
	Ref              string // match parcial
	SentFromID       string
	SentToID         string

	Page     int
	PageSize int
}

// Repository persiste SHIPMENTS y SHIPPED_ALIQUOTS. GetByID devuelve
// servicerr.ErrNotFound cuando el envío no existe.
type Repository interface {
	Create(ctx context.Context, s Shipment) error
	Update(ctx context.Context, s Shipment) error
	GetByID(ctx context.Context, id string) (Shipment, error)
	List(ctx context.Context, f ListFilter) ([]Shipment, int, error)
	// Delete elimina la fila del envío; el service garantiza antes que las
	// filas de SHIPPED_ALIQUOTS ya fueron retiradas.
	Delete(ctx context.Context, id string) error

	AddAliquot(ctx context.Context, sa ShippedAliquot) error
	RemoveAliquot(ctx context.Context, shipmentID, aliquotID string) error
	SetAliquotCondition(ctx context.Context, shipmentID, aliquotID, condition string) error
	// ListAliquots devuelve las filas del join ordenadas por aliquot id.
	ListAliquots(ctx context.Context, shipmentID string) ([]ShippedAliquot, error)

	// SetTrackingTask escribe el task id remoto (de envío o recepción según
	// kind) en las filas del join indicadas.
	SetTrackingTask(ctx context.Context, kind TrackKind, shipmentID, taskID string, aliquotIDs []string) error
}
