package locations

import "context"

type Repository interface {
	// Upsert inserta la location o actualiza sus campos descriptivos.
	Upsert(ctx context.Context, l Location) error
	GetByID(ctx context.Context, id string) (Location, error)
	// ListLabs devuelve las locations con IS_LAB, ordenadas por nombre.
	ListLabs(ctx context.Context) ([]Location, error)
}
