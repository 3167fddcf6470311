package shipments

import "time"

// Shipment es un traslado en lote de aliquots entre dos Locations.
type Shipment struct {
	ID     string
	Ref    string
	Status Status

	SentFromID string
	SentFrom   string // nombre resuelto, solo lectura
	SentToID   string
	SentTo     string

	SenderID string
	Sender   string
	SendDate *time.Time

	ReceiverID        string
	Receiver          string
	ReceptionDate     *time.Time
	ReceptionStatus   string
	ReceptionComments string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// ShippedAliquot es la fila N:M entre un envío y un aliquot. Los dos task ids
// remotos empiezan vacíos y los escribe exactamente una vez el sincronizador,
// tras confirmación remota. Condition queda informada en recepción cuando el
// aliquot llegó dañado ("" = sin incidencia).
type ShippedAliquot struct {
	ShipmentID string
	AliquotID  string

	Condition       string
	ShipmentTaskID  string
	ReceptionTaskID string
}

// UpdateInput son los campos editables de un envío. Punteros nil = no tocar
// (mismo patrón PATCH que el resto de la API). La máquina de estados decide
// qué subconjunto es admisible según el estado actual.
type UpdateInput struct {
	Ref      *string
	SentFrom *string
	SentTo   *string
	SendDate *time.Time

	ReceiverID        *string
	ReceptionDate     *time.Time
	ReceptionStatus   *string
	ReceptionComments *string
}
