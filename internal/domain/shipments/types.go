package shipments

// Status es el estado del ciclo de vida de un envío. Las transiciones nunca
// saltan estados: PREPARING → SHIPPED → RECEIVING → RECEIVED, y RECEIVED es
// terminal. La única cancelación es el borrado en PREPARING.
type Status int

const (
	StatusPreparing Status = 1
	StatusShipped   Status = 2
	StatusReceiving Status = 3
	StatusReceived  Status = 4
)

func (s Status) String() string {
	switch s {
	case StatusPreparing:
		return "PREPARING"
	case StatusShipped:
		return "SHIPPED"
	case StatusReceiving:
		return "RECEIVING"
	case StatusReceived:
		return "RECEIVED"
	default:
		return "UNKNOWN"
	}
}

// TrackKind distingue las dos anotaciones remotas de un ShippedAliquot:
// la task que trackea el envío y la que trackea la recepción.
type TrackKind string

const (
	TrackShipment  TrackKind = "SHIPMENT"
	TrackReception TrackKind = "RECEPTION"
)
