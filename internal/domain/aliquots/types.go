package aliquots

// Status es el código numérico de estado de un aliquot. Es una clave opaca
// para el resto del sistema; el ledger solo la compara.
type Status int

const (
	StatusAvailable Status = 1
	StatusInTransit Status = 2
	StatusRejected  Status = 3
)

func (s Status) String() string {
	switch s {
	case StatusAvailable:
		return "AVAILABLE"
	case StatusInTransit:
		return "IN_TRANSIT"
	case StatusRejected:
		return "REJECTED"
	default:
		return "UNKNOWN"
	}
}

// SampleType es el tipo de muestra de sangre procesada.
type SampleType string

const (
	SampleWholeBlood SampleType = "WHOLE_BLOOD"
	SamplePlasma     SampleType = "PLASMA"
	SamplePBMC       SampleType = "PBMC"
	SampleSerum      SampleType = "SERUM"
)

// SampleTypes en orden estable (se usa al rellenar formularios remotos).
func SampleTypes() []SampleType {
	return []SampleType{SampleWholeBlood, SamplePlasma, SamplePBMC, SampleSerum}
}

// Action es el código de acción de un registro de auditoría.
type Action string

const (
	ActionNone             Action = ""
	ActionCreated          Action = "CREATED"
	ActionShipped          Action = "SHIPPED"
	ActionReceived         Action = "RECEIVED"
	ActionShipmentTracked  Action = "SHIPMENT_TRACKED"
	ActionReceptionTracked Action = "RECEPTION_TRACKED"
)
