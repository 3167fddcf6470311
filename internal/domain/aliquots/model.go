package aliquots

import "time"

// Aliquot es una unidad física de biomuestra. El ID viene asignado desde
// fuera (código datamatrix); nunca se borra, solo se re-declara su estado.
// Los campos "anulables" del esquema (Condition, TaskID, ShipmentID) usan ""
// como null.
type Aliquot struct {
	ID         string
	PatientID  string
	PatientRef string
	SampleType SampleType

	LocationID string
	Status     Status
	Condition  string // solo informado cuando el aliquot fue rechazado/dañado
	TaskID     string // task remota que lo trackeó por última vez
	ShipmentID string // solo mientras está asociado a un envío

	CreatedAt time.Time
	UpdatedAt time.Time
}

// HistoryRecord es una fila de auditoría append-only. UpdatedAt es el
// timestamp de negocio del cambio; RecordedAt es la hora de pared en que se
// escribió la fila, y son distintos a propósito.
type HistoryRecord struct {
	ID        string
	AliquotID string
	TaskID    string
	Action    Action

	LocationID string
	Status     Status
	Condition  string
	ShipmentID string

	UpdatedAt  time.Time
	RecordedAt time.Time
}

// Opt marca un campo anulable de un Row. El zero value significa "no tocar";
// Present con Value=="" pone la columna a null.
type Opt struct {
	Present bool
	Value   string
}

func OptOf(v string) Opt { return Opt{Present: true, Value: v} }
func OptNull() Opt       { return Opt{Present: true} }

// Row es un conjunto parcial de columnas para Upsert. Los punteros nil y los
// Opt no presentes conservan el valor previamente almacenado: el merge nunca
// descarta estado conocido en silencio.
type Row struct {
	ID string

	PatientID  *string
	PatientRef *string
	SampleType *SampleType
	LocationID *string
	Status     *Status

	Condition  Opt
	TaskID     Opt
	ShipmentID Opt

	CreatedAt *time.Time
	UpdatedAt *time.Time
}
