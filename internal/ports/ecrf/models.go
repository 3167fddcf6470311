package ecrf

import "time"

// Patient es el CASE de la plataforma remota.
type Patient struct {
	ID        string
	Ref       string // identificador PARTICIPANT_REF
	BirthDate string // YYYY-MM-DD
	Gender    string // "M", "F" o vacío
}

// Contact son los datos personales que el servicio puede actualizar.
type Contact struct {
	BirthDate string
	Gender    string
}

// Subscription vincula un programa (proyecto) con un equipo.
type Subscription struct {
	ID          string
	ProgramCode string
	TeamCode    string
}

// Admission es el episodio del paciente dentro de un programa.
type Admission struct {
	ID          string
	PatientID   string
	ProgramCode string
	EnrolDate   time.Time
}

// Task es una tarea dentro de una admission, identificada por TASK_CODE.
type Task struct {
	ID          string
	AdmissionID string
	Code        string
	Closed      bool
}

// Form es un formulario dentro de una task, identificado por FORM_CODE.
type Form struct {
	ID     string
	TaskID string
	Code   string
}

// User es un usuario de la plataforma (emisor/receptor de un envío).
type User struct {
	ID       string
	FullName string
}

// Team es un equipo de la plataforma; las Locations locales se crean a partir
// de los teams configurados.
type Team struct {
	ID   string
	Code string
	Name string
}
