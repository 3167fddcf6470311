package ecrf

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound: el recurso remoto no existe.
	ErrNotFound = errors.New("ecrf: not found")
)

// RemoteError es cualquier fallo reportado por la plataforma remota. El motor
// lo trata como reintentable en la siguiente invocación del scheduler, nunca
// reintenta dentro de la misma.
type RemoteError struct {
	Op      string
	Code    string
	Message string
}

func (e *RemoteError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("ecrf %s: [%s] %s", e.Op, e.Code, e.Message)
	}
	return fmt.Sprintf("ecrf %s: %s", e.Op, e.Message)
}

// Client es el contrato con la plataforma eCRF remota (sesión ya iniciada).
// Todas las operaciones pueden devolver *RemoteError.
type Client interface {
	// FindPatient busca un CASE por referencia externa. Devuelve ErrNotFound si
	// no existe y servicerr.ErrAmbiguous (envuelto) si hay más de uno.
	FindPatient(ctx context.Context, ref string) (Patient, error)
	CreatePatient(ctx context.Context, ref string, c Contact) (Patient, error)
	UpdateContact(ctx context.Context, patientID string, c Contact) error

	Subscription(ctx context.Context, programCode, teamCode string) (Subscription, error)

	Admissions(ctx context.Context, patientID string) ([]Admission, error)
	CreateAdmission(ctx context.Context, patientID, subscriptionID string, date time.Time) (Admission, error)

	// Task carga una task por id (se usa para reubicar la admission desde el
	// task id de envío guardado en el join).
	Task(ctx context.Context, taskID string) (Task, error)
	// TasksByCode lista las tasks de una admission con el TASK_CODE dado.
	TasksByCode(ctx context.Context, admissionID, taskCode string) ([]Task, error)
	InsertTask(ctx context.Context, admissionID, taskCode string) (Task, error)
	// DeleteTask es la compensación best-effort cuando falla el tracking a
	// medio poblar.
	DeleteTask(ctx context.Context, taskID string) error

	// FindForm devuelve ErrNotFound si la task no contiene el form.
	FindForm(ctx context.Context, taskID, formCode string) (Form, error)
	InsertForm(ctx context.Context, taskID, formCode string) (Form, error)
	// SetFormAnswers escribe el set completo de respuestas; con closeForm la
	// plataforma marca el form como completado.
	SetFormAnswers(ctx context.Context, formID string, answers []Question, closeForm bool) error

	User(ctx context.Context, userID string) (User, error)
	Team(ctx context.Context, teamCode string) (Team, error)
}
