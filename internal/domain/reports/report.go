// Package reports define el sobre de resultado de las operaciones batch
// (sincronización de tracking, imports de ficheros). Un batch nunca devuelve
// una excepción pelada: siempre código + resumen + detalle por item.
package reports

type Code string

const (
	CodeIdle    Code = "idle"    // no había trabajo pendiente
	CodeSuccess Code = "success" // todo el trabajo procesado sin errores
	CodeError   Code = "error"   // al menos un item falló
)

type Report struct {
	Code    Code     `json:"code"`
	Message string   `json:"message"`
	Details []string `json:"details"`
}

func New(code Code, message string) *Report {
	return &Report{Code: code, Message: message, Details: make([]string, 0)}
}

func (r *Report) AddDetail(line string) {
	r.Details = append(r.Details, line)
}

func (r *Report) SetCode(code Code)         { r.Code = code }
func (r *Report) SetMessage(message string) { r.Message = message }

// Resolve calcula el código agregado a partir de contadores: cualquier error
// manda; si no, algún éxito; si no, idle.
func Resolve(successes, errors int) Code {
	switch {
	case errors > 0:
		return CodeError
	case successes > 0:
		return CodeSuccess
	default:
		return CodeIdle
	}
}
