package ecrf

// QuestionKind discrimina cómo se escribe la respuesta en la plataforma:
// texto plano, opción única o multi-opción. El kind viene siempre de la tabla
// de mapeo, nunca se adivina en runtime.
type QuestionKind string

const (
	KindScalar       QuestionKind = "scalar"
	KindSingleOption QuestionKind = "single_option"
	KindMultiOption  QuestionKind = "multi_option"
)

// IsScalar indica si el kind se responde con texto plano.
func (k QuestionKind) IsScalar() bool { return k == KindScalar }

// IsOption indica si el kind se responde con identificadores de opción.
func (k QuestionKind) IsOption() bool { return k == KindSingleOption || k == KindMultiOption }

// Question es una respuesta a escribir en un FORM. Es una variante etiquetada:
// según Kind se usa Value (scalar) u OptionIDs (single/multi opción).
// Si ArrayRef != "" la pregunta pertenece a la fila Row de un item ARRAY.
type Question struct {
	ItemCode string
	Kind     QuestionKind

	Value     string   // scalar
	OptionIDs []string // single: exactamente uno; multi: cero o más

	ArrayRef string
	Row      int
}

// ScalarAnswer construye una respuesta de texto.
func ScalarAnswer(itemCode, value string) Question {
	return Question{ItemCode: itemCode, Kind: KindScalar, Value: value}
}

// OptionAnswer construye una respuesta de opción única.
func OptionAnswer(itemCode, optionID string) Question {
	return Question{ItemCode: itemCode, Kind: KindSingleOption, OptionIDs: []string{optionID}}
}

// MultiOptionAnswer construye una respuesta multi-opción (checkbox).
func MultiOptionAnswer(itemCode string, optionIDs []string) Question {
	return Question{ItemCode: itemCode, Kind: KindMultiOption, OptionIDs: optionIDs}
}

// InRow devuelve una copia de la pregunta situada en una fila de un ARRAY.
func (q Question) InRow(arrayRef string, row int) Question {
	q.ArrayRef = arrayRef
	q.Row = row
	return q
}
