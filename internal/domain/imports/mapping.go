package imports

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"shipment-control/internal/domain/servicerr"
	"shipment-control/internal/ports/ecrf"
)

// Mapping es la tabla de traducción RedCAP → eCRF: qué tasks y forms existen,
// y a qué campo RedCAP corresponde cada item. Se carga una vez al arrancar y
// es inmutable después.
type Mapping struct {
	Tasks []TaskMapping `yaml:"tasks"`
}

type TaskMapping struct {
	Code  string        `yaml:"code"`
	Forms []FormMapping `yaml:"forms"`
}

type FormMapping struct {
	Code string `yaml:"code"`
	// CompleteField es el campo RedCAP con el flag "complete" del form:
	// "" = sin datos, 0 = incompleto, 1 = sin verificar, 2 = completo.
	CompleteField string        `yaml:"complete_field"`
	Items         []ItemMapping `yaml:"items"`
}

// ItemMapping liga un item del form remoto con su campo RedCAP. Kind "array"
// declara un item contenedor cuyas filas aportan los items con Array == su
// código.
type ItemMapping struct {
	Item   string `yaml:"item"`
	RedCAP string `yaml:"redcap"`
	Kind   string `yaml:"kind"` // scalar | single_option | multi_option | array
	// Values traduce valores RedCAP a ids de opción del eCRF. Un valor sin
	// entrada pasa tal cual.
	Values map[string]string `yaml:"values"`
	// Array es el item contenedor al que pertenece (vacío si no es columna
	// de un ARRAY).
	Array string `yaml:"array"`
}

const kindArray = "array"

// QuestionKind traduce el kind declarado al tipo de respuesta remota. El
// contenedor ARRAY no tiene respuesta propia.
func (i ItemMapping) QuestionKind() ecrf.QuestionKind {
	switch i.Kind {
	case "single_option":
		return ecrf.KindSingleOption
	case "multi_option":
		return ecrf.KindMultiOption
	default:
		return ecrf.KindScalar
	}
}

func (i ItemMapping) IsArray() bool { return i.Kind == kindArray }

// LoadMapping lee y valida la tabla desde un fichero YAML.
func LoadMapping(path string) (*Mapping, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading mapping file %s: %w", path, err)
	}
	return ParseMapping(raw)
}

func ParseMapping(raw []byte) (*Mapping, error) {
	var m Mapping
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("mapping yaml: %w: %v", servicerr.ErrInvalidFormat, err)
	}

	for _, task := range m.Tasks {
		if task.Code == "" {
			return nil, fmt.Errorf("mapping task without code: %w", servicerr.ErrInvalidFormat)
		}
		for _, form := range task.Forms {
			if form.Code == "" {
				return nil, fmt.Errorf("task %s: form without code: %w", task.Code, servicerr.ErrInvalidFormat)
			}
			if form.CompleteField == "" {
				return nil, fmt.Errorf("form %s: complete_field is mandatory: %w", form.Code, servicerr.ErrInvalidFormat)
			}
			containers := make(map[string]bool)
			for _, item := range form.Items {
				if item.IsArray() {
					containers[item.Item] = true
				}
			}
			for _, item := range form.Items {
				if item.Item == "" {
					return nil, fmt.Errorf("form %s: item without code: %w", form.Code, servicerr.ErrInvalidFormat)
				}
				if !item.IsArray() && item.RedCAP == "" {
					return nil, fmt.Errorf("form %s: item %s without redcap field: %w", form.Code, item.Item, servicerr.ErrInvalidFormat)
				}
				if item.Array != "" && !containers[item.Array] {
					return nil, fmt.Errorf("form %s: item %s references unknown array %s: %w", form.Code, item.Item, item.Array, servicerr.ErrInvalidFormat)
				}
			}
		}
	}
	return &m, nil
}

// arrayKey identifica un contenedor ARRAY de forma global (el mismo item
// code puede existir en forms distintos).
func arrayKey(formCode, containerItem string) string {
	return formCode + "@" + containerItem
}

// TaskDataIsEmpty indica que ninguno de los forms de la task trae datos en
// el fichero: todos sus flags "complete" están vacíos.
func (m *Mapping) TaskDataIsEmpty(task TaskMapping, fields map[string]string) bool {
	for _, form := range task.Forms {
		if fields[form.CompleteField] != "" {
			return false
		}
	}
	return true
}

// FormCompleteFlag devuelve el valor del flag "complete" del form en el
// fichero ("" cuando no viene informado).
func (m *Mapping) FormCompleteFlag(form FormMapping, fields map[string]string) string {
	return fields[form.CompleteField]
}
