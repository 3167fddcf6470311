package imports

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"shipment-control/internal/domain/servicerr"
	"shipment-control/internal/ports/ecrf"
)

// Cell es el valor normalizado de una celda de un ARRAY: texto plano o lista
// de opciones seleccionadas, según el kind del item.
type Cell struct {
	Value   string
	Options []string
}

// PatientRecord son los datos normalizados de un paciente del fichero RedCAP.
type PatientRecord struct {
	Ref string
	// Fields: campo RedCAP -> valor, con los value mappings ya aplicados.
	Fields map[string]string
	// Checkboxes: campo RedCAP -> ids de opción seleccionados (los campos
	// field___N ya colapsados).
	Checkboxes map[string][]string
	// Arrays: clave formCode@item contenedor -> filas, cada una item -> celda.
	Arrays map[string][]map[string]Cell
}

// ParseRedCAP lee el CSV exportado de RedCAP (separador ';') y devuelve un
// registro por paciente, en orden de primera aparición. El fichero trae
// varias líneas por paciente (una por evento) que se funden en un único
// registro; dos valores distintos para el mismo campo son un error.
func ParseRedCAP(r io.Reader, refPrefix string, mapping *Mapping) ([]PatientRecord, error) {
	cr := csv.NewReader(r)
	cr.Comma = ';'
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("reading redcap header: %w: %v", servicerr.ErrInvalidFormat, err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\uFEFF")
	}
	if len(header) == 0 || header[0] != "study_ref" {
		found := ""
		if len(header) > 0 {
			found = header[0]
		}
		return nil, fmt.Errorf("the first column of the RedCAP CSV file must be %q, found %q: %w", "study_ref", found, servicerr.ErrInvalidFormat)
	}

	order := make([]string, 0)
	raw := make(map[string]map[string]string)

	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading redcap row: %w: %v", servicerr.ErrInvalidFormat, err)
		}
		if len(row) != len(header) {
			return nil, fmt.Errorf("row length does not match header length: %w", servicerr.ErrInvalidFormat)
		}

		rowData := make(map[string]string, len(header))
		for i, name := range header {
			rowData[name] = row[i]
		}

		ref, err := formatPatientRef(refPrefix, rowData["study_ref"])
		if err != nil {
			return nil, err
		}
		delete(rowData, "study_ref")
		delete(rowData, "redcap_event_name")

		prev, seen := raw[ref]
		if !seen {
			order = append(order, ref)
			raw[ref] = rowData
			continue
		}
		merged, err := mergePatientRows(prev, rowData, ref)
		if err != nil {
			return nil, err
		}
		raw[ref] = merged
	}

	out := make([]PatientRecord, 0, len(order))
	for _, ref := range order {
		out = append(out, normalizePatient(ref, raw[ref], mapping))
	}
	return out, nil
}

// formatPatientRef construye la referencia del participante a partir del
// número de estudio ("7" -> "ONCOIVD_007").
func formatPatientRef(prefix, studyRef string) (string, error) {
	n, err := strconv.Atoi(strings.TrimSpace(studyRef))
	if err != nil {
		return "", fmt.Errorf("invalid study_ref %q: %w", studyRef, servicerr.ErrInvalidFormat)
	}
	return fmt.Sprintf("%s_%03d", prefix, n), nil
}

// mergePatientRows funde una línea nueva con las anteriores del paciente. Un
// valor vacío nunca pisa uno informado; dos valores informados y distintos
// para el mismo campo son datos en conflicto.
func mergePatientRows(prev, next map[string]string, ref string) (map[string]string, error) {
	merged := make(map[string]string, len(prev))
	for k, v := range prev {
		merged[k] = v
	}
	for key, value := range next {
		prevValue, exists := merged[key]
		if !exists {
			merged[key] = value
			continue
		}
		if value == "" {
			continue
		}
		if prevValue != "" && prevValue != value {
			return nil, fmt.Errorf("patient %s: conflicting data in different lines for key %q: previous value %q, new value %q: %w",
				ref, key, prevValue, value, servicerr.ErrDataMissing)
		}
		merged[key] = value
	}
	return merged, nil
}

// normalizePatient aplica los value mappings y colapsa checkboxes y ARRAYs
// según la tabla de mapeo.
func normalizePatient(ref string, data map[string]string, mapping *Mapping) PatientRecord {
	rec := PatientRecord{
		Ref:        ref,
		Fields:     make(map[string]string, len(data)),
		Checkboxes: make(map[string][]string),
		Arrays:     make(map[string][]map[string]Cell),
	}
	for k, v := range data {
		rec.Fields[k] = v
	}

	checkboxFields := make(map[string]bool)
	for _, task := range mapping.Tasks {
		for _, form := range task.Forms {
			for _, item := range form.Items {
				if item.IsArray() {
					continue
				}
				if vm := item.Values; len(vm) > 0 {
					if v, ok := rec.Fields[item.RedCAP]; ok {
						if mapped, ok := vm[v]; ok {
							rec.Fields[item.RedCAP] = mapped
						}
					}
				}
				if item.QuestionKind() == ecrf.KindMultiOption {
					checkboxFields[item.RedCAP] = true
				}
			}
		}
	}

	// ARRAYs: la fila 1 usa el nombre pelado, la fila N el sufijo "_N"
	consumedCheckbox := make(map[string]bool)
	for _, task := range mapping.Tasks {
		for _, form := range task.Forms {
			for _, container := range form.Items {
				if !container.IsArray() {
					continue
				}
				key := arrayKey(form.Code, container.Item)
				rows := make(map[int]map[string]Cell)
				maxRow := 0
				for _, item := range form.Items {
					if item.Array != container.Item {
						continue
					}
					rowIx := 1
					fullVar := item.RedCAP
					for {
						if _, ok := data[fullVar]; !ok && !hasCheckboxVars(data, fullVar) {
							break
						}
						var cell Cell
						if checkboxFields[item.RedCAP] {
							cell = Cell{Options: collectSelectedOptions(fullVar, data)}
							consumedCheckbox[item.RedCAP] = true
						} else {
							cell = Cell{Value: data[fullVar]}
						}
						if rows[rowIx] == nil {
							rows[rowIx] = make(map[string]Cell)
						}
						rows[rowIx][item.Item] = cell
						delete(rec.Fields, fullVar)
						if rowIx > maxRow {
							maxRow = rowIx
						}
						rowIx++
						fullVar = fmt.Sprintf("%s_%d", item.RedCAP, rowIx)
					}
				}

				ordered := make([]map[string]Cell, 0, maxRow)
				for i := 1; i <= maxRow; i++ {
					row := rows[i]
					if rowIsEmpty(row) {
						continue
					}
					ordered = append(ordered, row)
				}
				if len(ordered) > 0 {
					rec.Arrays[key] = ordered
				}
			}
		}
	}

	// checkboxes sueltos (los de ARRAY ya se consumieron fila a fila)
	for field := range checkboxFields {
		if consumedCheckbox[field] {
			continue
		}
		if !hasCheckboxVars(data, field) {
			continue
		}
		rec.Checkboxes[field] = collectSelectedOptions(field, data)
	}

	return rec
}

// collectSelectedOptions colapsa las variables field___1, field___2, … de un
// checkbox RedCAP en la lista de ids de opción marcados con 1.
func collectSelectedOptions(field string, data map[string]string) []string {
	selected := make([]string, 0)
	for optionID := 1; ; optionID++ {
		v, ok := data[fmt.Sprintf("%s___%d", field, optionID)]
		if !ok {
			break
		}
		if v == "1" {
			selected = append(selected, strconv.Itoa(optionID))
		}
	}
	return selected
}

func hasCheckboxVars(data map[string]string, field string) bool {
	_, ok := data[field+"___1"]
	return ok
}

func rowIsEmpty(row map[string]Cell) bool {
	for _, c := range row {
		if c.Value != "" || len(c.Options) > 0 {
			return false
		}
	}
	return true
}
