package imports

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"shipment-control/internal/domain/aliquots"
	"shipment-control/internal/domain/servicerr"
)

// SampleAliquot es un aliquot de una extracción, identificado por su código
// datamatrix.
type SampleAliquot struct {
	ID   string
	Type aliquots.SampleType
}

// SampleSet es la extracción de un paciente: todos sus aliquots más los
// metadatos de la toma. Err recoge los problemas de parseo de sus líneas
// para que el import los reporte sin bloquear al resto de pacientes.
type SampleSet struct {
	PatientRef string
	LocationID string
	Date       string
	StartTime  string
	EndTime    string
	Aliquots   []SampleAliquot

	Err error
}

var aliquotHeader = []string{"patient_ref", "aliquot_id", "sample_type", "location", "extraction_date", "start_time", "end_time"}

// ParseAliquotFile lee el fichero de aliquots (CSV ';', una línea por
// aliquot) y agrupa las líneas por paciente en orden de primera aparición.
func ParseAliquotFile(r io.Reader) ([]SampleSet, error) {
	cr := csv.NewReader(r)
	cr.Comma = ';'

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("reading aliquots header: %w: %v", servicerr.ErrInvalidFormat, err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\uFEFF")
	}
	if len(header) != len(aliquotHeader) {
		return nil, fmt.Errorf("aliquots file must have columns %v: %w", aliquotHeader, servicerr.ErrInvalidFormat)
	}
	for i, name := range aliquotHeader {
		if header[i] != name {
			return nil, fmt.Errorf("aliquots file column %d must be %q, found %q: %w", i+1, name, header[i], servicerr.ErrInvalidFormat)
		}
	}

	order := make([]string, 0)
	byRef := make(map[string]*SampleSet)

	validTypes := make(map[aliquots.SampleType]bool)
	for _, t := range aliquots.SampleTypes() {
		validTypes[t] = true
	}

	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading aliquots row: %w: %v", servicerr.ErrInvalidFormat, err)
		}

		ref := strings.TrimSpace(row[0])
		if ref == "" {
			return nil, fmt.Errorf("aliquots row without patient_ref: %w", servicerr.ErrInvalidFormat)
		}

		set, seen := byRef[ref]
		if !seen {
			set = &SampleSet{
				PatientRef: ref,
				LocationID: strings.TrimSpace(row[3]),
				Date:       strings.TrimSpace(row[4]),
				StartTime:  strings.TrimSpace(row[5]),
				EndTime:    strings.TrimSpace(row[6]),
			}
			byRef[ref] = set
			order = append(order, ref)
		}
		if set.Err != nil {
			continue
		}

		// todas las líneas de un paciente deben compartir los metadatos de
		// la extracción
		if set.Date != strings.TrimSpace(row[4]) || set.LocationID != strings.TrimSpace(row[3]) {
			set.Err = fmt.Errorf("conflicting extraction data between lines of patient %s: %w", ref, servicerr.ErrInvalidFormat)
			continue
		}

		sampleType := aliquots.SampleType(strings.TrimSpace(row[2]))
		if !validTypes[sampleType] {
			set.Err = fmt.Errorf("unknown sample type %q for patient %s: %w", row[2], ref, servicerr.ErrInvalidFormat)
			continue
		}
		aliquotID := strings.TrimSpace(row[1])
		if aliquotID == "" {
			set.Err = fmt.Errorf("aliquot without id for patient %s: %w", ref, servicerr.ErrDataMissing)
			continue
		}
		set.Aliquots = append(set.Aliquots, SampleAliquot{ID: aliquotID, Type: sampleType})
	}

	out := make([]SampleSet, 0, len(order))
	for _, ref := range order {
		out = append(out, *byRef[ref])
	}
	return out, nil
}
