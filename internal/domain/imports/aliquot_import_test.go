package imports

import (
	"errors"
	"strings"
	"testing"

	"shipment-control/internal/domain/servicerr"
)

const aliquotCSVHeader = "patient_ref;aliquot_id;sample_type;location;extraction_date;start_time;end_time\n"

func TestParseAliquotFile_GroupsByPatientInOrder(t *testing.T) {
	csv := aliquotCSVHeader +
		"ONCOIVD_001;AL-1;PLASMA;loc-site;2026-02-09;09:00;09:30\n" +
		"ONCOIVD_002;AL-3;SERUM;loc-site;2026-02-09;10:00;10:30\n" +
		"ONCOIVD_001;AL-2;SERUM;loc-site;2026-02-09;09:00;09:30\n"

	sets, err := ParseAliquotFile(strings.NewReader(csv))
	if err != nil {
		t.Fatalf("ParseAliquotFile: %v", err)
	}
	if len(sets) != 2 {
		t.Fatalf("expected 2 sample sets, got %d", len(sets))
	}
	if sets[0].PatientRef != "ONCOIVD_001" || sets[1].PatientRef != "ONCOIVD_002" {
		t.Fatalf("expected first-appearance order, got %q, %q", sets[0].PatientRef, sets[1].PatientRef)
	}
	if len(sets[0].Aliquots) != 2 || sets[0].Aliquots[1].ID != "AL-2" {
		t.Fatalf("expected AL-1 and AL-2 for the first patient, got %+v", sets[0].Aliquots)
	}
}

func TestParseAliquotFile_SkipsHeaderBOM(t *testing.T) {
	// el BOM con el que Excel exporta el CSV no invalida la cabecera
	csv := "\uFEFF" + aliquotCSVHeader +
		"ONCOIVD_001;AL-1;PLASMA;loc-site;2026-02-09;09:00;09:30\n"

	sets, err := ParseAliquotFile(strings.NewReader(csv))
	if err != nil {
		t.Fatalf("ParseAliquotFile with BOM: %v", err)
	}
	if len(sets) != 1 || sets[0].PatientRef != "ONCOIVD_001" {
		t.Fatalf("expected ONCOIVD_001, got %+v", sets)
	}
}

func TestParseAliquotFile_RejectsWrongHeader(t *testing.T) {
	_, err := ParseAliquotFile(strings.NewReader("patient;aliquot\nONCOIVD_001;AL-1\n"))
	if !errors.Is(err, servicerr.ErrInvalidFormat) {
		t.Fatalf("expected invalid format error, got %v", err)
	}
}

func TestParseAliquotFile_BadLinesPoisonOnlyTheirPatient(t *testing.T) {
	csv := aliquotCSVHeader +
		"ONCOIVD_001;AL-1;GRAVEL;loc-site;2026-02-09;09:00;09:30\n" +
		"ONCOIVD_002;AL-2;PLASMA;loc-site;2026-02-09;10:00;10:30\n"

	sets, err := ParseAliquotFile(strings.NewReader(csv))
	if err != nil {
		t.Fatalf("ParseAliquotFile: %v", err)
	}
	if sets[0].Err == nil || !errors.Is(sets[0].Err, servicerr.ErrInvalidFormat) {
		t.Fatalf("expected the unknown sample type to poison the first patient, got %v", sets[0].Err)
	}
	if sets[1].Err != nil || len(sets[1].Aliquots) != 1 {
		t.Fatalf("expected the second patient untouched, got %+v", sets[1])
	}
}
