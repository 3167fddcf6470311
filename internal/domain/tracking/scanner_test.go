package tracking_test

import (
	"context"
	"testing"
	"time"

	"shipment-control/internal/adapters/storage/memory"
	"shipment-control/internal/domain/aliquots"
	"shipment-control/internal/domain/shipments"
	"shipment-control/internal/domain/tracking"
)

// fixture monta el stack ledger + envíos + scanner sobre repos en memoria.
type fixture struct {
	ledger  *aliquots.Service
	ships   *shipments.Service
	scanner *tracking.Scanner
}

func newFixture() *fixture {
	aliRepo := memory.NewAliquotRepo()
	shipRepo := memory.NewShipmentRepo()

	ledger := aliquots.NewService(aliRepo)
	ships := shipments.NewService(shipRepo, ledger, nil)
	scanner := tracking.NewScanner(memory.NewTrackingRepo(shipRepo, aliRepo), ships)

	return &fixture{ledger: ledger, ships: ships, scanner: scanner}
}

// seedAliquot registra un aliquot disponible en el ledger.
func (f *fixture) seedAliquot(t *testing.T, id, patientID, patientRef string, st aliquots.SampleType) {
	t.Helper()

	_, err := f.ledger.Upsert(context.Background(), aliquots.Row{
		ID:         id,
		PatientID:  &patientID,
		PatientRef: &patientRef,
		SampleType: &st,
	}, aliquots.ActionCreated)
	if err != nil {
		t.Fatalf("seed aliquot %s: %v", id, err)
	}
}

// sentShipment crea un envío con los aliquots dados y lo marca SHIPPED.
func (f *fixture) sentShipment(t *testing.T, ref string, sendDate time.Time, aliquotIDs ...string) shipments.Shipment {
	t.Helper()
	ctx := context.Background()

	sh, err := f.ships.Create(ctx, shipments.CreateInput{
		Ref:      ref,
		SentFrom: "loc-site",
		SentTo:   "loc-lab",
		SenderID: "user-1",
	})
	if err != nil {
		t.Fatalf("create shipment: %v", err)
	}
	for _, id := range aliquotIDs {
		if err := f.ships.AddAliquot(ctx, sh.ID, id); err != nil {
			t.Fatalf("add aliquot %s: %v", id, err)
		}
	}

	sh, err = f.ships.Send(ctx, sh.ID, shipments.SendInput{SendDate: &sendDate})
	if err != nil {
		t.Fatalf("send shipment: %v", err)
	}
	return sh
}

func (f *fixture) receiveShipment(t *testing.T, shipmentID string, date time.Time) {
	t.Helper()
	ctx := context.Background()

	if _, err := f.ships.StartReception(ctx, shipmentID); err != nil {
		t.Fatalf("start reception: %v", err)
	}
	_, err := f.ships.FinishReception(ctx, shipmentID, shipments.ReceptionInput{
		ReceptionDate:   &date,
		ReceiverID:      "user-2",
		ReceptionStatus: "OK",
	})
	if err != nil {
		t.Fatalf("finish reception: %v", err)
	}
}

func TestScanner_UntrackedShipments_GroupsPatientsPerShipment(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	f.seedAliquot(t, "AL-1", "case-1", "STUDY_001", aliquots.SamplePlasma)
	f.seedAliquot(t, "AL-2", "case-1", "STUDY_001", aliquots.SampleSerum)
	f.seedAliquot(t, "AL-3", "case-2", "STUDY_002", aliquots.SamplePlasma)

	sent := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	sh := f.sentShipment(t, "SHP-1", sent, "AL-1", "AL-2", "AL-3")

	pending, err := f.scanner.UntrackedShipments(ctx)
	if err != nil {
		t.Fatalf("UntrackedShipments: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("expected 1 pending shipment, got %d", len(pending))
	}
	if pending[0].Shipment.ID != sh.ID {
		t.Fatalf("expected shipment %s, got %s", sh.ID, pending[0].Shipment.ID)
	}
	if len(pending[0].Patients) != 2 {
		t.Fatalf("expected 2 pending patients, got %d", len(pending[0].Patients))
	}
	// orden determinista por patient id
	if pending[0].Patients[0].PatientID != "case-1" || pending[0].Patients[1].PatientID != "case-2" {
		t.Fatalf("unexpected patient order: %+v", pending[0].Patients)
	}
}

func TestScanner_UntrackedShipments_OrderedBySendDate(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	f.seedAliquot(t, "AL-1", "case-1", "STUDY_001", aliquots.SamplePlasma)
	f.seedAliquot(t, "AL-2", "case-2", "STUDY_002", aliquots.SamplePlasma)

	later := time.Date(2026, 3, 12, 9, 0, 0, 0, time.UTC)
	earlier := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	shLater := f.sentShipment(t, "SHP-2", later, "AL-2")
	shEarlier := f.sentShipment(t, "SHP-1", earlier, "AL-1")

	pending, err := f.scanner.UntrackedShipments(ctx)
	if err != nil {
		t.Fatalf("UntrackedShipments: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("expected 2 pending shipments, got %d", len(pending))
	}
	if pending[0].Shipment.ID != shEarlier.ID || pending[1].Shipment.ID != shLater.ID {
		t.Fatalf("expected send-date order, got %s then %s", pending[0].Shipment.ID, pending[1].Shipment.ID)
	}
}

func TestScanner_MarkTracked_RemovesPatientFromScan(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	f.seedAliquot(t, "AL-1", "case-1", "STUDY_001", aliquots.SamplePlasma)
	f.seedAliquot(t, "AL-2", "case-2", "STUDY_002", aliquots.SamplePlasma)
	sh := f.sentShipment(t, "SHP-1", time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC), "AL-1", "AL-2")

	if err := f.ships.MarkTracked(ctx, shipments.TrackShipment, sh.ID, "task-77", []string{"AL-1"}); err != nil {
		t.Fatalf("MarkTracked: %v", err)
	}

	pending, err := f.scanner.UntrackedShipments(ctx)
	if err != nil {
		t.Fatalf("UntrackedShipments: %v", err)
	}
	if len(pending) != 1 || len(pending[0].Patients) != 1 {
		t.Fatalf("expected 1 shipment with 1 pending patient, got %+v", pending)
	}
	if pending[0].Patients[0].PatientID != "case-2" {
		t.Fatalf("expected case-2 still pending, got %s", pending[0].Patients[0].PatientID)
	}
}

func TestScanner_UntrackedReceptions_RequireShipmentTask(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	f.seedAliquot(t, "AL-1", "case-1", "STUDY_001", aliquots.SamplePlasma)
	f.seedAliquot(t, "AL-2", "case-2", "STUDY_002", aliquots.SamplePlasma)
	sh := f.sentShipment(t, "SHP-1", time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC), "AL-1", "AL-2")
	f.receiveShipment(t, sh.ID, time.Date(2026, 3, 11, 9, 0, 0, 0, time.UTC))

	// sin task de envío anotada todavía no hay recepción que trackear
	pending, err := f.scanner.UntrackedReceptions(ctx)
	if err != nil {
		t.Fatalf("UntrackedReceptions: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("expected no pending receptions before shipment tracking, got %+v", pending)
	}

	if err := f.ships.MarkTracked(ctx, shipments.TrackShipment, sh.ID, "task-1", []string{"AL-1"}); err != nil {
		t.Fatalf("MarkTracked AL-1: %v", err)
	}

	pending, err = f.scanner.UntrackedReceptions(ctx)
	if err != nil {
		t.Fatalf("UntrackedReceptions: %v", err)
	}
	if len(pending) != 1 || len(pending[0].Patients) != 1 {
		t.Fatalf("expected 1 pending reception patient, got %+v", pending)
	}
	p := pending[0].Patients[0]
	if p.PatientID != "case-1" {
		t.Fatalf("expected case-1 pending, got %s", p.PatientID)
	}
	// la fila lleva el task id de envío para reubicar la admission
	if p.TrackingTaskID != "task-1" {
		t.Fatalf("expected tracking task task-1, got %q", p.TrackingTaskID)
	}
}

func TestScanner_RerunReturnsEquivalentPlan(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	f.seedAliquot(t, "AL-1", "case-1", "STUDY_001", aliquots.SamplePlasma)
	f.sentShipment(t, "SHP-1", time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC), "AL-1")

	first, err := f.scanner.UntrackedShipments(ctx)
	if err != nil {
		t.Fatalf("first scan: %v", err)
	}
	second, err := f.scanner.UntrackedShipments(ctx)
	if err != nil {
		t.Fatalf("second scan: %v", err)
	}

	if len(first) != len(second) {
		t.Fatalf("scan is not stable: %d vs %d shipments", len(first), len(second))
	}
	for i := range first {
		if first[i].Shipment.ID != second[i].Shipment.ID {
			t.Fatalf("scan order changed at %d: %s vs %s", i, first[i].Shipment.ID, second[i].Shipment.ID)
		}
		if len(first[i].Patients) != len(second[i].Patients) {
			t.Fatalf("patient set changed for shipment %s", first[i].Shipment.ID)
		}
	}
}
