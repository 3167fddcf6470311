package shipments

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"shipment-control/internal/domain/aliquots"
	"shipment-control/internal/domain/servicerr"
)

// -------------------------
// Test repos (in-memory)
// -------------------------

type testRepo struct {
	byID  map[string]Shipment
	joins map[string][]ShippedAliquot
}

func newTestRepo() *testRepo {
	return &testRepo{
		byID:  map[string]Shipment{},
		joins: map[string][]ShippedAliquot{},
	}
}

func (r *testRepo) Create(_ context.Context, s Shipment) error {
	r.byID[s.ID] = s
	return nil
}

func (r *testRepo) Update(_ context.Context, s Shipment) error {
	if _, ok := r.byID[s.ID]; !ok {
		return servicerr.ErrNotFound
	}
	r.byID[s.ID] = s
	return nil
}

func (r *testRepo) GetByID(_ context.Context, id string) (Shipment, error) {
	s, ok := r.byID[id]
	if !ok {
		return Shipment{}, servicerr.ErrNotFound
	}
	return s, nil
}

func (r *testRepo) List(_ context.Context, _ ListFilter) ([]Shipment, int, error) {
	return nil, 0, nil
}

func (r *testRepo) Delete(_ context.Context, id string) error {
	if _, ok := r.byID[id]; !ok {
		return servicerr.ErrNotFound
	}
	delete(r.byID, id)
	delete(r.joins, id)
	return nil
}

func (r *testRepo) AddAliquot(_ context.Context, sa ShippedAliquot) error {
	r.joins[sa.ShipmentID] = append(r.joins[sa.ShipmentID], sa)
	return nil
}

func (r *testRepo) RemoveAliquot(_ context.Context, shipmentID, aliquotID string) error {
	rows := r.joins[shipmentID]
	for i, sa := range rows {
		if sa.AliquotID == aliquotID {
			r.joins[shipmentID] = append(rows[:i:i], rows[i+1:]...)
			return nil
		}
	}
	return servicerr.ErrNotFound
}

func (r *testRepo) SetAliquotCondition(_ context.Context, shipmentID, aliquotID, condition string) error {
	rows := r.joins[shipmentID]
	for i := range rows {
		if rows[i].AliquotID == aliquotID {
			rows[i].Condition = condition
			return nil
		}
	}
	return servicerr.ErrNotFound
}

func (r *testRepo) ListAliquots(_ context.Context, shipmentID string) ([]ShippedAliquot, error) {
	return append([]ShippedAliquot(nil), r.joins[shipmentID]...), nil
}

func (r *testRepo) SetTrackingTask(_ context.Context, kind TrackKind, shipmentID, taskID string, aliquotIDs []string) error {
	rows := r.joins[shipmentID]
	for _, id := range aliquotIDs {
		for i := range rows {
			if rows[i].AliquotID != id {
				continue
			}
			if kind == TrackReception {
				rows[i].ReceptionTaskID = taskID
			} else {
				rows[i].ShipmentTaskID = taskID
			}
		}
	}
	return nil
}

type testLedgerRepo struct {
	byID    map[string]aliquots.Aliquot
	history map[string][]aliquots.HistoryRecord
}

func newTestLedgerRepo() *testLedgerRepo {
	return &testLedgerRepo{
		byID:    map[string]aliquots.Aliquot{},
		history: map[string][]aliquots.HistoryRecord{},
	}
}

func (r *testLedgerRepo) Get(_ context.Context, id string) (aliquots.Aliquot, error) {
	a, ok := r.byID[id]
	if !ok {
		return aliquots.Aliquot{}, servicerr.ErrNotFound
	}
	return a, nil
}

func (r *testLedgerRepo) Put(_ context.Context, a aliquots.Aliquot) error {
	r.byID[a.ID] = a
	return nil
}

func (r *testLedgerRepo) ListByIDs(_ context.Context, ids []string) ([]aliquots.Aliquot, error) {
	out := make([]aliquots.Aliquot, 0, len(ids))
	for _, id := range ids {
		if a, ok := r.byID[id]; ok {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *testLedgerRepo) ListByShipment(_ context.Context, shipmentID string) ([]aliquots.Aliquot, error) {
	out := make([]aliquots.Aliquot, 0)
	for _, a := range r.byID {
		if a.ShipmentID == shipmentID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *testLedgerRepo) ListShippable(_ context.Context, _ aliquots.ShippableFilter) ([]aliquots.Aliquot, int, error) {
	return nil, 0, nil
}

func (r *testLedgerRepo) AppendHistory(_ context.Context, rec aliquots.HistoryRecord) error {
	r.history[rec.AliquotID] = append(r.history[rec.AliquotID], rec)
	return nil
}

func (r *testLedgerRepo) HistoryByAliquot(_ context.Context, aliquotID string) ([]aliquots.HistoryRecord, error) {
	return r.history[aliquotID], nil
}

type testUsers map[string]string

func (u testUsers) User(_ context.Context, userID string) (string, error) {
	name, ok := u[userID]
	if !ok {
		return "", servicerr.ErrNotFound
	}
	return name, nil
}

// -------------------------
// Fixture
// -------------------------

type fixture struct {
	repo       *testRepo
	ledgerRepo *testLedgerRepo
	ledger     *aliquots.Service
	svc        *Service
	now        time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	now := time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC)
	repo := newTestRepo()
	ledgerRepo := newTestLedgerRepo()
	ledger := aliquots.NewService(ledgerRepo)

	svc := NewService(repo, ledger, testUsers{"user-7": "Jane Sender", "user-8": "Joan Receiver"})
	svc.now = func() time.Time { return now }

	return &fixture{repo: repo, ledgerRepo: ledgerRepo, ledger: ledger, svc: svc, now: now}
}

func (f *fixture) newShipment(t *testing.T) Shipment {
	t.Helper()

	sh, err := f.svc.Create(context.Background(), CreateInput{
		Ref:      "SHP-1",
		SentFrom: "loc-site",
		SentTo:   "loc-lab",
		SenderID: "user-7",
	})
	if err != nil {
		t.Fatalf("create shipment: %v", err)
	}
	return sh
}

func (f *fixture) addAliquots(t *testing.T, shipmentID string, ids ...string) {
	t.Helper()

	for _, id := range ids {
		if err := f.svc.AddAliquot(context.Background(), shipmentID, id); err != nil {
			t.Fatalf("add aliquot %s: %v", id, err)
		}
	}
}

func (f *fixture) sent(t *testing.T, ids ...string) Shipment {
	t.Helper()

	sh := f.newShipment(t)
	f.addAliquots(t, sh.ID, ids...)
	sent, err := f.svc.Send(context.Background(), sh.ID, SendInput{SenderID: "user-7"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	return sent
}

// -------------------------
// Tests
// -------------------------

func TestCreate_RejectsSameOriginAndDestination(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Create(context.Background(), CreateInput{SentFrom: "loc-1", SentTo: "loc-1"})
	if !errors.Is(err, servicerr.ErrInvalidFormat) {
		t.Fatalf("expected ErrInvalidFormat, got %v", err)
	}
}

func TestSend_WithoutAliquotsFailsAndKeepsStatus(t *testing.T) {
	f := newFixture(t)
	sh := f.newShipment(t)

	_, err := f.svc.Send(context.Background(), sh.ID, SendInput{SenderID: "user-7"})
	if !errors.Is(err, servicerr.ErrDataMissing) {
		t.Fatalf("expected ErrDataMissing, got %v", err)
	}

	stored := f.repo.byID[sh.ID]
	if stored.Status != StatusPreparing {
		t.Fatalf("send failure must not flip status, got %s", stored.Status)
	}
}

func TestSend_MarksAliquotsInTransit(t *testing.T) {
	f := newFixture(t)
	sh := f.newShipment(t)
	f.addAliquots(t, sh.ID, "AL-1", "AL-2")

	sendDate := time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC)
	sent, err := f.svc.Send(context.Background(), sh.ID, SendInput{SenderID: "user-7", SendDate: &sendDate})
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	if sent.Status != StatusShipped {
		t.Fatalf("expected SHIPPED, got %s", sent.Status)
	}
	if sent.SendDate == nil || !sent.SendDate.Equal(sendDate) {
		t.Fatalf("expected send date %v, got %v", sendDate, sent.SendDate)
	}
	if sent.Sender != "Jane Sender" {
		t.Fatalf("expected resolved sender name, got %q", sent.Sender)
	}

	for _, id := range []string{"AL-1", "AL-2"} {
		a := f.ledgerRepo.byID[id]
		if a.Status != aliquots.StatusInTransit {
			t.Fatalf("aliquot %s expected IN_TRANSIT, got %s", id, a.Status)
		}
		if a.ShipmentID != sh.ID {
			t.Fatalf("aliquot %s expected shipment id %s, got %q", id, sh.ID, a.ShipmentID)
		}
		if !a.UpdatedAt.Equal(sendDate) {
			t.Fatalf("aliquot %s expected business timestamp %v, got %v", id, sendDate, a.UpdatedAt)
		}

		var shipped int
		for _, rec := range f.ledgerRepo.history[id] {
			if rec.Action == aliquots.ActionShipped {
				shipped++
			}
		}
		if shipped != 1 {
			t.Fatalf("aliquot %s expected 1 SHIPPED history row, got %d", id, shipped)
		}
	}
}

func TestUpdate_FieldWhitelistPerStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sh := f.newShipment(t)

	// En PREPARING los campos de recepción se ignoran
	status := "OK"
	updated, err := f.svc.Update(ctx, sh.ID, UpdateInput{ReceptionStatus: &status})
	if err != nil {
		t.Fatalf("update preparing: %v", err)
	}
	if updated.ReceptionStatus != "" {
		t.Fatalf("reception fields must be ignored while preparing, got %q", updated.ReceptionStatus)
	}

	// En SHIPPED no se admite ninguna edición
	sent := f.sent(t, "AL-1")
	ref := "SHP-2"
	if _, err := f.svc.Update(ctx, sent.ID, UpdateInput{Ref: &ref}); !errors.Is(err, servicerr.ErrInvalidStatus) {
		t.Fatalf("expected ErrInvalidStatus updating shipped, got %v", err)
	}

	// En RECEIVING la ref queda congelada pero la recepción es editable
	if _, err := f.svc.StartReception(ctx, sent.ID); err != nil {
		t.Fatalf("start reception: %v", err)
	}
	updated, err = f.svc.Update(ctx, sent.ID, UpdateInput{Ref: &ref, ReceptionStatus: &status})
	if err != nil {
		t.Fatalf("update receiving: %v", err)
	}
	if updated.Ref != "SHP-1" {
		t.Fatalf("ref must stay frozen while receiving, got %q", updated.Ref)
	}
	if updated.ReceptionStatus != "OK" {
		t.Fatalf("reception status not applied, got %q", updated.ReceptionStatus)
	}
}

func TestStartReception_RequiresShipped(t *testing.T) {
	f := newFixture(t)
	sh := f.newShipment(t)

	if _, err := f.svc.StartReception(context.Background(), sh.ID); !errors.Is(err, servicerr.ErrInvalidStatus) {
		t.Fatalf("expected ErrInvalidStatus, got %v", err)
	}
}

func TestFinishReception_DamagedAndCleanAliquots(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sent := f.sent(t, "AL-1", "AL-2")
	if _, err := f.svc.StartReception(ctx, sent.ID); err != nil {
		t.Fatalf("start reception: %v", err)
	}
	if err := f.svc.SetAliquotCondition(ctx, sent.ID, "AL-2", "damaged"); err != nil {
		t.Fatalf("set condition: %v", err)
	}

	receptionDate := time.Date(2026, 2, 12, 10, 0, 0, 0, time.UTC)
	received, err := f.svc.FinishReception(ctx, sent.ID, ReceptionInput{
		ReceiverID:      "user-8",
		ReceptionDate:   &receptionDate,
		ReceptionStatus: "PARTIAL",
	})
	if err != nil {
		t.Fatalf("finish reception: %v", err)
	}
	if received.Status != StatusReceived {
		t.Fatalf("expected RECEIVED, got %s", received.Status)
	}
	if received.Receiver != "Joan Receiver" {
		t.Fatalf("expected resolved receiver name, got %q", received.Receiver)
	}

	clean := f.ledgerRepo.byID["AL-1"]
	if clean.Status != aliquots.StatusAvailable || clean.Condition != "" {
		t.Fatalf("clean aliquot expected AVAILABLE without condition, got %+v", clean)
	}
	if clean.LocationID != "loc-lab" {
		t.Fatalf("clean aliquot expected at destination, got %q", clean.LocationID)
	}
	if clean.ShipmentID != "" {
		t.Fatalf("reception must clear shipment id, got %q", clean.ShipmentID)
	}

	damaged := f.ledgerRepo.byID["AL-2"]
	if damaged.Status != aliquots.StatusRejected || damaged.Condition != "damaged" {
		t.Fatalf("damaged aliquot expected REJECTED with condition, got %+v", damaged)
	}
	if damaged.ShipmentID != "" {
		t.Fatalf("reception must clear shipment id, got %q", damaged.ShipmentID)
	}

	var withDestination int
	for _, rec := range f.ledgerRepo.history["AL-2"] {
		if rec.Action == aliquots.ActionReceived && rec.LocationID == "loc-lab" {
			withDestination++
		}
	}
	if withDestination != 1 {
		t.Fatalf("expected 1 RECEIVED history row at destination, got %d", withDestination)
	}
}

func TestFinishReception_TwiceIsInvalidStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sent := f.sent(t, "AL-1")
	if _, err := f.svc.StartReception(ctx, sent.ID); err != nil {
		t.Fatalf("start reception: %v", err)
	}

	receptionDate := time.Date(2026, 2, 12, 10, 0, 0, 0, time.UTC)
	in := ReceptionInput{ReceiverID: "user-8", ReceptionDate: &receptionDate, ReceptionStatus: "OK"}
	if _, err := f.svc.FinishReception(ctx, sent.ID, in); err != nil {
		t.Fatalf("first finish: %v", err)
	}

	if _, err := f.svc.FinishReception(ctx, sent.ID, in); !errors.Is(err, servicerr.ErrInvalidStatus) {
		t.Fatalf("RECEIVED must be terminal, got %v", err)
	}
}

func TestDelete_OnlyWhilePreparing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Enviado: no se borra y nada cambia
	sent := f.sent(t, "AL-1")
	if err := f.svc.Delete(ctx, sent.ID); !errors.Is(err, servicerr.ErrInvalidStatus) {
		t.Fatalf("expected ErrInvalidStatus deleting sent shipment, got %v", err)
	}
	if _, ok := f.repo.byID[sent.ID]; !ok {
		t.Fatal("failed delete must leave the shipment row")
	}
	if a := f.ledgerRepo.byID["AL-1"]; a.ShipmentID != sent.ID {
		t.Fatalf("failed delete must leave aliquot membership, got %q", a.ShipmentID)
	}

	// En preparación: se borra y los aliquots quedan liberados
	sh := f.newShipment(t)
	f.addAliquots(t, sh.ID, "AL-9")
	if err := f.svc.Delete(ctx, sh.ID); err != nil {
		t.Fatalf("delete preparing: %v", err)
	}
	if _, ok := f.repo.byID[sh.ID]; ok {
		t.Fatal("shipment row must be gone")
	}
	released := f.ledgerRepo.byID["AL-9"]
	if released.Status != aliquots.StatusAvailable || released.ShipmentID != "" {
		t.Fatalf("deleted shipment must release aliquots, got %+v", released)
	}
}

func TestAddAliquot_OnlyWhilePreparing(t *testing.T) {
	f := newFixture(t)

	sent := f.sent(t, "AL-1")
	err := f.svc.AddAliquot(context.Background(), sent.ID, "AL-2")
	if !errors.Is(err, servicerr.ErrInvalidStatus) {
		t.Fatalf("expected ErrInvalidStatus, got %v", err)
	}
}

func TestMarkTracked_RejectsForeignAliquots(t *testing.T) {
	f := newFixture(t)

	sent := f.sent(t, "AL-1")
	err := f.svc.MarkTracked(context.Background(), TrackShipment, sent.ID, "task-1", []string{"AL-1", "AL-404"})
	if !errors.Is(err, servicerr.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if !strings.Contains(err.Error(), "AL-404") {
		t.Fatalf("error must name the missing aliquot, got %v", err)
	}

	// la fila del join queda sin task
	joins, _ := f.repo.ListAliquots(context.Background(), sent.ID)
	if joins[0].ShipmentTaskID != "" {
		t.Fatalf("failed MarkTracked must not write task ids, got %q", joins[0].ShipmentTaskID)
	}
}
