package router_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"shipment-control/internal/domain/imports"
	"shipment-control/internal/ports/ecrf"
	"shipment-control/internal/router"
)

const testToken = "svc-token"

func TestHTTP_EndToEnd_ShipmentLifecycle(t *testing.T) {
	remote := newFakePlatform()
	remote.patients["ONCOIVD_001"] = ecrf.Patient{ID: "case-1", Ref: "ONCOIVD_001"}
	remote.admissions["case-1"] = []ecrf.Admission{{ID: "adm-1", PatientID: "case-1", ProgramCode: "ONCOIVD"}}
	remote.users["user-7"] = "Jane Sender"
	remote.users["user-8"] = "Joan Receiver"

	aliquotsDir := t.TempDir()
	opts := router.Options{
		Remote:       remote,
		ServiceToken: testToken,
		Imports: imports.Config{
			RedCAPDir:   t.TempDir(),
			AliquotsDir: aliquotsDir,
			ProgramCode: "ONCOIVD",
			TeamCode:    "IGTP",
			RefPrefix:   "ONCOIVD",
		},
	}

	ts := httptest.NewServer(router.NewRouter(opts))
	defer ts.Close()

	// 1) Sin token => 401; /health queda abierto
	{
		resp, err := http.Get(ts.URL + "/shipments")
		if err != nil {
			t.Fatalf("get shipments: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("expected 401 without token, got %d", resp.StatusCode)
		}

		resp, err = http.Get(ts.URL + "/health")
		if err != nil {
			t.Fatalf("get health: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected 200 health, got %d", resp.StatusCode)
		}
	}

	// 2) Import de aliquots => dos entradas en el ledger
	{
		csv := "patient_ref;aliquot_id;sample_type;location;extraction_date;start_time;end_time\n" +
			"ONCOIVD_001;AL-1;PLASMA;loc-site;2026-02-01;08:30;08:45\n" +
			"ONCOIVD_001;AL-2;SERUM;loc-site;2026-02-01;08:30;08:45\n"
		if err := os.WriteFile(filepath.Join(aliquotsDir, "samples.csv"), []byte(csv), 0o644); err != nil {
			t.Fatalf("write csv: %v", err)
		}

		st, body := doReq(t, ts.URL, "POST", "/imports/aliquots", nil)
		if st != http.StatusOK {
			t.Fatalf("expected 200 import, got %d body=%s", st, string(body))
		}
		var report struct {
			Code string `json:"code"`
		}
		if err := json.Unmarshal(body, &report); err != nil {
			t.Fatalf("decode report: %v", err)
		}
		if report.Code != "success" {
			t.Fatalf("expected success import, got %q body=%s", report.Code, string(body))
		}
	}

	// 3) Los dos aliquots aparecen como enviables desde el sitio
	{
		st, body := doReq(t, ts.URL, "GET", "/aliquots/shippable?location_id=loc-site", nil)
		if st != http.StatusOK {
			t.Fatalf("expected 200 shippable, got %d body=%s", st, string(body))
		}
		var resp struct {
			Data struct {
				Rows  []map[string]any `json:"rows"`
				Total int              `json:"total"`
			} `json:"data"`
		}
		if err := json.Unmarshal(body, &resp); err != nil {
			t.Fatalf("decode shippable: %v", err)
		}
		if resp.Data.Total != 2 || len(resp.Data.Rows) != 2 {
			t.Fatalf("expected 2 shippable aliquots, got total=%d rows=%d", resp.Data.Total, len(resp.Data.Rows))
		}
	}

	// 4) Crear el envío
	shipmentID := ""
	{
		st, body := doReq(t, ts.URL, "POST", "/shipments", map[string]any{
			"ref":       "SHP-1",
			"sent_from": "loc-site",
			"sent_to":   "loc-lab",
			"sender_id": "user-7",
		})
		if st != http.StatusCreated {
			t.Fatalf("expected 201 create shipment, got %d body=%s", st, string(body))
		}
		shipmentID = dataField(t, body, "id")
	}

	// 5) Enviar sin aliquots => DATA_MISSING
	{
		st, body := doReq(t, ts.URL, "POST", "/shipments/"+shipmentID+"/send", map[string]any{
			"sender_id": "user-7",
		})
		if st != http.StatusBadRequest {
			t.Fatalf("expected 400 send without aliquots, got %d body=%s", st, string(body))
		}
		if code := errorCode(t, body); code != "DATA_MISSING" {
			t.Fatalf("expected DATA_MISSING, got %q", code)
		}
	}

	// 6) Asignar los dos aliquots y enviar
	{
		for _, id := range []string{"AL-1", "AL-2"} {
			st, body := doReq(t, ts.URL, "POST", "/shipments/"+shipmentID+"/aliquots", map[string]any{"aliquot_id": id})
			if st != http.StatusCreated {
				t.Fatalf("expected 201 add aliquot %s, got %d body=%s", id, st, string(body))
			}
		}

		st, body := doReq(t, ts.URL, "POST", "/shipments/"+shipmentID+"/send", map[string]any{
			"sender_id": "user-7",
			"send_date": "2026-02-10 09:00:00",
		})
		if st != http.StatusOK {
			t.Fatalf("expected 200 send, got %d body=%s", st, string(body))
		}
		if status := dataField(t, body, "status"); status != "SHIPPED" {
			t.Fatalf("expected SHIPPED, got %q", status)
		}
		if sender := dataField(t, body, "sender"); sender != "Jane Sender" {
			t.Fatalf("expected resolved sender name, got %q", sender)
		}

		st, body = doReq(t, ts.URL, "GET", "/aliquots/AL-1", nil)
		if st != http.StatusOK {
			t.Fatalf("expected 200 get aliquot, got %d body=%s", st, string(body))
		}
		if status := dataField(t, body, "status"); status != "IN_TRANSIT" {
			t.Fatalf("expected IN_TRANSIT after send, got %q", status)
		}
	}

	// 7) Tracking del envío en la plataforma remota
	{
		st, body := doReq(t, ts.URL, "POST", "/tracking/shipments", nil)
		if st != http.StatusOK {
			t.Fatalf("expected 200 tracking, got %d body=%s", st, string(body))
		}
		if !strings.Contains(string(body), `"code":"success"`) {
			t.Fatalf("expected success tracking report, got %s", string(body))
		}

		// segunda pasada: nada pendiente
		st, body = doReq(t, ts.URL, "POST", "/tracking/shipments", nil)
		if st != http.StatusOK || !strings.Contains(string(body), `"code":"idle"`) {
			t.Fatalf("expected idle second tracking run, got %d body=%s", st, string(body))
		}
	}

	// 8) Recepción: AL-2 llega dañado
	{
		st, body := doReq(t, ts.URL, "POST", "/shipments/"+shipmentID+"/reception/start", nil)
		if st != http.StatusOK {
			t.Fatalf("expected 200 start reception, got %d body=%s", st, string(body))
		}

		st, body = doReq(t, ts.URL, "PUT", "/shipments/"+shipmentID+"/aliquots/AL-2/condition", map[string]any{
			"condition": "damaged",
		})
		if st != http.StatusOK {
			t.Fatalf("expected 200 set condition, got %d body=%s", st, string(body))
		}

		st, body = doReq(t, ts.URL, "POST", "/shipments/"+shipmentID+"/reception/finish", map[string]any{
			"receiver_id":      "user-8",
			"reception_date":   "2026-02-12 10:00:00",
			"reception_status": "PARTIAL",
		})
		if st != http.StatusOK {
			t.Fatalf("expected 200 finish reception, got %d body=%s", st, string(body))
		}
		if status := dataField(t, body, "status"); status != "RECEIVED" {
			t.Fatalf("expected RECEIVED, got %q", status)
		}
	}

	// 9) AL-1 disponible en destino, AL-2 rechazado
	{
		st, body := doReq(t, ts.URL, "GET", "/aliquots/AL-1", nil)
		if st != http.StatusOK {
			t.Fatalf("expected 200, got %d", st)
		}
		if status := dataField(t, body, "status"); status != "AVAILABLE" {
			t.Fatalf("expected AVAILABLE, got %q", status)
		}
		if loc := dataField(t, body, "location_id"); loc != "loc-lab" {
			t.Fatalf("expected aliquot at destination, got %q", loc)
		}

		st, body = doReq(t, ts.URL, "GET", "/aliquots/AL-2", nil)
		if st != http.StatusOK {
			t.Fatalf("expected 200, got %d", st)
		}
		if status := dataField(t, body, "status"); status != "REJECTED" {
			t.Fatalf("expected REJECTED, got %q", status)
		}
	}

	// 10) Tracking de la recepción
	{
		st, body := doReq(t, ts.URL, "POST", "/tracking/receptions", nil)
		if st != http.StatusOK || !strings.Contains(string(body), `"code":"success"`) {
			t.Fatalf("expected success reception tracking, got %d body=%s", st, string(body))
		}
	}

	// 11) El envío recibido no se puede borrar
	{
		st, body := doReq(t, ts.URL, "DELETE", "/shipments/"+shipmentID, nil)
		if st != http.StatusConflict {
			t.Fatalf("expected 409 delete received shipment, got %d body=%s", st, string(body))
		}
		if code := errorCode(t, body); code != "INVALID_STATUS" {
			t.Fatalf("expected INVALID_STATUS, got %q", code)
		}
	}

	// 12) La historia del aliquot conserva todo el recorrido
	{
		st, body := doReq(t, ts.URL, "GET", "/aliquots/AL-1/history", nil)
		if st != http.StatusOK {
			t.Fatalf("expected 200 history, got %d body=%s", st, string(body))
		}
		for _, action := range []string{"CREATED", "SHIPPED", "RECEIVED"} {
			if !strings.Contains(string(body), `"action":"`+action+`"`) {
				t.Fatalf("history missing action %s: %s", action, string(body))
			}
		}
	}
}

func TestHTTP_UnknownShipmentIsNotFound(t *testing.T) {
	ts := httptest.NewServer(router.NewRouter(router.Options{}))
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/shipments/nope")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func doReq(t *testing.T, baseURL, method, path string, payload map[string]any) (int, []byte) {
	t.Helper()

	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewReader(b)
	} else if method != "GET" && method != "DELETE" {
		body = strings.NewReader("{}")
	}

	req, err := http.NewRequest(method, baseURL+path, body)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Token", testToken)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp.StatusCode, raw
}

func dataField(t *testing.T, body []byte, field string) string {
	t.Helper()

	var resp struct {
		Data map[string]any `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		t.Fatalf("decode data envelope: %v body=%s", err, string(body))
	}
	v, _ := resp.Data[field].(string)
	return v
}

func errorCode(t *testing.T, body []byte) string {
	t.Helper()

	var resp struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		t.Fatalf("decode error envelope: %v body=%s", err, string(body))
	}
	return resp.Error.Code
}

// fakePlatform implementa el cliente eCRF entero en memoria para el test
// end-to-end. Cada inserción devuelve ids secuenciales.
type fakePlatform struct {
	patients   map[string]ecrf.Patient     // ref -> patient
	admissions map[string][]ecrf.Admission // patientID -> admissions
	tasks      map[string]ecrf.Task        // taskID -> task
	forms      map[string]ecrf.Form        // formID -> form
	closed     map[string]bool             // formID -> cerrado
	users      map[string]string           // userID -> nombre completo
	next       int
}

func newFakePlatform() *fakePlatform {
	return &fakePlatform{
		patients:   make(map[string]ecrf.Patient),
		admissions: make(map[string][]ecrf.Admission),
		tasks:      make(map[string]ecrf.Task),
		forms:      make(map[string]ecrf.Form),
		closed:     make(map[string]bool),
		users:      make(map[string]string),
	}
}

func (f *fakePlatform) id(prefix string) string {
	f.next++
	return fmt.Sprintf("%s-%d", prefix, f.next)
}

func (f *fakePlatform) FindPatient(_ context.Context, ref string) (ecrf.Patient, error) {
	p, ok := f.patients[ref]
	if !ok {
		return ecrf.Patient{}, ecrf.ErrNotFound
	}
	return p, nil
}

func (f *fakePlatform) CreatePatient(_ context.Context, ref string, c ecrf.Contact) (ecrf.Patient, error) {
	p := ecrf.Patient{ID: f.id("case"), Ref: ref, BirthDate: c.BirthDate, Gender: c.Gender}
	f.patients[ref] = p
	return p, nil
}

func (f *fakePlatform) UpdateContact(_ context.Context, _ string, _ ecrf.Contact) error { return nil }

func (f *fakePlatform) Subscription(_ context.Context, programCode, teamCode string) (ecrf.Subscription, error) {
	return ecrf.Subscription{ID: "sub-1", ProgramCode: programCode, TeamCode: teamCode}, nil
}

func (f *fakePlatform) Admissions(_ context.Context, patientID string) ([]ecrf.Admission, error) {
	return f.admissions[patientID], nil
}

func (f *fakePlatform) CreateAdmission(_ context.Context, patientID, _ string, date time.Time) (ecrf.Admission, error) {
	a := ecrf.Admission{ID: f.id("adm"), PatientID: patientID, ProgramCode: "ONCOIVD", EnrolDate: date}
	f.admissions[patientID] = append(f.admissions[patientID], a)
	return a, nil
}

func (f *fakePlatform) Task(_ context.Context, taskID string) (ecrf.Task, error) {
	task, ok := f.tasks[taskID]
	if !ok {
		return ecrf.Task{}, ecrf.ErrNotFound
	}
	return task, nil
}

func (f *fakePlatform) TasksByCode(_ context.Context, admissionID, taskCode string) ([]ecrf.Task, error) {
	out := make([]ecrf.Task, 0)
	for _, task := range f.tasks {
		if task.AdmissionID == admissionID && task.Code == taskCode {
			out = append(out, task)
		}
	}
	return out, nil
}

func (f *fakePlatform) InsertTask(_ context.Context, admissionID, taskCode string) (ecrf.Task, error) {
	task := ecrf.Task{ID: f.id("task"), AdmissionID: admissionID, Code: taskCode}
	f.tasks[task.ID] = task
	return task, nil
}

func (f *fakePlatform) DeleteTask(_ context.Context, taskID string) error {
	delete(f.tasks, taskID)
	return nil
}

func (f *fakePlatform) FindForm(_ context.Context, taskID, formCode string) (ecrf.Form, error) {
	for _, form := range f.forms {
		if form.TaskID == taskID && form.Code == formCode {
			return form, nil
		}
	}
	return ecrf.Form{}, ecrf.ErrNotFound
}

func (f *fakePlatform) InsertForm(_ context.Context, taskID, formCode string) (ecrf.Form, error) {
	form := ecrf.Form{ID: f.id("form"), TaskID: taskID, Code: formCode}
	f.forms[form.ID] = form
	return form, nil
}

func (f *fakePlatform) SetFormAnswers(_ context.Context, formID string, _ []ecrf.Question, closeForm bool) error {
	if closeForm {
		f.closed[formID] = true
	}
	return nil
}

func (f *fakePlatform) User(_ context.Context, userID string) (ecrf.User, error) {
	name, ok := f.users[userID]
	if !ok {
		return ecrf.User{}, ecrf.ErrNotFound
	}
	return ecrf.User{ID: userID, FullName: name}, nil
}

func (f *fakePlatform) Team(_ context.Context, teamCode string) (ecrf.Team, error) {
	return ecrf.Team{ID: "team-" + teamCode, Code: teamCode, Name: teamCode}, nil
}
