// Package linkcare implementa el puerto ecrf.Client contra la API JSON de la
// plataforma Linkcare. Todas las llamadas son POST {base_url}/{función} con
// el token de sesión en el body; la sesión se inicia perezosamente y se
// renueva una vez si la plataforma la da por expirada.
package linkcare

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"shipment-control/internal/domain/servicerr"
	"shipment-control/internal/platform/httpclient"
	"shipment-control/internal/ports/ecrf"
)

const (
	sessionExpiredCode = "SESSION.EXPIRED"

	wireDateLayout = "2006-01-02 15:04:05"
)

// Config son las credenciales y la URL base del servicio REST de Linkcare.
type Config struct {
	BaseURL  string
	User     string
	Password string
	Timeout  time.Duration
}

type Client struct {
	http *httpclient.Client
	cfg  Config

	mu    sync.Mutex
	token string
}

var _ ecrf.Client = (*Client)(nil)

func New(cfg Config) (*Client, error) {
	hc, err := httpclient.NewWithBaseURL(cfg.BaseURL, cfg.Timeout)
	if err != nil {
		return nil, fmt.Errorf("linkcare: %w", err)
	}
	return &Client{http: hc, cfg: cfg}, nil
}

// envelope es la respuesta estándar de la API: o bien result, o bien un
// par código/mensaje de error.
type envelope struct {
	Result    json.RawMessage `json:"result"`
	ErrorCode string          `json:"ErrorCode"`
	ErrorMsg  string          `json:"ErrorMsg"`
}

// call ejecuta una función de la API con sesión. Si la plataforma responde
// sesión expirada, reabre sesión y repite la llamada una sola vez.
func (c *Client) call(ctx context.Context, fn string, params map[string]any, out any) error {
	token, err := c.session(ctx, false)
	if err != nil {
		return err
	}

	err = c.invoke(ctx, fn, token, params, out)
	var remote *ecrf.RemoteError
	if errors.As(err, &remote) && remote.Code == sessionExpiredCode {
		token, err = c.session(ctx, true)
		if err != nil {
			return err
		}
		err = c.invoke(ctx, fn, token, params, out)
	}
	return err
}

func (c *Client) invoke(ctx context.Context, fn, token string, params map[string]any, out any) error {
	body := map[string]any{"session": token}
	for k, v := range params {
		body[k] = v
	}

	var env envelope
	if err := c.http.DoJSON(ctx, "POST", "/"+fn, nil, body, &env); err != nil {
		return &ecrf.RemoteError{Op: fn, Message: err.Error()}
	}
	if env.ErrorCode != "" {
		return &ecrf.RemoteError{Op: fn, Code: env.ErrorCode, Message: env.ErrorMsg}
	}
	if out == nil || len(env.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Result, out); err != nil {
		return &ecrf.RemoteError{Op: fn, Message: fmt.Sprintf("decode result: %v", err)}
	}
	return nil
}

func (c *Client) session(ctx context.Context, force bool) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" && !force {
		return c.token, nil
	}

	var env envelope
	err := c.http.DoJSON(ctx, "POST", "/session_init", nil, map[string]any{
		"user":     c.cfg.User,
		"password": c.cfg.Password,
	}, &env)
	if err != nil {
		return "", &ecrf.RemoteError{Op: "session_init", Message: err.Error()}
	}
	if env.ErrorCode != "" {
		return "", &ecrf.RemoteError{Op: "session_init", Code: env.ErrorCode, Message: env.ErrorMsg}
	}

	var res struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(env.Result, &res); err != nil || res.Token == "" {
		return "", &ecrf.RemoteError{Op: "session_init", Message: "session token missing in response"}
	}
	c.token = res.Token
	return c.token, nil
}

// --- tipos de wire ---

type wireCase struct {
	ID        string `json:"id"`
	Ref       string `json:"ref"`
	BirthDate string `json:"birthdate"`
	Gender    string `json:"gender"`
}

func (w wireCase) patient() ecrf.Patient {
	return ecrf.Patient{ID: w.ID, Ref: w.Ref, BirthDate: w.BirthDate, Gender: w.Gender}
}

type wireAdmission struct {
	ID          string `json:"id"`
	CaseID      string `json:"case"`
	ProgramCode string `json:"program_code"`
	EnrolDate   string `json:"enrol_date"`
}

func (w wireAdmission) admission() ecrf.Admission {
	enrol, _ := time.Parse(wireDateLayout, w.EnrolDate)
	return ecrf.Admission{ID: w.ID, PatientID: w.CaseID, ProgramCode: w.ProgramCode, EnrolDate: enrol}
}

type wireTask struct {
	ID          string `json:"id"`
	AdmissionID string `json:"admission"`
	Code        string `json:"code"`
	Status      string `json:"status"`
}

func (w wireTask) task() ecrf.Task {
	return ecrf.Task{ID: w.ID, AdmissionID: w.AdmissionID, Code: w.Code, Closed: w.Status == "CLOSED"}
}

type wireForm struct {
	ID     string `json:"id"`
	TaskID string `json:"task"`
	Code   string `json:"code"`
}

type wireAnswer struct {
	ItemCode  string   `json:"item_code"`
	Type      string   `json:"type"`
	Value     string   `json:"value,omitempty"`
	OptionIDs []string `json:"option_ids,omitempty"`
	ArrayRef  string   `json:"array_ref,omitempty"`
	Row       int      `json:"row,omitempty"`
}

// --- operaciones del puerto ---

func (c *Client) FindPatient(ctx context.Context, ref string) (ecrf.Patient, error) {
	var found []wireCase
	err := c.call(ctx, "case_search", map[string]any{"search_str": ref}, &found)
	if err != nil {
		return ecrf.Patient{}, err
	}
	switch len(found) {
	case 0:
		return ecrf.Patient{}, ecrf.ErrNotFound
	case 1:
		return found[0].patient(), nil
	default:
		return ecrf.Patient{}, fmt.Errorf("%w: %d remote cases match ref %s", servicerr.ErrAmbiguous, len(found), ref)
	}
}

func (c *Client) CreatePatient(ctx context.Context, ref string, contact ecrf.Contact) (ecrf.Patient, error) {
	var created wireCase
	err := c.call(ctx, "case_insert", map[string]any{
		"ref":       ref,
		"birthdate": contact.BirthDate,
		"gender":    contact.Gender,
	}, &created)
	if err != nil {
		return ecrf.Patient{}, err
	}
	p := created.patient()
	if p.Ref == "" {
		p.Ref = ref
	}
	return p, nil
}

func (c *Client) UpdateContact(ctx context.Context, patientID string, contact ecrf.Contact) error {
	return c.call(ctx, "case_set_contact", map[string]any{
		"case":      patientID,
		"birthdate": contact.BirthDate,
		"gender":    contact.Gender,
	}, nil)
}

func (c *Client) Subscription(ctx context.Context, programCode, teamCode string) (ecrf.Subscription, error) {
	var found []struct {
		ID          string `json:"id"`
		ProgramCode string `json:"program_code"`
		TeamCode    string `json:"team_code"`
	}
	err := c.call(ctx, "subscription_list", map[string]any{
		"program": programCode,
		"team":    teamCode,
	}, &found)
	if err != nil {
		return ecrf.Subscription{}, err
	}
	if len(found) == 0 {
		return ecrf.Subscription{}, ecrf.ErrNotFound
	}
	s := found[0]
	return ecrf.Subscription{ID: s.ID, ProgramCode: s.ProgramCode, TeamCode: s.TeamCode}, nil
}

func (c *Client) Admissions(ctx context.Context, patientID string) ([]ecrf.Admission, error) {
	var found []wireAdmission
	if err := c.call(ctx, "case_admission_list", map[string]any{"case": patientID}, &found); err != nil {
		return nil, err
	}
	out := make([]ecrf.Admission, 0, len(found))
	for _, w := range found {
		out = append(out, w.admission())
	}
	return out, nil
}

func (c *Client) CreateAdmission(ctx context.Context, patientID, subscriptionID string, date time.Time) (ecrf.Admission, error) {
	var created wireAdmission
	err := c.call(ctx, "admission_create", map[string]any{
		"case":         patientID,
		"subscription": subscriptionID,
		"date":         date.Format(wireDateLayout),
	}, &created)
	if err != nil {
		return ecrf.Admission{}, err
	}
	a := created.admission()
	if a.PatientID == "" {
		a.PatientID = patientID
	}
	return a, nil
}

func (c *Client) Task(ctx context.Context, taskID string) (ecrf.Task, error) {
	var w wireTask
	if err := c.call(ctx, "task_get", map[string]any{"task": taskID}, &w); err != nil {
		return ecrf.Task{}, err
	}
	if w.ID == "" {
		return ecrf.Task{}, ecrf.ErrNotFound
	}
	return w.task(), nil
}

func (c *Client) TasksByCode(ctx context.Context, admissionID, taskCode string) ([]ecrf.Task, error) {
	var found []wireTask
	err := c.call(ctx, "admission_task_list", map[string]any{
		"admission": admissionID,
		"task_code": taskCode,
	}, &found)
	if err != nil {
		return nil, err
	}
	out := make([]ecrf.Task, 0, len(found))
	for _, w := range found {
		out = append(out, w.task())
	}
	return out, nil
}

func (c *Client) InsertTask(ctx context.Context, admissionID, taskCode string) (ecrf.Task, error) {
	var created wireTask
	err := c.call(ctx, "task_insert", map[string]any{
		"admission": admissionID,
		"task_code": taskCode,
	}, &created)
	if err != nil {
		return ecrf.Task{}, err
	}
	t := created.task()
	if t.AdmissionID == "" {
		t.AdmissionID = admissionID
	}
	if t.Code == "" {
		t.Code = taskCode
	}
	return t, nil
}

func (c *Client) DeleteTask(ctx context.Context, taskID string) error {
	return c.call(ctx, "task_delete", map[string]any{"task": taskID}, nil)
}

func (c *Client) FindForm(ctx context.Context, taskID, formCode string) (ecrf.Form, error) {
	var found []wireForm
	err := c.call(ctx, "task_activity_list", map[string]any{
		"task":      taskID,
		"form_code": formCode,
	}, &found)
	if err != nil {
		return ecrf.Form{}, err
	}
	if len(found) == 0 {
		return ecrf.Form{}, ecrf.ErrNotFound
	}
	f := found[0]
	return ecrf.Form{ID: f.ID, TaskID: f.TaskID, Code: f.Code}, nil
}

func (c *Client) InsertForm(ctx context.Context, taskID, formCode string) (ecrf.Form, error) {
	var created wireForm
	err := c.call(ctx, "task_activity_insert", map[string]any{
		"task":      taskID,
		"form_code": formCode,
	}, &created)
	if err != nil {
		return ecrf.Form{}, err
	}
	return ecrf.Form{ID: created.ID, TaskID: taskID, Code: formCode}, nil
}

func (c *Client) SetFormAnswers(ctx context.Context, formID string, answers []ecrf.Question, closeForm bool) error {
	wire := make([]wireAnswer, 0, len(answers))
	for _, q := range answers {
		wire = append(wire, wireAnswer{
			ItemCode:  q.ItemCode,
			Type:      string(q.Kind),
			Value:     q.Value,
			OptionIDs: q.OptionIDs,
			ArrayRef:  q.ArrayRef,
			Row:       q.Row,
		})
	}
	return c.call(ctx, "form_set_all_answers", map[string]any{
		"form":    formID,
		"answers": wire,
		"close":   strconv.FormatBool(closeForm),
	}, nil)
}

func (c *Client) User(ctx context.Context, userID string) (ecrf.User, error) {
	var w struct {
		ID       string `json:"id"`
		FullName string `json:"full_name"`
	}
	if err := c.call(ctx, "user_get", map[string]any{"user": userID}, &w); err != nil {
		return ecrf.User{}, err
	}
	if w.ID == "" {
		return ecrf.User{}, ecrf.ErrNotFound
	}
	return ecrf.User{ID: w.ID, FullName: w.FullName}, nil
}

func (c *Client) Team(ctx context.Context, teamCode string) (ecrf.Team, error) {
	var w struct {
		ID   string `json:"id"`
		Code string `json:"code"`
		Name string `json:"name"`
	}
	if err := c.call(ctx, "team_get", map[string]any{"team": teamCode}, &w); err != nil {
		return ecrf.Team{}, err
	}
	if w.ID == "" {
		return ecrf.Team{}, ecrf.ErrNotFound
	}
	return ecrf.Team{ID: w.ID, Code: w.Code, Name: w.Name}, nil
}
