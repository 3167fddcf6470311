package imports

import (
	"context"
	"errors"
	"fmt"
	"time"

	"shipment-control/internal/domain/servicerr"
	"shipment-control/internal/ports/ecrf"
)

// patientSyncer empuja los registros normalizados de RedCAP a la plataforma
// remota. Se crea uno nuevo por cada fichero importado: el id de la
// subscription se resuelve una vez y se cachea solo durante esa pasada,
// nunca entre invocaciones.
type patientSyncer struct {
	remote  ecrf.Client
	mapping *Mapping

	programCode string
	teamCode    string
	now         func() time.Time

	subscriptionID string
}

func newPatientSyncer(remote ecrf.Client, mapping *Mapping, programCode, teamCode string, now func() time.Time) *patientSyncer {
	return &patientSyncer{
		remote:      remote,
		mapping:     mapping,
		programCode: programCode,
		teamCode:    teamCode,
		now:         now,
	}
}

// sync aplica el registro completo de un paciente: case, datos de contacto,
// admission y todas las tasks/forms con datos informados.
func (p *patientSyncer) sync(ctx context.Context, rec PatientRecord) error {
	patient, err := p.findOrCreatePatient(ctx, rec)
	if err != nil {
		return err
	}

	admission, err := p.findOrCreateAdmission(ctx, patient.ID)
	if err != nil {
		return err
	}

	for _, task := range p.mapping.Tasks {
		if p.mapping.TaskDataIsEmpty(task, rec.Fields) {
			continue
		}
		if err := p.syncTask(ctx, admission.ID, task, rec); err != nil {
			return err
		}
	}
	return nil
}

func (p *patientSyncer) findOrCreatePatient(ctx context.Context, rec PatientRecord) (ecrf.Patient, error) {
	contact := ecrf.Contact{
		BirthDate: rec.Fields["birthdate"],
		Gender:    genderOf(rec.Fields["gender"]),
	}

	patient, err := p.remote.FindPatient(ctx, rec.Ref)
	switch {
	case errors.Is(err, ecrf.ErrNotFound):
		return p.remote.CreatePatient(ctx, rec.Ref, contact)
	case err != nil:
		return ecrf.Patient{}, err
	}

	if patient.BirthDate != contact.BirthDate || patient.Gender != contact.Gender {
		if err := p.remote.UpdateContact(ctx, patient.ID, contact); err != nil {
			return ecrf.Patient{}, err
		}
	}
	return patient, nil
}

func (p *patientSyncer) findOrCreateAdmission(ctx context.Context, patientID string) (ecrf.Admission, error) {
	admissions, err := p.remote.Admissions(ctx, patientID)
	if err != nil {
		return ecrf.Admission{}, err
	}
	for _, adm := range admissions {
		if adm.ProgramCode == p.programCode {
			return adm, nil
		}
	}

	subID, err := p.subscription(ctx)
	if err != nil {
		return ecrf.Admission{}, err
	}
	return p.remote.CreateAdmission(ctx, patientID, subID, p.now())
}

func (p *patientSyncer) subscription(ctx context.Context) (string, error) {
	if p.subscriptionID != "" {
		return p.subscriptionID, nil
	}
	sub, err := p.remote.Subscription(ctx, p.programCode, p.teamCode)
	if err != nil {
		return "", fmt.Errorf("unable to find subscription for project %s, team %s: %w (%v)",
			p.programCode, p.teamCode, servicerr.ErrDataMissing, err)
	}
	p.subscriptionID = sub.ID
	return sub.ID, nil
}

func (p *patientSyncer) syncTask(ctx context.Context, admissionID string, task TaskMapping, rec PatientRecord) error {
	found, err := p.remote.TasksByCode(ctx, admissionID, task.Code)
	if err != nil {
		return err
	}
	var remoteTask ecrf.Task
	if len(found) > 0 {
		remoteTask = found[0]
	} else {
		remoteTask, err = p.remote.InsertTask(ctx, admissionID, task.Code)
		if err != nil {
			return err
		}
	}

	for _, form := range task.Forms {
		if err := p.syncForm(ctx, remoteTask.ID, form, rec); err != nil {
			return err
		}
	}
	return nil
}

func (p *patientSyncer) syncForm(ctx context.Context, taskID string, form FormMapping, rec PatientRecord) error {
	remoteForm, err := p.remote.FindForm(ctx, taskID, form.Code)
	if errors.Is(err, ecrf.ErrNotFound) {
		remoteForm, err = p.remote.InsertForm(ctx, taskID, form.Code)
	}
	if err != nil {
		return err
	}

	questions := buildQuestions(form, rec)
	if len(questions) == 0 {
		return nil
	}

	flag := p.mapping.FormCompleteFlag(form, rec.Fields)
	closeForm := flag == "1" || flag == "2"
	return p.remote.SetFormAnswers(ctx, remoteForm.ID, questions, closeForm)
}

// buildQuestions traduce los datos del paciente a respuestas del form: los
// items sueltos directamente, los contenedores ARRAY fila a fila.
func buildQuestions(form FormMapping, rec PatientRecord) []ecrf.Question {
	questions := make([]ecrf.Question, 0)

	for _, item := range form.Items {
		if item.Array != "" {
			continue // las columnas de ARRAY se emiten desde su contenedor
		}
		if item.IsArray() {
			rows := rec.Arrays[arrayKey(form.Code, item.Item)]
			for rowIx, row := range rows {
				for _, col := range form.Items {
					if col.Array != item.Item {
						continue
					}
					cell, ok := row[col.Item]
					if !ok {
						continue
					}
					questions = append(questions, cellQuestion(col, cell).InRow(item.Item, rowIx+1))
				}
			}
			continue
		}

		switch item.QuestionKind() {
		case ecrf.KindMultiOption:
			if opts, ok := rec.Checkboxes[item.RedCAP]; ok {
				questions = append(questions, ecrf.MultiOptionAnswer(item.Item, opts))
			}
		case ecrf.KindSingleOption:
			if v, ok := rec.Fields[item.RedCAP]; ok && v != "" {
				questions = append(questions, ecrf.OptionAnswer(item.Item, v))
			}
		default:
			if v, ok := rec.Fields[item.RedCAP]; ok {
				questions = append(questions, ecrf.ScalarAnswer(item.Item, v))
			}
		}
	}
	return questions
}

func cellQuestion(col ItemMapping, cell Cell) ecrf.Question {
	switch col.QuestionKind() {
	case ecrf.KindMultiOption:
		return ecrf.MultiOptionAnswer(col.Item, cell.Options)
	case ecrf.KindSingleOption:
		return ecrf.OptionAnswer(col.Item, cell.Value)
	default:
		return ecrf.ScalarAnswer(col.Item, cell.Value)
	}
}

// genderOf traduce el código de género de RedCAP (1/2) al de la plataforma.
func genderOf(v string) string {
	switch v {
	case "1":
		return "M"
	case "2":
		return "F"
	default:
		return ""
	}
}
