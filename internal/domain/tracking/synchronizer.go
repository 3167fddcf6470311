package tracking

import (
	"context"
	"errors"
	"fmt"

	"shipment-control/internal/domain/aliquots"
	"shipment-control/internal/domain/reports"
	"shipment-control/internal/domain/servicerr"
	"shipment-control/internal/domain/shipments"
	"shipment-control/internal/platform/logger"
	"shipment-control/internal/ports/ecrf"
)

// Códigos de task/form del programa en la plataforma remota.
const (
	taskCodeShipment  = "SHIPMENT_TRACKING"
	taskCodeReception = "RECEPTION_TRACKING"
	formCodeShipment  = "SHIPMENT_TRACKING_FORM"
	formCodeReception = "RECEPTION_TRACKING_FORM"

	itemShipmentRef   = "SHIPMENT_REF"
	itemOrigin        = "ORIGIN"
	itemDestination   = "DESTINATION"
	itemSendDate      = "SHIPMENT_DATE"
	itemReceptionDate = "RECEPTION_DATE"
	itemReceiver      = "RECEIVER"
	itemRecStatus     = "RECEPTION_STATUS"
	itemRecComments   = "RECEPTION_COMMENTS"

	arrayAliquots   = "ALIQUOT_LIST"
	itemAliquotID   = "ALIQUOT_ID"
	itemSampleType  = "SAMPLE_TYPE"
	itemAliquotCond = "ALIQUOT_CONDITION"

	remoteDateLayout = "2006-01-02 15:04:05"
)

// Synchronizer cierra el hueco entre el ledger local y el tracking remoto.
// Cada paciente de cada envío se procesa de forma aislada: el error de uno
// nunca bloquea a los demás. El ledger solo se marca como trackeado después
// de la confirmación remota, así que el scan siguiente reintenta lo que
// quedó a medias.
type Synchronizer struct {
	scanner *Scanner
	ships   *shipments.Service
	ledger  *aliquots.Service
	remote  ecrf.Client
	log     logger.Logger

	programCode string
}

func NewSynchronizer(scanner *Scanner, ships *shipments.Service, ledger *aliquots.Service, remote ecrf.Client, programCode string, log logger.Logger) *Synchronizer {
	return &Synchronizer{
		scanner:     scanner,
		ships:       ships,
		ledger:      ledger,
		remote:      remote,
		log:         log,
		programCode: programCode,
	}
}

// TrackPendingShipments crea en la plataforma remota la task de tracking de
// envío de cada (envío, paciente) pendiente y anota el task id confirmado en
// el ledger. Es seguro reinvocarla en cualquier momento.
func (y *Synchronizer) TrackPendingShipments(ctx context.Context) *reports.Report {
	pending, err := y.scanner.UntrackedShipments(ctx)
	if err != nil {
		return reports.New(reports.CodeError, err.Error())
	}
	if len(pending) == 0 {
		return reports.New(reports.CodeIdle, "No shipments pending to be tracked.")
	}

	return y.run(ctx, pending, y.trackShipmentForPatient, "Shipments updated successfully: %d, Errors: %d")
}

// TrackPendingReceptions hace lo mismo para las recepciones, reutilizando la
// task de envío ya anotada para localizar la admission del paciente.
func (y *Synchronizer) TrackPendingReceptions(ctx context.Context) *reports.Report {
	pending, err := y.scanner.UntrackedReceptions(ctx)
	if err != nil {
		return reports.New(reports.CodeError, err.Error())
	}
	if len(pending) == 0 {
		return reports.New(reports.CodeIdle, "No shipment receptions pending to be tracked.")
	}

	return y.run(ctx, pending, y.trackReceptionForPatient, "Shipment receptions updated successfully: %d, Errors: %d")
}

func (y *Synchronizer) run(ctx context.Context, pending []PendingShipment, trackOne func(context.Context, shipments.Shipment, PendingPatient) error, msgFormat string) *reports.Report {
	report := reports.New(reports.CodeIdle, "")

	numSuccess := 0
	numErrors := 0
	for _, sd := range pending {
		shipmentID := sd.Shipment.ID

		patientsSuccess := 0
		patientsError := 0
		for _, p := range sd.Patients {
			if err := trackOne(ctx, sd.Shipment, p); err != nil {
				report.AddDetail(fmt.Sprintf("ERROR Patient %s: Shipment %s failed to be tracked in eCRF: %v", p.PatientRef, shipmentID, err))
				y.log.Error("tracking failed", map[string]any{"shipment": shipmentID, "patient": p.PatientRef, "err": err.Error()})
				patientsError++
				continue
			}
			report.AddDetail(fmt.Sprintf("Patient %s: Shipment %s tracked successfully in eCRF", p.PatientRef, shipmentID))
			patientsSuccess++
		}

		report.AddDetail(fmt.Sprintf("SHIPMENT %s updated: patients success: %d, errors: %d", shipmentID, patientsSuccess, patientsError))
		if patientsError > 0 {
			numErrors++
		} else {
			numSuccess++
		}
	}

	report.SetCode(reports.Resolve(numSuccess, numErrors))
	report.SetMessage(fmt.Sprintf(msgFormat, numSuccess, numErrors))
	return report
}

// trackShipmentForPatient ejecuta los pasos 1-3 del contrato de
// sincronización para un paciente. Si la task remota se creó en esta pasada
// y algo posterior falla, se intenta borrarla (compensación best-effort)
// antes de re-elevar el error original.
func (y *Synchronizer) trackShipmentForPatient(ctx context.Context, sh shipments.Shipment, p PendingPatient) (err error) {
	admission, err := y.findAdmission(ctx, p.PatientID)
	if err != nil {
		return err
	}

	task, created, err := y.findOrCreateTask(ctx, admission.ID, taskCodeShipment)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil && created {
			if delErr := y.remote.DeleteTask(ctx, task.ID); delErr != nil {
				// la compensación fallida solo se loguea: no debe enmascarar
				// el error original
				y.log.Warn("compensation delete failed", map[string]any{"task": task.ID, "err": delErr.Error()})
			}
		}
	}()

	patientAliquots, err := y.patientAliquots(ctx, sh.ID, p.PatientID)
	if err != nil {
		return err
	}
	if len(patientAliquots) == 0 {
		return fmt.Errorf("no aliquots of patient %s in shipment %s: %w", p.PatientRef, sh.ID, servicerr.ErrUnexpected)
	}

	answers := []ecrf.Question{
		ecrf.ScalarAnswer(itemShipmentRef, sh.Ref),
		ecrf.ScalarAnswer(itemOrigin, sh.SentFromID),
		ecrf.ScalarAnswer(itemDestination, sh.SentToID),
	}
	if sh.SendDate != nil {
		answers = append(answers, ecrf.ScalarAnswer(itemSendDate, sh.SendDate.Format(remoteDateLayout)))
	}
	answers = append(answers, aliquotRows(patientAliquots)...)
	answers = append(answers, sampleTypeStatuses(patientAliquots)...)

	if err = y.writeForm(ctx, task.ID, formCodeShipment, answers); err != nil {
		return err
	}

	ids := aliquotIDs(patientAliquots)
	if err = y.ships.MarkTracked(ctx, shipments.TrackShipment, sh.ID, task.ID, ids); err != nil {
		return err
	}
	return nil
}

func (y *Synchronizer) trackReceptionForPatient(ctx context.Context, sh shipments.Shipment, p PendingPatient) (err error) {
	// la task que trackeó el envío localiza la admission del paciente
	shipmentTask, err := y.remote.Task(ctx, p.TrackingTaskID)
	if err != nil {
		return err
	}

	task, created, err := y.findOrCreateTask(ctx, shipmentTask.AdmissionID, taskCodeReception)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil && created {
			if delErr := y.remote.DeleteTask(ctx, task.ID); delErr != nil {
				y.log.Warn("compensation delete failed", map[string]any{"task": task.ID, "err": delErr.Error()})
			}
		}
	}()

	patientAliquots, err := y.patientAliquots(ctx, sh.ID, p.PatientID)
	if err != nil {
		return err
	}
	if len(patientAliquots) == 0 {
		return fmt.Errorf("no aliquots of patient %s in shipment %s: %w", p.PatientRef, sh.ID, servicerr.ErrUnexpected)
	}

	answers := []ecrf.Question{
		ecrf.ScalarAnswer(itemShipmentRef, sh.Ref),
		ecrf.ScalarAnswer(itemReceiver, sh.Receiver),
	}
	if sh.ReceptionDate != nil {
		answers = append(answers, ecrf.ScalarAnswer(itemReceptionDate, sh.ReceptionDate.Format(remoteDateLayout)))
	}
	if sh.ReceptionStatus != "" {
		answers = append(answers, ecrf.OptionAnswer(itemRecStatus, sh.ReceptionStatus))
	}
	if sh.ReceptionComments != "" {
		answers = append(answers, ecrf.ScalarAnswer(itemRecComments, sh.ReceptionComments))
	}
	answers = append(answers, aliquotRows(patientAliquots)...)
	answers = append(answers, sampleTypeStatuses(patientAliquots)...)

	if err = y.writeForm(ctx, task.ID, formCodeReception, answers); err != nil {
		return err
	}

	ids := aliquotIDs(patientAliquots)
	if err = y.ships.MarkTracked(ctx, shipments.TrackReception, sh.ID, task.ID, ids); err != nil {
		return err
	}
	return nil
}

// findAdmission busca la admission del paciente dentro del programa
// configurado.
func (y *Synchronizer) findAdmission(ctx context.Context, patientID string) (ecrf.Admission, error) {
	admissions, err := y.remote.Admissions(ctx, patientID)
	if err != nil {
		return ecrf.Admission{}, err
	}
	for _, adm := range admissions {
		if adm.ProgramCode == y.programCode {
			return adm, nil
		}
	}
	return ecrf.Admission{}, fmt.Errorf("no admission of patient %s in program %s: %w", patientID, y.programCode, servicerr.ErrNotFound)
}

// findOrCreateTask devuelve la task con ese código, creándola si no existe.
// created indica si la creó esta invocación (y por tanto si procede
// compensar al fallar).
func (y *Synchronizer) findOrCreateTask(ctx context.Context, admissionID, taskCode string) (ecrf.Task, bool, error) {
	tasks, err := y.remote.TasksByCode(ctx, admissionID, taskCode)
	if err != nil {
		return ecrf.Task{}, false, err
	}
	if len(tasks) > 0 {
		return tasks[0], false, nil
	}

	task, err := y.remote.InsertTask(ctx, admissionID, taskCode)
	if err != nil {
		return ecrf.Task{}, false, err
	}
	return task, true, nil
}

func (y *Synchronizer) writeForm(ctx context.Context, taskID, formCode string, answers []ecrf.Question) error {
	form, err := y.remote.FindForm(ctx, taskID, formCode)
	if err != nil {
		if !errors.Is(err, ecrf.ErrNotFound) {
			return err
		}
		form, err = y.remote.InsertForm(ctx, taskID, formCode)
		if err != nil {
			return err
		}
	}
	return y.remote.SetFormAnswers(ctx, form.ID, answers, true)
}

// patientAliquots carga las filas del ledger de los aliquots del envío que
// pertenecen al paciente. Se resuelve vía join (no vía ShipmentID del
// ledger) porque tras la recepción los aliquots ya no apuntan al envío.
func (y *Synchronizer) patientAliquots(ctx context.Context, shipmentID, patientID string) ([]aliquots.Aliquot, error) {
	joins, err := y.ships.Aliquots(ctx, shipmentID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(joins))
	for _, j := range joins {
		ids = append(ids, j.AliquotID)
	}

	rows, err := y.ledger.FindByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := make([]aliquots.Aliquot, 0, len(rows))
	for _, a := range rows {
		if a.PatientID == patientID {
			out = append(out, a)
		}
	}
	return out, nil
}

// aliquotRows construye las filas del item ARRAY con un aliquot por fila.
func aliquotRows(rows []aliquots.Aliquot) []ecrf.Question {
	out := make([]ecrf.Question, 0, len(rows)*3)
	for i, a := range rows {
		row := i + 1
		out = append(out,
			ecrf.ScalarAnswer(itemAliquotID, a.ID).InRow(arrayAliquots, row),
			ecrf.OptionAnswer(itemSampleType, string(a.SampleType)).InRow(arrayAliquots, row),
		)
		if a.Condition != "" {
			out = append(out, ecrf.OptionAnswer(itemAliquotCond, a.Condition).InRow(arrayAliquots, row))
		}
	}
	return out
}

// sampleTypeStatuses emite una respuesta de estado por cada tipo de muestra
// presente. Si algún aliquot del tipo quedó rechazado, domina ese estado.
func sampleTypeStatuses(rows []aliquots.Aliquot) []ecrf.Question {
	worst := make(map[aliquots.SampleType]aliquots.Status)
	for _, a := range rows {
		if cur, ok := worst[a.SampleType]; !ok || a.Status > cur {
			worst[a.SampleType] = a.Status
		}
	}

	out := make([]ecrf.Question, 0, len(worst))
	for _, t := range aliquots.SampleTypes() {
		st, ok := worst[t]
		if !ok {
			continue
		}
		out = append(out, ecrf.OptionAnswer(string(t)+"_STATUS", fmt.Sprintf("%d", int(st))))
	}
	return out
}

func aliquotIDs(rows []aliquots.Aliquot) []string {
	ids := make([]string, 0, len(rows))
	for _, a := range rows {
		ids = append(ids, a.ID)
	}
	return ids
}
