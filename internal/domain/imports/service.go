package imports

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"shipment-control/internal/domain/aliquots"
	"shipment-control/internal/domain/reports"
	"shipment-control/internal/platform/logger"
	"shipment-control/internal/ports/ecrf"
)

// Códigos remotos de la task de procesado de sangre donde se registran los
// aliquots importados.
const (
	taskCodeBlood = "BLOOD_PROCESSING"
	formCodeBlood = "BLOOD_PROCESSING_FORM"

	itemSampleDate  = "SAMPLE_DATE"
	itemSampleStart = "SAMPLE_START_TIME"
	itemSampleEnd   = "SAMPLE_END_TIME"

	arrayBloodAliquots = "ALIQUOT_LIST"
	itemBloodAliquotID = "ALIQUOT_ID"
	itemBloodType      = "SAMPLE_TYPE"
)

type Config struct {
	RedCAPDir   string
	AliquotsDir string
	ProgramCode string
	TeamCode    string
	// RefPrefix es el prefijo de las referencias de participante que se
	// construyen desde el número de estudio del fichero.
	RefPrefix string
}

// Service ejecuta los dos imports de ficheros. Cada invocación reclama como
// mucho un fichero pendiente y devuelve un informe batch.
type Service struct {
	remote  ecrf.Client
	ledger  *aliquots.Service
	mapping *Mapping
	log     logger.Logger
	cfg     Config
	now     func() time.Time
}

func NewService(remote ecrf.Client, ledger *aliquots.Service, mapping *Mapping, cfg Config, log logger.Logger) *Service {
	return &Service{
		remote:  remote,
		ledger:  ledger,
		mapping: mapping,
		log:     log,
		cfg:     cfg,
		now:     time.Now,
	}
}

// ImportRedCAP procesa el primer fichero *.csv pendiente del directorio de
// RedCAP. El primer paciente que falla aborta el fichero, que queda como
// .processing para inspección manual: los datos de RedCAP llegan completos o
// no llegan.
func (s *Service) ImportRedCAP(ctx context.Context) *reports.Report {
	path, err := claimNextFile(s.cfg.RedCAPDir, "*.csv")
	if err != nil {
		return reports.New(reports.CodeError, err.Error())
	}
	if path == "" {
		return reports.New(reports.CodeIdle, "No RedCAP data files (*.csv) pending to import.")
	}

	file, err := os.Open(path)
	if err != nil {
		return reports.New(reports.CodeError, fmt.Sprintf("opening %s: %v", path, err))
	}
	patients, err := ParseRedCAP(file, s.cfg.RefPrefix, s.mapping)
	file.Close()
	if err != nil {
		return reports.New(reports.CodeError, fmt.Sprintf("loading RedCAP data from %s: %v", filepath.Base(path), err))
	}

	report := reports.New(reports.CodeIdle, "")
	syncer := newPatientSyncer(s.remote, s.mapping, s.cfg.ProgramCode, s.cfg.TeamCode, s.now)
	for _, rec := range patients {
		if err := syncer.sync(ctx, rec); err != nil {
			msg := fmt.Sprintf("Error importing RedCAP data for patient %s: %v", rec.Ref, err)
			report.SetCode(reports.CodeError)
			report.SetMessage(msg)
			report.AddDetail(fmt.Sprintf("Patient %s: ERROR", rec.Ref))
			s.log.Error(msg, nil)
			return report
		}
		s.log.Info(fmt.Sprintf("Patient %s: RedCAP data imported successfully.", rec.Ref), nil)
	}

	report.SetCode(reports.CodeSuccess)
	report.AddDetail(fmt.Sprintf("RedCAP data imported successfully. Total patients processed: %d", len(patients)))

	if err := finishFile(path); err != nil {
		s.log.Warn("could not remove processed file", map[string]any{"path": path, "err": err.Error()})
	}
	return report
}

// ImportAliquots procesa el primer fichero *.csv pendiente del directorio de
// aliquots. Cada extracción se procesa de forma aislada; si alguna falla, el
// fichero queda renombrado a .error para no reprocesarse.
func (s *Service) ImportAliquots(ctx context.Context) *reports.Report {
	path, err := claimNextFile(s.cfg.AliquotsDir, "*.csv")
	if err != nil {
		return reports.New(reports.CodeError, err.Error())
	}
	if path == "" {
		return reports.New(reports.CodeIdle, "No Aliquots data files (*.csv) pending to import.")
	}

	report := reports.New(reports.CodeIdle, "")
	report.AddDetail(fmt.Sprintf("Importing aliquots from file %s", filepath.Base(path)))

	file, err := os.Open(path)
	if err != nil {
		return reports.New(reports.CodeError, fmt.Sprintf("opening %s: %v", path, err))
	}
	samples, err := ParseAliquotFile(file)
	file.Close()
	if err != nil {
		report.SetCode(reports.CodeError)
		report.SetMessage(fmt.Sprintf("loading aliquots data from %s: %v", filepath.Base(path), err))
		if renameErr := failFile(path); renameErr != nil {
			s.log.Warn("could not rename failed file", map[string]any{"path": path, "err": renameErr.Error()})
		}
		return report
	}

	numErrors, numSuccessful, numSkipped := 0, 0, 0
	for _, sample := range samples {
		skipped, err := s.importSample(ctx, sample)
		switch {
		case err != nil:
			report.AddDetail(fmt.Sprintf("Sample %s: ERROR %v", sample.PatientRef, err))
			s.log.Error("sample import failed", map[string]any{"patient": sample.PatientRef, "err": err.Error()})
			numErrors++
		case skipped:
			report.AddDetail(fmt.Sprintf("Sample %s skipped. Aliquots already loaded (%s task exists and is closed)", sample.PatientRef, taskCodeBlood))
			numSkipped++
		default:
			report.AddDetail(fmt.Sprintf("Sample %s: Imported successfully.", sample.PatientRef))
			numSuccessful++
		}
	}

	if numErrors > 0 {
		report.SetCode(reports.CodeError)
		report.SetMessage(fmt.Sprintf("Aliquots import process finished. Errors: %d, Successful: %d, Skipped: %d, Total samples processed: %d",
			numErrors, numSuccessful, numSkipped, len(samples)))
		if err := failFile(path); err != nil {
			s.log.Warn("could not rename failed file", map[string]any{"path": path, "err": err.Error()})
		}
		return report
	}

	report.SetCode(reports.CodeSuccess)
	report.SetMessage(fmt.Sprintf("Aliquots import process finished successfully. Errors: %d, Successful: %d, Skipped: %d, Total samples processed: %d",
		numErrors, numSuccessful, numSkipped, len(samples)))
	if err := finishFile(path); err != nil {
		s.log.Warn("could not remove processed file", map[string]any{"path": path, "err": err.Error()})
	}
	return report
}

// importSample registra la extracción de un paciente: el form remoto de
// procesado de sangre y cada aliquot en el ledger. Devuelve skipped=true si
// los aliquots ya estaban cargados (task cerrada).
func (s *Service) importSample(ctx context.Context, sample SampleSet) (bool, error) {
	if sample.Err != nil {
		return false, sample.Err
	}
	if len(sample.Aliquots) == 0 {
		return false, errors.New("sample without aliquots")
	}

	patient, err := s.remote.FindPatient(ctx, sample.PatientRef)
	if err != nil {
		return false, fmt.Errorf("patient %s: %w", sample.PatientRef, err)
	}

	admissions, err := s.remote.Admissions(ctx, patient.ID)
	if err != nil {
		return false, err
	}
	var admissionID string
	for _, adm := range admissions {
		if adm.ProgramCode == s.cfg.ProgramCode {
			admissionID = adm.ID
			break
		}
	}
	if admissionID == "" {
		return false, fmt.Errorf("patient %s has no admission in program %s", sample.PatientRef, s.cfg.ProgramCode)
	}

	tasks, err := s.remote.TasksByCode(ctx, admissionID, taskCodeBlood)
	if err != nil {
		return false, err
	}
	var task ecrf.Task
	if len(tasks) > 0 {
		task = tasks[0]
		if task.Closed {
			return true, nil
		}
	} else {
		task, err = s.remote.InsertTask(ctx, admissionID, taskCodeBlood)
		if err != nil {
			return false, err
		}
	}

	form, err := s.remote.FindForm(ctx, task.ID, formCodeBlood)
	if errors.Is(err, ecrf.ErrNotFound) {
		form, err = s.remote.InsertForm(ctx, task.ID, formCodeBlood)
	}
	if err != nil {
		return false, err
	}

	answers := []ecrf.Question{
		ecrf.ScalarAnswer(itemSampleDate, sample.Date),
		ecrf.ScalarAnswer(itemSampleStart, sample.StartTime),
		ecrf.ScalarAnswer(itemSampleEnd, sample.EndTime),
	}
	for i, a := range sample.Aliquots {
		row := i + 1
		answers = append(answers,
			ecrf.ScalarAnswer(itemBloodAliquotID, a.ID).InRow(arrayBloodAliquots, row),
			ecrf.OptionAnswer(itemBloodType, string(a.Type)).InRow(arrayBloodAliquots, row),
		)
	}
	if err := s.remote.SetFormAnswers(ctx, form.ID, answers, true); err != nil {
		return false, err
	}

	for _, a := range sample.Aliquots {
		sampleType := a.Type
		_, err := s.ledger.Upsert(ctx, aliquots.Row{
			ID:         a.ID,
			PatientID:  &patient.ID,
			PatientRef: &sample.PatientRef,
			SampleType: &sampleType,
			LocationID: &sample.LocationID,
			TaskID:     aliquots.OptOf(task.ID),
		}, aliquots.ActionCreated)
		if err != nil {
			return false, err
		}
	}
	return false, nil
}
