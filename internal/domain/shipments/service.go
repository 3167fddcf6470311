package shipments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"shipment-control/internal/domain/aliquots"
	"shipment-control/internal/domain/servicerr"
)

// UserDirectory resuelve el nombre completo de un usuario de la plataforma.
// La resolución es best-effort: un fallo nunca aborta la transición.
type UserDirectory interface {
	User(ctx context.Context, userID string) (string, error)
}

// Service es la máquina de estados de Shipment. Es dueña de SHIPMENTS y
// SHIPPED_ALIQUOTS, pero muta los aliquots siempre a través del ledger para
// que cada cambio quede auditado.
type Service struct {
	repo   Repository
	ledger *aliquots.Service
	users  UserDirectory // puede ser nil
	now    func() time.Time
}

func NewService(repo Repository, ledger *aliquots.Service, users UserDirectory) *Service {
	return &Service{
		repo:   repo,
		ledger: ledger,
		users:  users,
		now:    time.Now,
	}
}

type CreateInput struct {
	Ref      string
	SentFrom string
	SentTo   string
	SenderID string
	Sender   string
}

func (s *Service) Create(ctx context.Context, in CreateInput) (Shipment, error) {
	if strings.TrimSpace(in.SentFrom) == "" {
		return Shipment{}, fmt.Errorf("origin location: %w", servicerr.ErrDataMissing)
	}
	if in.SentFrom == in.SentTo {
		return Shipment{}, fmt.Errorf("shipment cannot be sent to the same location: %w", servicerr.ErrInvalidFormat)
	}

	now := s.now()
	sh := Shipment{
		ID:         uuid.NewString(),
		Ref:        strings.TrimSpace(in.Ref),
		Status:     StatusPreparing,
		SentFromID: in.SentFrom,
		SentToID:   in.SentTo,
		SenderID:   strings.TrimSpace(in.SenderID),
		Sender:     strings.TrimSpace(in.Sender),
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := s.repo.Create(ctx, sh); err != nil {
		return Shipment{}, err
	}
	return sh, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (Shipment, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context, f ListFilter) ([]Shipment, int, error) {
	return s.repo.List(ctx, f)
}

// Update aplica los campos editables admitidos por el estado actual:
// en PREPARING solo los campos de preparación (ref, origen, destino, fecha de
// envío); en RECEIVING solo los de recepción. Cualquier otro estado rechaza
// la actualización. Los campos fuera de la whitelist del estado se descartan.
func (s *Service) Update(ctx context.Context, id string, in UpdateInput) (Shipment, error) {
	sh, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return Shipment{}, err
	}

	switch sh.Status {
	case StatusPreparing:
		in = UpdateInput{Ref: in.Ref, SentFrom: in.SentFrom, SentTo: in.SentTo, SendDate: in.SendDate}
	case StatusReceiving:
		in = UpdateInput{
			ReceiverID:        in.ReceiverID,
			ReceptionDate:     in.ReceptionDate,
			ReceptionStatus:   in.ReceptionStatus,
			ReceptionComments: in.ReceptionComments,
		}
	default:
		return Shipment{}, fmt.Errorf("shipment %s is not in a status that allows updates: %w", id, servicerr.ErrInvalidStatus)
	}

	if s.applyUpdate(&sh, in) {
		sh.UpdatedAt = s.now()
		if err := s.repo.Update(ctx, sh); err != nil {
			return Shipment{}, err
		}
	}
	return sh, nil
}

// applyUpdate copia los campos informados registrando si alguno cambió de
// verdad: un valor igual al almacenado no cuenta como modificación y no
// genera escritura ni timestamp nuevo.
func (s *Service) applyUpdate(sh *Shipment, in UpdateInput) bool {
	changed := false

	setStr := func(dst *string, v *string) {
		if v != nil && *dst != strings.TrimSpace(*v) {
			*dst = strings.TrimSpace(*v)
			changed = true
		}
	}
	setTime := func(dst **time.Time, v *time.Time) {
		if v == nil {
			return
		}
		if *dst == nil || !(*dst).Equal(*v) {
			t := *v
			*dst = &t
			changed = true
		}
	}

	setStr(&sh.Ref, in.Ref)
	setStr(&sh.SentFromID, in.SentFrom)
	setStr(&sh.SentToID, in.SentTo)
	setTime(&sh.SendDate, in.SendDate)

	setStr(&sh.ReceiverID, in.ReceiverID)
	setTime(&sh.ReceptionDate, in.ReceptionDate)
	setStr(&sh.ReceptionStatus, in.ReceptionStatus)
	setStr(&sh.ReceptionComments, in.ReceptionComments)

	return changed
}

type SendInput struct {
	SendDate *time.Time
	SenderID string
}

// Send marca el envío como SHIPPED. Requiere al menos un aliquot asignado y
// ref, emisor y destino informados. Cada aliquot pasa a IN_TRANSIT con la
// fecha de envío como timestamp de negocio, auditado como SHIPPED.
func (s *Service) Send(ctx context.Context, id string, in SendInput) (Shipment, error) {
	sh, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return Shipment{}, err
	}
	if sh.Status != StatusPreparing {
		return Shipment{}, fmt.Errorf("shipment %s cannot be sent from status %s: %w", id, sh.Status, servicerr.ErrInvalidStatus)
	}

	assigned, err := s.ledger.ListByShipment(ctx, id)
	if err != nil {
		return Shipment{}, err
	}
	if len(assigned) == 0 {
		return Shipment{}, fmt.Errorf("a shipment can't be sent if it doesn't contain aliquots: %w", servicerr.ErrDataMissing)
	}

	sendDate := s.now()
	if in.SendDate != nil {
		sendDate = *in.SendDate
	}

	if senderID := strings.TrimSpace(in.SenderID); senderID != "" {
		sh.SenderID = senderID
	}
	if s.users != nil && sh.SenderID != "" {
		if name, err := s.users.User(ctx, sh.SenderID); err == nil {
			sh.Sender = name
		}
	}

	if sh.Ref == "" {
		return Shipment{}, fmt.Errorf("shipment reference is mandatory for sending: %w", servicerr.ErrDataMissing)
	}
	if sh.SenderID == "" {
		return Shipment{}, fmt.Errorf("sender id is mandatory for sending: %w", servicerr.ErrDataMissing)
	}
	if sh.SentToID == "" {
		return Shipment{}, fmt.Errorf("destination is mandatory for sending: %w", servicerr.ErrDataMissing)
	}

	sh.Status = StatusShipped
	sh.SendDate = &sendDate
	sh.UpdatedAt = s.now()
	if err := s.repo.Update(ctx, sh); err != nil {
		return Shipment{}, err
	}

	inTransit := aliquots.StatusInTransit
	for _, a := range assigned {
		_, err := s.ledger.Upsert(ctx, aliquots.Row{
			ID:        a.ID,
			Status:    &inTransit,
			UpdatedAt: &sendDate,
		}, aliquots.ActionShipped)
		if err != nil {
			return Shipment{}, err
		}
	}

	return sh, nil
}

// StartReception pasa el envío de SHIPPED a RECEIVING. Es un cambio de
// estado puro, sin efectos sobre los aliquots.
func (s *Service) StartReception(ctx context.Context, id string) (Shipment, error) {
	sh, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return Shipment{}, err
	}
	if sh.Status != StatusShipped {
		return Shipment{}, fmt.Errorf("shipment %s cannot start reception from status %s: %w", id, sh.Status, servicerr.ErrInvalidStatus)
	}

	sh.Status = StatusReceiving
	sh.UpdatedAt = s.now()
	if err := s.repo.Update(ctx, sh); err != nil {
		return Shipment{}, err
	}
	return sh, nil
}

type ReceptionInput struct {
	ReceptionDate     *time.Time
	ReceiverID        string
	ReceptionStatus   string
	ReceptionComments string
}

// FinishReception cierra la recepción (RECEIVING → RECEIVED). RECEIVED es
// terminal: invocarla de nuevo devuelve INVALID_STATUS. Cada aliquot del
// envío pasa al destino; si su fila del join tiene condition informada queda
// REJECTED con esa condition, si no AVAILABLE. En ambos casos se limpia la
// pertenencia al envío y se audita como RECEIVED.
func (s *Service) FinishReception(ctx context.Context, id string, in ReceptionInput) (Shipment, error) {
	sh, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return Shipment{}, err
	}
	if sh.Status != StatusReceiving {
		return Shipment{}, fmt.Errorf("shipment %s cannot finish reception from status %s: %w", id, sh.Status, servicerr.ErrInvalidStatus)
	}

	receiver := strings.TrimSpace(in.ReceiverID)
	if receiver != "" {
		sh.ReceiverID = receiver
		sh.Receiver = receiver // fallback si no hay directorio de usuarios
		if s.users != nil {
			if name, err := s.users.User(ctx, receiver); err == nil {
				sh.Receiver = name
			}
		}
	}
	if in.ReceptionDate != nil {
		t := *in.ReceptionDate
		sh.ReceptionDate = &t
	}
	if v := strings.TrimSpace(in.ReceptionStatus); v != "" {
		sh.ReceptionStatus = v
	}
	if v := strings.TrimSpace(in.ReceptionComments); v != "" {
		sh.ReceptionComments = v
	}

	if sh.ReceptionDate == nil {
		return Shipment{}, fmt.Errorf("reception datetime is mandatory for receiving: %w", servicerr.ErrDataMissing)
	}
	if sh.ReceiverID == "" {
		return Shipment{}, fmt.Errorf("receiver id is mandatory for receiving: %w", servicerr.ErrDataMissing)
	}
	if sh.ReceptionStatus == "" {
		return Shipment{}, fmt.Errorf("reception status is mandatory for receiving: %w", servicerr.ErrDataMissing)
	}

	sh.Status = StatusReceived
	sh.UpdatedAt = s.now()
	if err := s.repo.Update(ctx, sh); err != nil {
		return Shipment{}, err
	}

	joins, err := s.repo.ListAliquots(ctx, id)
	if err != nil {
		return Shipment{}, err
	}

	receptionDate := *sh.ReceptionDate
	for _, j := range joins {
		status := aliquots.StatusAvailable
		condition := aliquots.OptNull()
		if j.Condition != "" {
			status = aliquots.StatusRejected
			condition = aliquots.OptOf(j.Condition)
		}

		_, err := s.ledger.Upsert(ctx, aliquots.Row{
			ID:         j.AliquotID,
			LocationID: &sh.SentToID,
			Status:     &status,
			Condition:  condition,
			ShipmentID: aliquots.OptNull(),
			UpdatedAt:  &receptionDate,
		}, aliquots.ActionReceived)
		if err != nil {
			return Shipment{}, err
		}
	}

	return sh, nil
}

// Delete elimina un envío que todavía está en PREPARING: retira las filas del
// join, devuelve cada aliquot a AVAILABLE sin envío asociado y borra la fila
// del envío. En cualquier otro estado la historia se conserva para siempre.
func (s *Service) Delete(ctx context.Context, id string) error {
	sh, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if sh.Status != StatusPreparing {
		return fmt.Errorf("shipment %s can't be deleted because it is not in 'Preparing' status: %w", id, servicerr.ErrInvalidStatus)
	}

	joins, err := s.repo.ListAliquots(ctx, id)
	if err != nil {
		return err
	}

	available := aliquots.StatusAvailable
	for _, j := range joins {
		if err := s.repo.RemoveAliquot(ctx, id, j.AliquotID); err != nil {
			return err
		}
		_, err := s.ledger.Upsert(ctx, aliquots.Row{
			ID:         j.AliquotID,
			Status:     &available,
			ShipmentID: aliquots.OptNull(),
		}, aliquots.ActionNone)
		if err != nil {
			return err
		}
	}

	return s.repo.Delete(ctx, id)
}

// AddAliquot asigna un aliquot a un envío en preparación. Si el aliquot no
// existía todavía en el ledger se crea en ese momento (primera observación).
func (s *Service) AddAliquot(ctx context.Context, shipmentID, aliquotID string) error {
	sh, err := s.repo.GetByID(ctx, shipmentID)
	if err != nil {
		return err
	}
	if sh.Status != StatusPreparing {
		return fmt.Errorf("aliquots can only be added while preparing: %w", servicerr.ErrInvalidStatus)
	}

	if err := s.repo.AddAliquot(ctx, ShippedAliquot{ShipmentID: shipmentID, AliquotID: aliquotID}); err != nil {
		return err
	}

	inTransit := aliquots.StatusInTransit
	action := aliquots.ActionNone
	if _, err := s.ledger.Get(ctx, aliquotID); errors.Is(err, servicerr.ErrNotFound) {
		action = aliquots.ActionCreated
	} else if err != nil {
		return err
	}

	_, err = s.ledger.Upsert(ctx, aliquots.Row{
		ID:         aliquotID,
		Status:     &inTransit,
		ShipmentID: aliquots.OptOf(shipmentID),
	}, action)
	return err
}

// RemoveAliquot desasigna un aliquot de un envío en preparación y lo
// devuelve a AVAILABLE.
func (s *Service) RemoveAliquot(ctx context.Context, shipmentID, aliquotID string) error {
	if _, err := s.repo.GetByID(ctx, shipmentID); err != nil {
		return err
	}

	if err := s.repo.RemoveAliquot(ctx, shipmentID, aliquotID); err != nil {
		return err
	}

	available := aliquots.StatusAvailable
	_, err := s.ledger.Upsert(ctx, aliquots.Row{
		ID:         aliquotID,
		Status:     &available,
		ShipmentID: aliquots.OptNull(),
	}, aliquots.ActionNone)
	return err
}

// SetAliquotCondition anota en el join la condición reportada al recibir un
// aliquot concreto ("" = sin daño).
func (s *Service) SetAliquotCondition(ctx context.Context, shipmentID, aliquotID, condition string) error {
	if _, err := s.repo.GetByID(ctx, shipmentID); err != nil {
		return err
	}
	return s.repo.SetAliquotCondition(ctx, shipmentID, aliquotID, strings.TrimSpace(condition))
}

func (s *Service) Aliquots(ctx context.Context, shipmentID string) ([]ShippedAliquot, error) {
	return s.repo.ListAliquots(ctx, shipmentID)
}

// MarkTracked escribe el task id remoto confirmado en las filas del join de
// exactamente los aliquots indicados y audita cada uno como trackeado. Si
// alguno de los ids no pertenece al envío, la operación falla con NOT_FOUND
// nombrando los que faltan.
func (s *Service) MarkTracked(ctx context.Context, kind TrackKind, shipmentID, taskID string, aliquotIDs []string) error {
	if _, err := s.repo.GetByID(ctx, shipmentID); err != nil {
		return err
	}

	// la pertenencia se valida contra el join, no contra el ledger: tras la
	// recepción los aliquots ya no apuntan al envío
	joins, err := s.repo.ListAliquots(ctx, shipmentID)
	if err != nil {
		return err
	}
	member := make(map[string]bool, len(joins))
	for _, j := range joins {
		member[j.AliquotID] = true
	}
	notMember := make([]string, 0)
	for _, id := range aliquotIDs {
		if !member[id] {
			notMember = append(notMember, id)
		}
	}
	if len(notMember) > 0 {
		return fmt.Errorf("aliquots %s of shipment %s: %w", strings.Join(notMember, ", "), shipmentID, servicerr.ErrNotFound)
	}

	found, err := s.ledger.FindByIDs(ctx, aliquotIDs)
	if err != nil {
		return err
	}
	if len(found) != len(aliquotIDs) {
		missing := aliquots.MissingIDs(aliquotIDs, found)
		return fmt.Errorf("aliquots %s of shipment %s: %w", strings.Join(missing, ", "), shipmentID, servicerr.ErrNotFound)
	}

	var action aliquots.Action
	switch kind {
	case TrackShipment:
		action = aliquots.ActionShipmentTracked
	case TrackReception:
		action = aliquots.ActionReceptionTracked
	default:
		return fmt.Errorf("invalid tracked action %q: %w", kind, servicerr.ErrInvalidFormat)
	}

	if err := s.repo.SetTrackingTask(ctx, kind, shipmentID, taskID, aliquotIDs); err != nil {
		return err
	}

	for _, a := range found {
		_, err := s.ledger.Upsert(ctx, aliquots.Row{
			ID:     a.ID,
			TaskID: aliquots.OptOf(taskID),
		}, action)
		if err != nil {
			return err
		}
	}
	return nil
}
