package shipments

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"shipment-control/internal/domain/servicerr"
)

// Las fechas de la API viajan como "YYYY-MM-DD hh:mm:ss", el formato que
// usan los clientes del servicio.
const apiDateLayout = "2006-01-02 15:04:05"

func RegisterRoutes(r chi.Router, svc *Service) {
	r.Route("/shipments", func(sr chi.Router) {
		sr.Post("/", createShipmentHandler(svc))
		sr.Get("/", listShipmentsHandler(svc))

		sr.Get("/{shipmentID}", getShipmentHandler(svc))
		sr.Patch("/{shipmentID}", updateShipmentHandler(svc))
		sr.Delete("/{shipmentID}", deleteShipmentHandler(svc))

		sr.Post("/{shipmentID}/send", sendShipmentHandler(svc))
		sr.Post("/{shipmentID}/reception/start", startReceptionHandler(svc))
		sr.Post("/{shipmentID}/reception/finish", finishReceptionHandler(svc))

		sr.Post("/{shipmentID}/aliquots", addAliquotHandler(svc))
		sr.Delete("/{shipmentID}/aliquots/{aliquotID}", removeAliquotHandler(svc))
		sr.Put("/{shipmentID}/aliquots/{aliquotID}/condition", setConditionHandler(svc))
	})
}

type createShipmentRequest struct {
	Ref      string `json:"ref"`
	SentFrom string `json:"sent_from"`
	SentTo   string `json:"sent_to"`
	SenderID string `json:"sender_id"`
}

type updateShipmentRequest struct {
	// Punteros para PATCH real: nil = no tocar.
	Ref      *string `json:"ref"`
	SentFrom *string `json:"sent_from"`
	SentTo   *string `json:"sent_to"`
	SendDate *string `json:"send_date"`

	ReceiverID        *string `json:"receiver_id"`
	ReceptionDate     *string `json:"reception_date"`
	ReceptionStatus   *string `json:"reception_status"`
	ReceptionComments *string `json:"reception_comments"`
}

type sendShipmentRequest struct {
	SenderID string `json:"sender_id"`
	SendDate string `json:"send_date"`
}

type finishReceptionRequest struct {
	ReceiverID        string `json:"receiver_id"`
	ReceptionDate     string `json:"reception_date"`
	ReceptionStatus   string `json:"reception_status"`
	ReceptionComments string `json:"reception_comments"`
}

type addAliquotRequest struct {
	AliquotID string `json:"aliquot_id"`
}

type setConditionRequest struct {
	Condition string `json:"condition"`
}

type shipmentResponse struct {
	ID     string `json:"id"`
	Ref    string `json:"ref"`
	Status string `json:"status"`

	SentFromID string `json:"sent_from_id"`
	SentFrom   string `json:"sent_from,omitempty"`
	SentToID   string `json:"sent_to_id,omitempty"`
	SentTo     string `json:"sent_to,omitempty"`

	SenderID string     `json:"sender_id,omitempty"`
	Sender   string     `json:"sender,omitempty"`
	SendDate *time.Time `json:"send_date,omitempty"`

	ReceiverID        string     `json:"receiver_id,omitempty"`
	Receiver          string     `json:"receiver,omitempty"`
	ReceptionDate     *time.Time `json:"reception_date,omitempty"`
	ReceptionStatus   string     `json:"reception_status,omitempty"`
	ReceptionComments string     `json:"reception_comments,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type shippedAliquotResponse struct {
	AliquotID       string `json:"aliquot_id"`
	Condition       string `json:"condition,omitempty"`
	ShipmentTaskID  string `json:"shipment_task_id,omitempty"`
	ReceptionTaskID string `json:"reception_task_id,omitempty"`
}

type shipmentDetailResponse struct {
	shipmentResponse
	Aliquots []shippedAliquotResponse `json:"aliquots"`
}

type pageResponse struct {
	Rows  any `json:"rows"`
	Total int `json:"total"`
}

func toShipmentResponse(s Shipment) shipmentResponse {
	return shipmentResponse{
		ID:                s.ID,
		Ref:               s.Ref,
		Status:            s.Status.String(),
		SentFromID:        s.SentFromID,
		SentFrom:          s.SentFrom,
		SentToID:          s.SentToID,
		SentTo:            s.SentTo,
		SenderID:          s.SenderID,
		Sender:            s.Sender,
		SendDate:          s.SendDate,
		ReceiverID:        s.ReceiverID,
		Receiver:          s.Receiver,
		ReceptionDate:     s.ReceptionDate,
		ReceptionStatus:   s.ReceptionStatus,
		ReceptionComments: s.ReceptionComments,
		CreatedAt:         s.CreatedAt,
		UpdatedAt:         s.UpdatedAt,
	}
}

func createShipmentHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createShipmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, fmt.Errorf("invalid json: %w", servicerr.ErrInvalidFormat))
			return
		}

		sh, err := svc.Create(r.Context(), CreateInput{
			Ref:      req.Ref,
			SentFrom: req.SentFrom,
			SentTo:   req.SentTo,
			SenderID: req.SenderID,
		})
		if err != nil {
			writeError(w, err)
			return
		}
		writeData(w, http.StatusCreated, toShipmentResponse(sh))
	}
}

func listShipmentsHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		f := ListFilter{
			ActiveLocationID: q.Get("active_location"),
			Ref:              q.Get("ref"),
			SentFromID:       q.Get("sent_from"),
			SentToID:         q.Get("sent_to"),
			Page:             intParam(q.Get("page")),
			PageSize:         intParam(q.Get("page_size")),
		}

		rows, total, err := svc.List(r.Context(), f)
		if err != nil {
			writeError(w, err)
			return
		}
		out := make([]shipmentResponse, 0, len(rows))
		for _, s := range rows {
			out = append(out, toShipmentResponse(s))
		}
		writeData(w, http.StatusOK, pageResponse{Rows: out, Total: total})
	}
}

func getShipmentHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "shipmentID")
		sh, err := svc.GetByID(r.Context(), id)
		if err != nil {
			writeError(w, err)
			return
		}
		joins, err := svc.Aliquots(r.Context(), id)
		if err != nil {
			writeError(w, err)
			return
		}

		detail := shipmentDetailResponse{
			shipmentResponse: toShipmentResponse(sh),
			Aliquots:         make([]shippedAliquotResponse, 0, len(joins)),
		}
		for _, j := range joins {
			detail.Aliquots = append(detail.Aliquots, shippedAliquotResponse{
				AliquotID:       j.AliquotID,
				Condition:       j.Condition,
				ShipmentTaskID:  j.ShipmentTaskID,
				ReceptionTaskID: j.ReceptionTaskID,
			})
		}
		writeData(w, http.StatusOK, detail)
	}
}

func updateShipmentHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req updateShipmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, fmt.Errorf("invalid json: %w", servicerr.ErrInvalidFormat))
			return
		}

		sendDate, err := parseDatePtr(req.SendDate)
		if err != nil {
			writeError(w, err)
			return
		}
		receptionDate, err := parseDatePtr(req.ReceptionDate)
		if err != nil {
			writeError(w, err)
			return
		}

		sh, err := svc.Update(r.Context(), chi.URLParam(r, "shipmentID"), UpdateInput{
			Ref:               req.Ref,
			SentFrom:          req.SentFrom,
			SentTo:            req.SentTo,
			SendDate:          sendDate,
			ReceiverID:        req.ReceiverID,
			ReceptionDate:     receptionDate,
			ReceptionStatus:   req.ReceptionStatus,
			ReceptionComments: req.ReceptionComments,
		})
		if err != nil {
			writeError(w, err)
			return
		}
		writeData(w, http.StatusOK, toShipmentResponse(sh))
	}
}

func deleteShipmentHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := svc.Delete(r.Context(), chi.URLParam(r, "shipmentID")); err != nil {
			writeError(w, err)
			return
		}
		writeData(w, http.StatusOK, map[string]string{"status": "deleted"})
	}
}

func sendShipmentHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req sendShipmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, fmt.Errorf("invalid json: %w", servicerr.ErrInvalidFormat))
			return
		}

		var sendDate *time.Time
		if strings.TrimSpace(req.SendDate) != "" {
			t, err := parseDate(req.SendDate)
			if err != nil {
				writeError(w, err)
				return
			}
			sendDate = &t
		}

		sh, err := svc.Send(r.Context(), chi.URLParam(r, "shipmentID"), SendInput{
			SenderID: req.SenderID,
			SendDate: sendDate,
		})
		if err != nil {
			writeError(w, err)
			return
		}
		writeData(w, http.StatusOK, toShipmentResponse(sh))
	}
}

func startReceptionHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sh, err := svc.StartReception(r.Context(), chi.URLParam(r, "shipmentID"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeData(w, http.StatusOK, toShipmentResponse(sh))
	}
}

func finishReceptionHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req finishReceptionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, fmt.Errorf("invalid json: %w", servicerr.ErrInvalidFormat))
			return
		}

		var receptionDate *time.Time
		if strings.TrimSpace(req.ReceptionDate) != "" {
			t, err := parseDate(req.ReceptionDate)
			if err != nil {
				writeError(w, err)
				return
			}
			receptionDate = &t
		}

		sh, err := svc.FinishReception(r.Context(), chi.URLParam(r, "shipmentID"), ReceptionInput{
			ReceiverID:        req.ReceiverID,
			ReceptionDate:     receptionDate,
			ReceptionStatus:   req.ReceptionStatus,
			ReceptionComments: req.ReceptionComments,
		})
		if err != nil {
			writeError(w, err)
			return
		}
		writeData(w, http.StatusOK, toShipmentResponse(sh))
	}
}

func addAliquotHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req addAliquotRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, fmt.Errorf("invalid json: %w", servicerr.ErrInvalidFormat))
			return
		}
		if err := svc.AddAliquot(r.Context(), chi.URLParam(r, "shipmentID"), req.AliquotID); err != nil {
			writeError(w, err)
			return
		}
		writeData(w, http.StatusCreated, map[string]string{"status": "added"})
	}
}

func removeAliquotHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := svc.RemoveAliquot(r.Context(), chi.URLParam(r, "shipmentID"), chi.URLParam(r, "aliquotID"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeData(w, http.StatusOK, map[string]string{"status": "removed"})
	}
}

func setConditionHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req setConditionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, fmt.Errorf("invalid json: %w", servicerr.ErrInvalidFormat))
			return
		}
		err := svc.SetAliquotCondition(r.Context(), chi.URLParam(r, "shipmentID"), chi.URLParam(r, "aliquotID"), req.Condition)
		if err != nil {
			writeError(w, err)
			return
		}
		writeData(w, http.StatusOK, map[string]string{"status": "updated"})
	}
}

func parseDate(raw string) (time.Time, error) {
	t, err := time.Parse(apiDateLayout, strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}, fmt.Errorf("date %q must be YYYY-MM-DD hh:mm:ss: %w", raw, servicerr.ErrInvalidFormat)
	}
	return t, nil
}

func parseDatePtr(raw *string) (*time.Time, error) {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return nil, nil
	}
	t, err := parseDate(*raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func intParam(raw string) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// Envelope {data, error} de todas las respuestas de la API. Los helpers
// están duplicados a propósito en los handlers de cada módulo, igual que en
// el resto de dominios.
type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type envelope struct {
	Data  any       `json:"data"`
	Error *apiError `json:"error"`
}

func writeData(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Data: v})
}

func writeError(w http.ResponseWriter, err error) {
	code, status := "UNEXPECTED_ERROR", http.StatusInternalServerError
	switch {
	case errors.Is(err, servicerr.ErrNotFound):
		code, status = "NOT_FOUND", http.StatusNotFound
	case errors.Is(err, servicerr.ErrInvalidStatus):
		code, status = "INVALID_STATUS", http.StatusConflict
	case errors.Is(err, servicerr.ErrDataMissing):
		code, status = "DATA_MISSING", http.StatusBadRequest
	case errors.Is(err, servicerr.ErrInvalidFormat):
		code, status = "INVALID_DATA_FORMAT", http.StatusBadRequest
	case errors.Is(err, servicerr.ErrAmbiguous):
		code, status = "AMBIGUOUS", http.StatusConflict
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Error: &apiError{Code: code, Message: err.Error()}})
}
