package aliquots

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"shipment-control/internal/domain/servicerr"
)

func RegisterRoutes(r chi.Router, svc *Service) {
	r.Route("/aliquots", func(ar chi.Router) {
		ar.Get("/shippable", listShippableHandler(svc))
		ar.Get("/{aliquotID}", getAliquotHandler(svc))
		ar.Get("/{aliquotID}/history", historyHandler(svc))
	})
}

type aliquotResponse struct {
	ID         string    `json:"id"`
	PatientID  string    `json:"patient_id,omitempty"`
	PatientRef string    `json:"patient_ref,omitempty"`
	SampleType string    `json:"sample_type,omitempty"`
	LocationID string    `json:"location_id,omitempty"`
	Status     string    `json:"status"`
	Condition  string    `json:"condition,omitempty"`
	TaskID     string    `json:"task_id,omitempty"`
	ShipmentID string    `json:"shipment_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func toAliquotResponse(a Aliquot) aliquotResponse {
	return aliquotResponse{
		ID:         a.ID,
		PatientID:  a.PatientID,
		PatientRef: a.PatientRef,
		SampleType: string(a.SampleType),
		LocationID: a.LocationID,
		Status:     a.Status.String(),
		Condition:  a.Condition,
		TaskID:     a.TaskID,
		ShipmentID: a.ShipmentID,
		CreatedAt:  a.CreatedAt,
		UpdatedAt:  a.UpdatedAt,
	}
}

type historyResponse struct {
	ID         string    `json:"id"`
	AliquotID  string    `json:"aliquot_id"`
	TaskID     string    `json:"task_id,omitempty"`
	Action     string    `json:"action"`
	LocationID string    `json:"location_id,omitempty"`
	Status     string    `json:"status"`
	Condition  string    `json:"condition,omitempty"`
	ShipmentID string    `json:"shipment_id,omitempty"`
	UpdatedAt  time.Time `json:"updated_at"`
	RecordedAt time.Time `json:"recorded_at"`
}

type pageResponse struct {
	Rows  any `json:"rows"`
	Total int `json:"total"`
}

func getAliquotHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a, err := svc.Get(r.Context(), chi.URLParam(r, "aliquotID"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeData(w, http.StatusOK, toAliquotResponse(a))
	}
}

func historyHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		recs, err := svc.History(r.Context(), chi.URLParam(r, "aliquotID"))
		if err != nil {
			writeError(w, err)
			return
		}
		out := make([]historyResponse, 0, len(recs))
		for _, rec := range recs {
			out = append(out, historyResponse{
				ID:         rec.ID,
				AliquotID:  rec.AliquotID,
				TaskID:     rec.TaskID,
				Action:     string(rec.Action),
				LocationID: rec.LocationID,
				Status:     rec.Status.String(),
				Condition:  rec.Condition,
				ShipmentID: rec.ShipmentID,
				UpdatedAt:  rec.UpdatedAt,
				RecordedAt: rec.RecordedAt,
			})
		}
		writeData(w, http.StatusOK, out)
	}
}

func listShippableHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		f := ShippableFilter{
			LocationID: q.Get("location_id"),
			PatientRef: q.Get("patient_ref"),
			SampleType: q.Get("sample_type"),
			Page:       intParam(q.Get("page")),
			PageSize:   intParam(q.Get("page_size")),
		}
		if raw := strings.TrimSpace(q.Get("exclude")); raw != "" {
			f.ExcludeIDs = strings.Split(raw, ",")
		}

		rows, total, err := svc.ListShippable(r.Context(), f)
		if err != nil {
			writeError(w, err)
			return
		}
		out := make([]aliquotResponse, 0, len(rows))
		for _, a := range rows {
			out = append(out, toAliquotResponse(a))
		}
		writeData(w, http.StatusOK, pageResponse{Rows: out, Total: total})
	}
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
