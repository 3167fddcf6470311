package locations

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"shipment-control/internal/domain/servicerr"
)

func RegisterRoutes(r chi.Router, svc *Service) {
	r.Route("/locations", func(lr chi.Router) {
		lr.Get("/labs", listLabsHandler(svc))
		lr.Get("/{locationID}", getLocationHandler(svc))
	})
}

type locationResponse struct {
	ID             string `json:"id"`
	Code           string `json:"code"`
	Name           string `json:"name"`
	IsLab          bool   `json:"is_lab"`
	IsClinicalSite bool   `json:"is_clinical_site"`
}

func toLocationResponse(l Location) locationResponse {
	return locationResponse{
		ID:             l.ID,
		Code:           l.Code,
		Name:           l.Name,
		IsLab:          l.IsLab,
		IsClinicalSite: l.IsClinicalSite,
	}
}

func listLabsHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		labs, err := svc.ListLabs(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		out := make([]locationResponse, 0, len(labs))
		for _, l := range labs {
			out = append(out, toLocationResponse(l))
		}
		writeData(w, http.StatusOK, out)
	}
}

func getLocationHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		l, err := svc.GetByID(r.Context(), chi.URLParam(r, "locationID"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeData(w, http.StatusOK, toLocationResponse(l))
	}
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
