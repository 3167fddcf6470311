package imports

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// RegisterRoutes publica los dos imports de ficheros. Cada POST reclama como
// mucho un fichero pendiente.
func RegisterRoutes(r chi.Router, svc *Service) {
	r.Route("/imports", func(ir chi.Router) {
		ir.Post("/redcap", importRedCAPHandler(svc))
		ir.Post("/aliquots", importAliquotsHandler(svc))
	})
}

func importRedCAPHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, svc.ImportRedCAP(r.Context()))
	}
}

func importAliquotsHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, svc.ImportAliquots(r.Context()))
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
