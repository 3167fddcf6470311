package tracking

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// RegisterRoutes publica los dos trabajos de sincronización. Son POST porque
// cada invocación puede escribir en la plataforma remota; el resultado es
// siempre un informe batch {code, message, details}.
func RegisterRoutes(r chi.Router, sync *Synchronizer) {
	r.Route("/tracking", func(tr chi.Router) {
		tr.Post("/shipments", trackShipmentsHandler(sync))
		tr.Post("/receptions", trackReceptionsHandler(sync))
	})
}

func trackShipmentsHandler(sync *Synchronizer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report := sync.TrackPendingShipments(r.Context())
		writeJSON(w, http.StatusOK, report)
	}
}

func trackReceptionsHandler(sync *Synchronizer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report := sync.TrackPendingReceptions(r.Context())
		writeJSON(w, http.StatusOK, report)
	}
}

// writeJSON está duplicado a propósito en los handlers de cada módulo,
// igual que en el resto de dominios.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
