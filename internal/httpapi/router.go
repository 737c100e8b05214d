// Package httpapi exposes diskuto's storage and ingestion services over
// HTTP, following hockeypuck's one-Handler-struct-per-resource-family
// pattern: each Handler.Register method wires its routes onto a shared
// httprouter.Router.
package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/julienschmidt/httprouter"

	"diskuto/internal/ingest"
)

// NewRouter builds the full diskuto HTTP surface: the resource handlers
// registered under /diskuto/, plus the ambient /healthz and /metrics
// endpoints, wrapped in the standard middleware chain.
func NewRouter(svc *ingest.Service, log *slog.Logger) http.Handler {
	r := httprouter.New()

	items := &ItemHandler{svc: svc, log: log}
	feeds := &FeedHandler{svc: svc, log: log}
	attachments := &AttachmentHandler{svc: svc, log: log}

	items.Register(r)
	feeds.Register(r)
	attachments.Register(r)

	r.GET("/healthz", healthzHandler(svc))
	r.Handler(http.MethodGet, "/metrics", metricsHandler())

	return chain(log, r)
}

// healthzHandler is a liveness probe: a round trip through the reader
// pool, not a blocking-pool dispatch, since this endpoint itself must never
// queue behind the same pool it's reporting on.
func healthzHandler(svc *ingest.Service) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		if err := svc.Store.ReaderDB().PingContext(r.Context()); err != nil {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}
