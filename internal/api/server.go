// Package api exposes the mirror over a local HTTP JSON interface, plus a
// Server-Sent Events stream of state transitions.
package api

import (
	"log/slog"
	"net/http"

	"github.com/docmirror/docmirror/internal/events"
	"github.com/docmirror/docmirror/internal/service"
)

// NewServer builds the HTTP server for the given listen address.
func NewServer(addr string, svc *service.Service, bus *events.Bus, logger *slog.Logger) *http.Server {
	h := &handlers{svc: svc, bus: bus, log: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/collections", h.listCollections)
	mux.HandleFunc("POST /v1/collections", h.createCollection)
	mux.HandleFunc("GET /v1/collections/{id}", h.getCollection)
	mux.HandleFunc("DELETE /v1/collections/{id}", h.deleteCollection)
	mux.HandleFunc("POST /v1/collections/{id}/retry", h.retryCollection)
	mux.HandleFunc("GET /v1/collections/{id}/items", h.listItems)
	mux.HandleFunc("POST /v1/collections/{id}/items", h.addItem)
	mux.HandleFunc("GET /v1/items/{id}", h.getItem)
	mux.HandleFunc("DELETE /v1/items/{id}", h.deleteItem)
	mux.HandleFunc("POST /v1/items/{id}/retry", h.retryItem)
	mux.HandleFunc("POST /v1/items:lookup", h.lookupItems)
	mux.HandleFunc("GET /v1/events", h.streamEvents)
	mux.HandleFunc("GET /healthz", h.health)

	return &http.Server{
		Addr:    addr,
		Handler: mux,
	}
}
