package httpapi

import (
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/julienschmidt/httprouter"

	"diskuto/internal/ingest"
)

// AttachmentHandler serves an Item's named file attachments: fetch, an
// existence probe, and the streaming upload that completes them.
type AttachmentHandler struct {
	svc *ingest.Service
	log *slog.Logger
}

// Register wires AttachmentHandler's routes onto r.
func (h *AttachmentHandler) Register(r *httprouter.Router) {
	r.GET("/diskuto/users/:uid/items/:sig/files/:name", h.Get)
	r.HEAD("/diskuto/users/:uid/items/:sig/files/:name", h.Head)
	r.PUT("/diskuto/users/:uid/items/:sig/files/:name", h.Put)
}

func (h *AttachmentHandler) Get(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	userID, sig, err := parseUserAndSig(ps)
	if err != nil {
		httpError(w, r, h.log, err)
		return
	}
	name := ps.ByName("name")

	rc, size, err := h.svc.GetAttachment(r.Context(), userID, sig, name)
	if err != nil {
		httpError(w, r, h.log, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Cache-Control", itemCacheMaxAge)
	w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
	w.Header().Set("Content-Type", "application/octet-stream")
	io.Copy(w, rc)
}

func (h *AttachmentHandler) Head(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	userID, sig, err := parseUserAndSig(ps)
	if err != nil {
		httpError(w, r, h.log, err)
		return
	}
	name := ps.ByName("name")

	present, size, err := h.svc.HeadAttachment(r.Context(), userID, sig, name)
	if err != nil {
		httpError(w, r, h.log, err)
		return
	}
	if !present {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.Header().Set("Cache-Control", itemCacheMaxAge)
	w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
	w.WriteHeader(http.StatusOK)
}

func (h *AttachmentHandler) Put(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	userID, sig, err := parseUserAndSig(ps)
	if err != nil {
		httpError(w, r, h.log, err)
		return
	}
	name := ps.ByName("name")

	if r.ContentLength < 0 {
		http.Error(w, "length required", http.StatusLengthRequired)
		return
	}
	if r.ContentLength > h.svc.Config.AttachmentMaxBytes {
		http.Error(w, "payload too large", http.StatusRequestEntityTooLarge)
		return
	}

	result, err := h.svc.PutAttachment(r.Context(), userID, sig, name, r.ContentLength, r.Body)
	if err != nil {
		httpError(w, r, h.log, err)
		return
	}

	writeResultStatus(w, result)
}
