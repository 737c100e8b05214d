package httpapi

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/julienschmidt/httprouter"

	"diskuto/internal/crypto"
	"diskuto/internal/feed"
	"diskuto/internal/ingest"
	"diskuto/internal/store"
)

// itemCacheMaxAge is applied to individual item GETs: an item is immutable
// once accepted, identified by its own (UserID, Signature) primary key, so
// it can be cached indefinitely.
const itemCacheMaxAge = "public, max-age=31536000, immutable"

// listCacheControl is applied to feeds and the latest-profile lookup, whose
// contents change as new items are ingested.
const listCacheControl = "no-cache"

// ItemHandler serves single-item fetch/upload and the per-user items and
// replies lists.
type ItemHandler struct {
	svc *ingest.Service
	log *slog.Logger
}

// Register wires ItemHandler's routes onto r, following hockeypuck's
// Handler.Register(r *httprouter.Router) convention.
func (h *ItemHandler) Register(r *httprouter.Router) {
	r.GET("/diskuto/users/:uid/profile", h.GetProfile)
	r.GET("/diskuto/users/:uid/items", h.ListItems)
	r.GET("/diskuto/users/:uid/items/:sig", h.GetItem)
	r.PUT("/diskuto/users/:uid/items/:sig", h.PutItem)
	r.GET("/diskuto/users/:uid/items/:sig/replies", h.ListReplies)
}

func parseUserAndSig(ps httprouter.Params) (crypto.UserID, crypto.Signature, error) {
	userID, err := crypto.ParseUserID(ps.ByName("uid"))
	if err != nil {
		return crypto.UserID{}, crypto.Signature{}, err
	}
	sig, err := crypto.ParseSignature(ps.ByName("sig"))
	if err != nil {
		return crypto.UserID{}, crypto.Signature{}, err
	}
	return userID, sig, nil
}

func (h *ItemHandler) GetItem(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	userID, sig, err := parseUserAndSig(ps)
	if err != nil {
		httpError(w, r, h.log, err)
		return
	}

	it, err := store.Reader(r.Context(), h.svc.Store, func(ctx context.Context, q store.Queryer) (*store.StoredItem, error) {
		return store.GetItem(ctx, q, userID, sig)
	})
	if err != nil {
		httpError(w, r, h.log, err)
		return
	}

	w.Header().Set("Cache-Control", itemCacheMaxAge)
	w.Header().Set("Content-Type", "application/protobuf3")
	w.Write(it.RawBytes)
}

func (h *ItemHandler) PutItem(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	userID, sig, err := parseUserAndSig(ps)
	if err != nil {
		httpError(w, r, h.log, err)
		return
	}

	if r.ContentLength < 0 {
		http.Error(w, "length required", http.StatusLengthRequired)
		return
	}
	if r.ContentLength > h.svc.Config.ItemMaxBytes {
		http.Error(w, "payload too large", http.StatusRequestEntityTooLarge)
		return
	}

	raw, err := io.ReadAll(io.LimitReader(r.Body, h.svc.Config.ItemMaxBytes+1))
	if err != nil {
		httpError(w, r, h.log, err)
		return
	}

	result, err := h.svc.PutItem(r.Context(), userID, sig, raw)
	if err != nil {
		httpError(w, r, h.log, err)
		return
	}

	writeResultStatus(w, result)
}

func (h *ItemHandler) GetProfile(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	userID, err := crypto.ParseUserID(ps.ByName("uid"))
	if err != nil {
		httpError(w, r, h.log, err)
		return
	}

	it, err := store.Reader(r.Context(), h.svc.Store, func(ctx context.Context, q store.Queryer) (*store.StoredItem, error) {
		return store.LatestProfile(ctx, q, userID)
	})
	if err != nil {
		httpError(w, r, h.log, err)
		return
	}

	w.Header().Set("Cache-Control", listCacheControl)
	w.Header().Set("Content-Type", "application/protobuf3")
	w.Write(it.RawBytes)
}

func (h *ItemHandler) ListItems(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	userID, err := crypto.ParseUserID(ps.ByName("uid"))
	if err != nil {
		httpError(w, r, h.log, err)
		return
	}
	window, err := parseWindow(r)
	if err != nil {
		httpError(w, r, h.log, err)
		return
	}

	refs, err := store.Reader(r.Context(), h.svc.Store, func(ctx context.Context, q store.Queryer) ([]store.ItemRef, error) {
		return store.ListUserItems(ctx, q, userID, feed.Resolve(window), h.svc.Config.PageLimit)
	})
	if err != nil {
		httpError(w, r, h.log, err)
		return
	}

	writeItemList(w, h.log, refs)
}

func (h *ItemHandler) ListReplies(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	userID, sig, err := parseUserAndSig(ps)
	if err != nil {
		httpError(w, r, h.log, err)
		return
	}
	window, err := parseWindow(r)
	if err != nil {
		httpError(w, r, h.log, err)
		return
	}

	refs, err := store.Reader(r.Context(), h.svc.Store, func(ctx context.Context, q store.Queryer) ([]store.ItemRef, error) {
		return store.ListReplies(ctx, q, userID, sig, feed.Resolve(window), h.svc.Config.PageLimit)
	})
	if err != nil {
		httpError(w, r, h.log, err)
		return
	}

	writeItemList(w, h.log, refs)
}

func writeItemList(w http.ResponseWriter, log *slog.Logger, refs []store.ItemRef) {
	body, err := encodeItemList(refs)
	if err != nil {
		log.Error("encoding item list", "error", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Cache-Control", listCacheControl)
	w.Header().Set("Content-Type", "application/protobuf3")
	w.Write(body)
}

func writeResultStatus(w http.ResponseWriter, result ingest.Result) {
	if result == ingest.Created {
		w.WriteHeader(http.StatusCreated)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}
