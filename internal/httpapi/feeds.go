package httpapi

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/julienschmidt/httprouter"

	"diskuto/internal/crypto"
	"diskuto/internal/feed"
	"diskuto/internal/ingest"
	"diskuto/internal/store"
)

// FeedHandler serves the homepage and per-user feed list endpoints.
type FeedHandler struct {
	svc *ingest.Service
	log *slog.Logger
}

// Register wires FeedHandler's routes onto r.
func (h *FeedHandler) Register(r *httprouter.Router) {
	r.GET("/diskuto/homepage", h.Homepage)
	r.GET("/diskuto/users/:uid/feed", h.Feed)
}

func (h *FeedHandler) Homepage(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	window, err := parseWindow(r)
	if err != nil {
		httpError(w, r, h.log, err)
		return
	}

	refs, err := store.Reader(r.Context(), h.svc.Store, func(ctx context.Context, q store.Queryer) ([]store.ItemRef, error) {
		return store.ListHomepage(ctx, q, feed.Resolve(window), h.svc.Config.PageLimit)
	})
	if err != nil {
		httpError(w, r, h.log, err)
		return
	}

	writeItemList(w, h.log, refs)
}

func (h *FeedHandler) Feed(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
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
		return store.ListFeed(ctx, q, userID, feed.Resolve(window), h.svc.Config.PageLimit)
	})
	if err != nil {
		httpError(w, r, h.log, err)
		return
	}

	writeItemList(w, h.log, refs)
}
