package httpapi

import (
	"net/http"
	"strconv"

	"diskuto/internal/feed"
)

// parseWindow reads the before/after query parameters shared by every list
// endpoint.
func parseWindow(r *http.Request) (feed.Window, error) {
	var w feed.Window
	if v := r.URL.Query().Get("before"); v != "" {
		ms, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return w, err
		}
		w.Before = &ms
	}
	if v := r.URL.Query().Get("after"); v != "" {
		ms, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return w, err
		}
		w.After = &ms
	}
	return w, nil
}
