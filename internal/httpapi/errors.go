package httpapi

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"diskuto/internal/authz"
	"diskuto/internal/crypto"
	"diskuto/internal/ingest"
	"diskuto/internal/item"
	"diskuto/internal/store"
	"diskuto/internal/store/blob"
)

// httpError maps a domain error to a status code and writes it: codec and
// authorization errors are mapped locally; anything else is a server fault,
// logged with the request's correlation ID and never detailed in the
// response body.
func httpError(w http.ResponseWriter, r *http.Request, log *slog.Logger, err error) {
	code, text := statusFor(err)
	if code == http.StatusInternalServerError {
		log.ErrorContext(r.Context(), "request failed", "error", err, "path", r.URL.Path)
		text = http.StatusText(code)
	}
	http.Error(w, text, code)
}

func statusFor(err error) (int, string) {
	var numErr *strconv.NumError
	switch {
	// ErrAttachmentNotDeclared means the item never named this file at
	// all ("unknown file"), distinct from ErrSizeMismatch/ErrHashMismatch
	// below, which are a declared file's upload not matching what the
	// item declared for it.
	case errors.Is(err, store.ErrNotFound), errors.Is(err, blob.ErrNotFound), errors.Is(err, ingest.ErrAttachmentNotDeclared):
		return http.StatusNotFound, "not found"
	case errors.Is(err, crypto.ErrBadSignature):
		return http.StatusBadRequest, "bad signature"
	case errors.Is(err, crypto.ErrWrongLength), errors.As(err, &numErr):
		return http.StatusBadRequest, "malformed request"
	case errors.Is(err, item.ErrMalformed),
		errors.Is(err, item.ErrMissingRequiredField),
		errors.Is(err, item.ErrUnknownKindEmpty),
		errors.Is(err, item.ErrMultipleKindsSet),
		errors.Is(err, item.ErrTimestampOutOfRange),
		errors.Is(err, item.ErrAttachmentNameInvalid),
		errors.Is(err, item.ErrDuplicateAttachmentName),
		errors.Is(err, item.ErrAttachmentHashAlgorithmUnsupported),
		errors.Is(err, ingest.ErrSizeMismatch),
		errors.Is(err, ingest.ErrHashMismatch):
		return http.StatusBadRequest, "malformed request"
	case errors.Is(err, item.ErrOversizedItem):
		return http.StatusRequestEntityTooLarge, "payload too large"
	case errors.Is(err, authz.ErrForbidden):
		return http.StatusForbidden, "not an admitted user"
	case errors.Is(err, authz.ErrQuotaExceeded):
		return http.StatusInsufficientStorage, "quota exceeded"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}
