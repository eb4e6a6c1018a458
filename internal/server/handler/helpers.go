package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/alanyoungcy/binaryoptions/internal/domain"
)

// writeJSON marshals v as JSON and writes it to the response with the given
// HTTP status code. If marshaling fails, it falls back to a plain 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"statusCode":500,"message":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

// errorResponse is the body of every non-2xx API response.
type errorResponse struct {
	StatusCode int    `json:"statusCode"`
	Message    string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{StatusCode: status, Message: msg})
}

// statusFor maps a service error onto an HTTP status. Unknown errors are 500.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrWalletNotFound),
		errors.Is(err, domain.ErrTransactionNotFound),
		errors.Is(err, domain.ErrMarketNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrOrderClosed), errors.Is(err, domain.ErrAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInvalidOrder),
		errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrInvalidPercentage),
		errors.Is(err, domain.ErrFeatureDisabled),
		errors.Is(err, domain.ErrInsufficientBalance):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrThrottled),
		errors.Is(err, domain.ErrRateLimited),
		errors.Is(err, domain.ErrPriceUnavailable):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// messageFor returns the client-facing text for err. Internal failures are
// never echoed back.
func messageFor(status int, err error) string {
	switch {
	case status == http.StatusInternalServerError:
		return "internal server error"
	case errors.Is(err, domain.ErrInsufficientBalance):
		return "Insufficient balance"
	case errors.Is(err, domain.ErrInvalidOrder):
		// Validation errors carry their detail unprefixed.
		return err.Error()
	}
	for _, sentinel := range []error{
		domain.ErrNotFound, domain.ErrWalletNotFound, domain.ErrTransactionNotFound,
		domain.ErrMarketNotFound, domain.ErrOrderClosed, domain.ErrInvalidAmount,
		domain.ErrInvalidPercentage, domain.ErrFeatureDisabled, domain.ErrThrottled,
		domain.ErrRateLimited, domain.ErrPriceUnavailable, domain.ErrUnauthorized,
		domain.ErrAlreadyExists,
	} {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return http.StatusText(status)
}

// writeServiceError logs err (5xx at error level) and writes the envelope.
func writeServiceError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, op string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
		logger.ErrorContext(r.Context(), "handler: "+op+" failed", slog.String("error", err.Error()))
	} else {
		logger.DebugContext(r.Context(), "handler: "+op+" rejected",
			slog.Int("status", status),
			slog.String("error", err.Error()),
		)
	}
	writeError(w, status, messageFor(status, err))
}

// parseListOpts extracts standard pagination parameters from the query string.
// Defaults: limit=50 (max 500), offset=0.
func parseListOpts(r *http.Request) domain.ListOpts {
	q := r.URL.Query()

	limit := 50
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	limit = min(limit, 500)

	offset := 0
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}

	return domain.ListOpts{
		Limit:  limit,
		Offset: offset,
	}
}
