package middleware

import (
	"encoding/json"
	"net/http"
)

// writeError sends the API error envelope {statusCode, message}.
func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"statusCode": status,
		"message":    msg,
	})
}
