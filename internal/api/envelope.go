package api

import (
	"encoding/json"
	"net/http"

	"github.com/hirewire/decree/pkg/types"
)

type envelope struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *errorBody `json:"error,omitempty"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(payload)
}

func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, envelope{Success: true, Data: data})
}

func writeError(w http.ResponseWriter, err error) {
	code := types.ErrorCode(err)
	writeJSON(w, statusFor(code), envelope{
		Success: false,
		Error:   &errorBody{Code: code, Message: err.Error()},
	})
}

func statusFor(code string) int {
	switch code {
	case "UNAUTHENTICATED":
		return http.StatusUnauthorized
	case "INSUFFICIENT_AUTHORITY":
		return http.StatusForbidden
	case "NOT_FOUND":
		return http.StatusNotFound
	case "DUPLICATE_DECISION", "CONFLICT":
		return http.StatusConflict
	case "VALIDATION":
		return http.StatusBadRequest
	case "AUTHORITY_LOOKUP":
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
