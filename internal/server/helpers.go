package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"bondingCurve/internal/pool"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

type errorBody struct {
	Error  string `json:"error"`
	Code   string `json:"code,omitempty"`
	Result any    `json:"result,omitempty"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

// writeFailure maps an engine error to its HTTP status and stable code.
func writeFailure(w http.ResponseWriter, err error, result any) {
	code := pool.CodeOf(err)
	status := statusFor(code)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal server error"
	}
	writeJSON(w, status, errorBody{Error: msg, Code: string(code), Result: result})
}

var codeStatus = map[pool.Code]int{
	pool.CodeInvalidAmount:          http.StatusBadRequest,
	pool.CodeInvalidRequest:         http.StatusBadRequest,
	pool.CodeInvalidCurve:           http.StatusBadRequest,
	pool.CodeDomain:                 http.StatusBadRequest,
	pool.CodeOverflow:               http.StatusBadRequest,
	pool.CodeExceedsMaxSupply:       http.StatusUnprocessableEntity,
	pool.CodeInsufficientBalance:    http.StatusUnprocessableEntity,
	pool.CodeSlippageExceeded:       http.StatusUnprocessableEntity,
	pool.CodeCurveCompleted:         http.StatusConflict,
	pool.CodeNotReadyForLaunch:      http.StatusConflict,
	pool.CodeIdempotencyMismatch:    http.StatusConflict,
	pool.CodeContention:             http.StatusConflict,
	pool.CodePoolNotFound:           http.StatusNotFound,
	pool.CodePersistenceUnavailable: http.StatusServiceUnavailable,
	pool.CodeSubmissionFailed:       http.StatusBadGateway,
}

func statusFor(code pool.Code) int {
	if status, ok := codeStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

func isTradeError(err error) bool {
	var te *pool.TradeError
	return errors.As(err, &te)
}
