package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/flowviz/flowviz/internal/middleware"
)

const contentTypeMsgpack = "application/msgpack"

// sendJSON sends a JSON response
func sendJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// sendEncoded writes data as msgpack when the client accepts it and JSON otherwise.
func sendEncoded(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	if !wantsMsgpack(r) {
		sendJSON(w, status, data)
		return
	}

	body, err := msgpack.Marshal(data)
	if err != nil {
		sendError(w, r, http.StatusInternalServerError, "ENCODING_ERROR", "Failed to encode response", nil)
		return
	}
	w.Header().Set("Content-Type", contentTypeMsgpack)
	w.WriteHeader(status)
	w.Write(body)
}

func wantsMsgpack(r *http.Request) bool {
	for _, part := range strings.Split(r.Header.Get("Accept"), ",") {
		mediaType, _, _ := strings.Cut(strings.TrimSpace(part), ";")
		if strings.EqualFold(mediaType, contentTypeMsgpack) || strings.EqualFold(mediaType, "application/x-msgpack") {
			return true
		}
	}
	return false
}

// sendError sends a standardized error response
func sendError(w http.ResponseWriter, r *http.Request, status int, code, message string, details interface{}) {
	middleware.SendError(w, r, status, code, message, details)
}

// decodeJSON decodes request body with error handling
func decodeJSON[T any](w http.ResponseWriter, r *http.Request) (T, bool) {
	var input T
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&input); err != nil {
		sendError(w, r, http.StatusBadRequest, "INVALID_BODY", "Invalid JSON body", err.Error())
		return input, false
	}
	return input, true
}

// decodeAndValidate decodes the body and runs struct validation on it.
func decodeAndValidate[T any](w http.ResponseWriter, r *http.Request) (T, bool) {
	input, ok := decodeJSON[T](w, r)
	if !ok {
		return input, false
	}
	if verrs := validateStruct(input); verrs != nil {
		sendError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "Request validation failed", verrs.Errors)
		return input, false
	}
	return input, true
}
