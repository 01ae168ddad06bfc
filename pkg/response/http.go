package response

import (
	"encoding/json"
	"net/http"
)

func JSON(w http.ResponseWriter, statusCode int, data any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(data)
}

// Error writes err as a Resp body. Errors that are not *errors.HTTPError become a 500.
func Error(w http.ResponseWriter, err error, details any) error {
	statusCode, body := parseHttpError(err)
	body.Errors = details
	return JSON(w, statusCode, body)
}
