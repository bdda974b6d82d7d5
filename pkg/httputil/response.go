package httputil

import (
	"encoding/json"
	"net/http"

	"github.com/sirupsen/logrus"
)

type envelope struct {
	Data  interface{} `json:"data"`
	Error *string     `json:"error"`
	Code  string      `json:"code,omitempty"`
}

// RespondJSON writes payload as the data half of the {data, error} envelope.
func RespondJSON(w http.ResponseWriter, statusCode int, payload interface{}) {
	write(w, statusCode, envelope{Data: payload})
}

// RespondError writes a JSON error response with the given status code and message.
func RespondError(w http.ResponseWriter, statusCode int, message string) {
	write(w, statusCode, envelope{Error: &message})
}

// RespondCodedError is RespondError plus a machine-readable code the client
// can map to its own copy.
func RespondCodedError(w http.ResponseWriter, statusCode int, code, message string) {
	write(w, statusCode, envelope{Error: &message, Code: code})
}

func write(w http.ResponseWriter, statusCode int, body envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logrus.WithError(err).Error("encoding JSON response")
	}
}

// DecodeJSON reads a request body into dst.
func DecodeJSON(r *http.Request, dst interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(dst)
}
