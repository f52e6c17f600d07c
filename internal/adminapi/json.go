package adminapi

import (
	"encoding/json"
	"io"
	"net/http"
)

// maxRequestBodySize bounds admin API request bodies (1 MiB), mirroring
// the teacher's own handler.ReadBody/DecodeJSON limit.
const maxRequestBodySize = 1 << 20

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// ErrJSON writes an error JSON response: {"error": msg}.
func ErrJSON(w http.ResponseWriter, code int, msg string) {
	JSON(w, code, map[string]string{"error": msg})
}

// DecodeJSON reads the request body as JSON into v with a size limit.
func DecodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(io.LimitReader(r.Body, maxRequestBodySize+1)).Decode(v)
}
