package httpserver

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
)

const maxChatBodyBytes = 1 << 20 // 1 MiB

func decodeJSONBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxChatBodyBytes)
	return json.NewDecoder(r.Body).Decode(v)
}

func newRequestID() string {
	return uuid.NewString()
}
