package main

import (
	"encoding/json"
	"net/http"

	sftypes "github.com/cyber-nic/scaffold/libs/types"
	"github.com/go-chi/chi/v5"
	"github.com/invopop/jsonschema"
	"github.com/rs/zerolog/log"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Err(err).Msg("failed to write response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, sftypes.ErrorResponse{Error: msg})
}

// writeInternal reports an upstream failure with its message.
func writeInternal(w http.ResponseWriter, err error) {
	writeJSON(w, http.StatusInternalServerError, sftypes.ErrorResponse{Error: msgInternal, Message: err.Error()})
}

func GenerateSchema[T any]() *jsonschema.Schema {
	// Structured Outputs uses a subset of JSON schema
	// These flags are necessary to comply with the subset
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v T
	return reflector.Reflect(v)
}

var schemas = map[string]func() *jsonschema.Schema{
	"template-request":  GenerateSchema[sftypes.TemplateRequest],
	"template-response": GenerateSchema[sftypes.TemplateResponse],
	"chat-request":      GenerateSchema[sftypes.ChatRequest],
	"chat-response":     GenerateSchema[sftypes.ChatResponse],
	"stream-frame":      GenerateSchema[sftypes.StreamFrame],
	"error":             GenerateSchema[sftypes.ErrorResponse],
}

func handleSchema(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	gen, ok := schemas[name]
	if !ok {
		writeError(w, http.StatusNotFound, "unknown schema: "+name)
		return
	}
	writeJSON(w, http.StatusOK, gen())
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
