package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/buger/jsonparser"
	sftypes "github.com/cyber-nic/scaffold/libs/types"
	"github.com/rs/zerolog/log"
)

var errUnsuccessful = errors.New("chat response not successful")

// APIError is a non-200 answer from the backend.
type APIError struct {
	Status  int
	Message string
	Detail  string
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%d %s: %s", e.Status, e.Message, e.Detail)
	}
	return fmt.Sprintf("%d %s", e.Status, e.Message)
}

// httpBackend implements orchestrator.Backend against the scaffold server.
type httpBackend struct {
	base   string
	client *http.Client
}

func newHTTPBackend(base string, client *http.Client) *httpBackend {
	if client == nil {
		client = http.DefaultClient
	}
	return &httpBackend{base: strings.TrimRight(base, "/"), client: client}
}

func (b *httpBackend) Template(ctx context.Context, req sftypes.TemplateRequest) (sftypes.TemplateResponse, error) {
	var out sftypes.TemplateResponse
	err := b.post(ctx, "/template", req, &out)
	return out, err
}

func (b *httpBackend) Chat(ctx context.Context, req sftypes.ChatRequest) (string, error) {
	var out sftypes.ChatResponse
	if err := b.post(ctx, "/chat", req, &out); err != nil {
		return "", err
	}
	if !out.Success {
		return "", errUnsuccessful
	}
	return out.Response, nil
}

func (b *httpBackend) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("error marshalling JSON: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.base+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	log.Trace().Str("path", path).Int("len", len(body)).Msg("request")
	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s: read body: %w", path, err)
	}
	if resp.StatusCode != http.StatusOK {
		return decodeError(resp.StatusCode, data)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%s: decode response: %w", path, err)
	}
	return nil
}

// decodeError reads the {error, message} body when there is one.
func decodeError(status int, data []byte) error {
	e := &APIError{Status: status}
	e.Message, _ = jsonparser.GetString(data, "error")
	e.Detail, _ = jsonparser.GetString(data, "message")
	if e.Message == "" {
		e.Message = http.StatusText(status)
	}
	return e
}
