package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	sftypes "github.com/cyber-nic/scaffold/libs/types"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
)

type fakeModel struct {
	mu     sync.Mutex
	calls  [][]llms.MessageContent
	opts   []llms.CallOptions
	reply  string
	chunks []string
	err    error
}

func (m *fakeModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	var o llms.CallOptions
	for _, opt := range options {
		opt(&o)
	}

	m.mu.Lock()
	m.calls = append(m.calls, messages)
	m.opts = append(m.opts, o)
	m.mu.Unlock()

	if m.err != nil {
		return nil, m.err
	}
	if o.StreamingFunc != nil {
		for _, c := range m.chunks {
			if err := o.StreamingFunc(ctx, []byte(c)); err != nil {
				return nil, err
			}
		}
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: m.reply}}}, nil
}

func (m *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

type factoryCall struct {
	model  string
	apiKey string
}

func newTestServer(t *testing.T, m *fakeModel) (*httptest.Server, *[]factoryCall) {
	t.Helper()
	var (
		mu    sync.Mutex
		calls []factoryCall
	)
	factory := func(ctx context.Context, model, apiKey string) (llms.Model, error) {
		mu.Lock()
		calls = append(calls, factoryCall{model, apiKey})
		mu.Unlock()
		return m, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	srv := httptest.NewServer(newRouter(ctx, defaultConfig(), factory))
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return srv, &calls
}

func post(t *testing.T, url string, body any) (int, map[string]any) {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)

	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	defer resp.Body.Close()

	out := map[string]any{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func TestTemplateValidation(t *testing.T) {
	srv, _ := newTestServer(t, &fakeModel{reply: "node"})

	tests := []struct {
		name   string
		body   map[string]any
		status int
		err    string
	}{
		{"missing prompt", map[string]any{"apiKey": "sk"}, http.StatusBadRequest, "Prompt is required"},
		{"blank prompt", map[string]any{"prompt": "  ", "apiKey": "sk"}, http.StatusBadRequest, "Prompt is required"},
		{"missing key", map[string]any{"prompt": "todo app"}, http.StatusBadRequest, "API key is required"},
		{"local model needs no key", map[string]any{"prompt": "todo app", "model": "ollama:llama3"}, http.StatusOK, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := post(t, srv.URL+"/template", tt.body)
			assert.Equal(t, tt.status, status)
			if tt.err != "" {
				assert.Equal(t, map[string]any{"error": tt.err}, body)
			}
		})
	}
}

func TestTemplateClassification(t *testing.T) {
	tests := []struct {
		answer  string
		ui      string
		prompts int
	}{
		{"node", nodeTemplate, 1},
		{"  Node\n", nodeTemplate, 1},
		{"react", reactTemplate, 2},
		{"maybe", reactTemplate, 2},
		{"", reactTemplate, 2},
	}

	for _, tt := range tests {
		t.Run(tt.answer, func(t *testing.T) {
			m := &fakeModel{reply: tt.answer}
			srv, calls := newTestServer(t, m)

			data, err := json.Marshal(sftypes.TemplateRequest{Prompt: "a blog", APIKey: "sk-1"})
			require.NoError(t, err)
			resp, err := http.Post(srv.URL+"/template", "application/json", bytes.NewReader(data))
			require.NoError(t, err)
			defer resp.Body.Close()
			require.Equal(t, http.StatusOK, resp.StatusCode)

			var out sftypes.TemplateResponse
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
			assert.Equal(t, []string{tt.ui}, out.UIPrompts)
			assert.Len(t, out.Prompts, tt.prompts)
			assert.Contains(t, out.Prompts[len(out.Prompts)-1], tt.ui)

			require.Len(t, *calls, 1)
			assert.Equal(t, factoryCall{"gpt-4.1", "sk-1"}, (*calls)[0])

			require.Len(t, m.calls, 1)
			msgs := m.calls[0]
			require.Len(t, msgs, 2)
			assert.Equal(t, llms.ChatMessageTypeSystem, msgs[0].Role)
			assert.Equal(t, llms.ChatMessageTypeHuman, msgs[1].Role)
			assert.Equal(t, "a blog", msgs[1].Parts[0].(llms.TextContent).Text)
		})
	}
}

func TestUpstreamError(t *testing.T) {
	srv, _ := newTestServer(t, &fakeModel{err: errors.New("quota exceeded")})

	status, body := post(t, srv.URL+"/template", sftypes.TemplateRequest{Prompt: "x", APIKey: "k"})
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, map[string]any{"error": "Internal server error", "message": "quota exceeded"}, body)

	status, body = post(t, srv.URL+"/chat", sftypes.ChatRequest{
		Messages: []sftypes.Message{{Role: sftypes.RoleUser, Content: "hi"}},
		APIKey:   "k",
	})
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "Internal server error", body["error"])
	assert.Equal(t, "quota exceeded", body["message"])
}

func TestChat(t *testing.T) {
	m := &fakeModel{reply: `<boltArtifact title="Todo"></boltArtifact>`}
	srv, calls := newTestServer(t, m)

	status, body := post(t, srv.URL+"/api/chat", sftypes.ChatRequest{
		Messages: []sftypes.Message{
			{Role: sftypes.RoleUser, Content: "build"},
			{Role: sftypes.RoleAssistant, Content: "done"},
			{Role: sftypes.RoleUser, Content: "more"},
		},
		APIKey: "k",
		Model:  "gpt-4o",
	})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, map[string]any{"response": `<boltArtifact title="Todo"></boltArtifact>`, "success": true}, body)

	assert.Equal(t, factoryCall{"gpt-4o", "k"}, (*calls)[0])
	require.Len(t, m.calls, 1)
	roles := []llms.ChatMessageType{}
	for _, mc := range m.calls[0] {
		roles = append(roles, mc.Role)
	}
	assert.Equal(t, []llms.ChatMessageType{
		llms.ChatMessageTypeSystem,
		llms.ChatMessageTypeHuman,
		llms.ChatMessageTypeAI,
		llms.ChatMessageTypeHuman,
	}, roles)
	assert.Equal(t, systemPrompt, m.calls[0][0].Parts[0].(llms.TextContent).Text)
	assert.Equal(t, "gpt-4o", m.opts[0].Model)
}

func TestChatValidation(t *testing.T) {
	srv, _ := newTestServer(t, &fakeModel{reply: "ok"})

	tests := []struct {
		name   string
		body   any
		status int
		err    string
	}{
		{"missing messages", map[string]any{"apiKey": "k"}, http.StatusBadRequest, "Messages array is required"},
		{"messages not an array", map[string]any{"messages": "hi", "apiKey": "k"}, http.StatusBadRequest, "Messages array is required"},
		{"missing key", map[string]any{"messages": []any{}}, http.StatusBadRequest, "API key is required"},
		{"empty array", map[string]any{"messages": []any{}, "apiKey": "k"}, http.StatusOK, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := post(t, srv.URL+"/chat", tt.body)
			assert.Equal(t, tt.status, status)
			if tt.err != "" {
				assert.Equal(t, tt.err, body["error"])
			}
		})
	}
}

func TestChatStream(t *testing.T) {
	m := &fakeModel{reply: "hello world", chunks: []string{"hello", " world"}}
	srv, _ := newTestServer(t, m)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/chat/stream"
	c, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.WriteJSON(sftypes.ChatRequest{
		Messages: []sftypes.Message{{Role: sftypes.RoleUser, Content: "hi"}},
		APIKey:   "k",
	}))

	var frames []sftypes.StreamFrame
	for {
		var f sftypes.StreamFrame
		require.NoError(t, c.ReadJSON(&f))
		frames = append(frames, f)
		if f.Type != sftypes.FrameChunk {
			break
		}
	}
	assert.Equal(t, []sftypes.StreamFrame{
		{Type: sftypes.FrameChunk, Data: "hello"},
		{Type: sftypes.FrameChunk, Data: " world"},
		{Type: sftypes.FrameDone, Data: "hello world"},
	}, frames)

	// a bad turn reports an error and keeps the connection open
	require.NoError(t, c.WriteJSON(map[string]any{"apiKey": "k"}))
	var f sftypes.StreamFrame
	require.NoError(t, c.ReadJSON(&f))
	assert.Equal(t, sftypes.StreamFrame{Type: sftypes.FrameError, Data: "Messages array is required"}, f)

	require.NoError(t, c.WriteJSON(sftypes.ChatRequest{Messages: []sftypes.Message{}, APIKey: "k"}))
	for {
		require.NoError(t, c.ReadJSON(&f))
		if f.Type != sftypes.FrameChunk {
			break
		}
	}
	assert.Equal(t, sftypes.FrameDone, f.Type)
}

func TestSchemaAndHealth(t *testing.T) {
	srv, _ := newTestServer(t, &fakeModel{})

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/schema/chat-request")
	require.NoError(t, err)
	var schema map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&schema))
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	props, ok := schema["properties"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, props, "messages")
	assert.Contains(t, props, "apiKey")
	assert.Equal(t, false, schema["additionalProperties"])

	resp, err = http.Get(srv.URL + "/schema/nope")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCORS(t *testing.T) {
	srv, _ := newTestServer(t, &fakeModel{})

	tests := []struct {
		origin string
		allow  string
	}{
		{"http://localhost:3000", "http://localhost:3000"},
		{"http://127.0.0.1:3000", "http://127.0.0.1:3000"},
		{"http://evil.example", ""},
	}

	for _, tt := range tests {
		t.Run(tt.origin, func(t *testing.T) {
			req, err := http.NewRequest(http.MethodOptions, srv.URL+"/chat", nil)
			require.NoError(t, err)
			req.Header.Set("Origin", tt.origin)
			req.Header.Set("Access-Control-Request-Method", http.MethodPost)
			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			resp.Body.Close()
			assert.Equal(t, tt.allow, resp.Header.Get("Access-Control-Allow-Origin"))
		})
	}
}

func TestModelHelpers(t *testing.T) {
	assert.Equal(t, "gpt-4.1", pickModel(" ", "gpt-4.1"))
	assert.Equal(t, "gpt-4o", pickModel("gpt-4o", "gpt-4.1"))
	assert.Equal(t, "llama3", providerModel("ollama:llama3"))
	assert.Equal(t, "gemini-2.0-flash", providerModel("gemini-2.0-flash"))
	assert.False(t, requiresKey("ollama:llama3"))
	assert.True(t, requiresKey("gemini-2.0-flash"))

	_, err := extractResponseContent(&llms.ContentResponse{})
	assert.ErrorIs(t, err, errEmptyResponse)
}
