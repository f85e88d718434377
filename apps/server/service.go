package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	sftypes "github.com/cyber-nic/scaffold/libs/types"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
)

const (
	msgPromptRequired   = "Prompt is required"
	msgAPIKeyRequired   = "API key is required"
	msgMessagesRequired = "Messages array is required"
	msgInternal         = "Internal server error"
)

var errMessagesRequired = errors.New(msgMessagesRequired)

// TemplateService classifies a project prompt and returns its seed prompts.
type TemplateService interface {
	Handler() func(w http.ResponseWriter, r *http.Request)
}

type templateService struct {
	models ModelFactory
	model  string
}

func NewTemplateService(models ModelFactory, model string) TemplateService {
	return &templateService{models: models, model: model}
}

func (s *templateService) Handler() func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		l := hlog.FromRequest(r)

		var req sftypes.TemplateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
		if strings.TrimSpace(req.Prompt) == "" {
			writeError(w, http.StatusBadRequest, msgPromptRequired)
			return
		}
		model := pickModel(req.Model, s.model)
		if req.APIKey == "" && requiresKey(model) {
			writeError(w, http.StatusBadRequest, msgAPIKeyRequired)
			return
		}

		llm, err := s.models(r.Context(), model, req.APIKey)
		if err != nil {
			l.Err(err).Str("model", model).Msg("model init failed")
			writeInternal(w, err)
			return
		}

		content := []llms.MessageContent{
			llms.TextParts(llms.ChatMessageTypeSystem, classifyPrompt),
			llms.TextParts(llms.ChatMessageTypeHuman, req.Prompt),
		}

		start := time.Now()
		resp, err := llm.GenerateContent(r.Context(), content, llms.WithModel(providerModel(model)))
		if err != nil {
			l.Err(err).Str("model", model).Msg("ai failed to classify prompt")
			writeInternal(w, err)
			return
		}
		answer, err := extractResponseContent(resp)
		if err != nil {
			l.Err(err).Str("model", model).Msg("failed to extract ai response content")
			writeInternal(w, err)
			return
		}

		t := classify(answer)
		l.Info().
			Str("model", model).
			Str("answer", strings.TrimSpace(answer)).
			Str("template", string(t)).
			Int64("elapsed_ms", time.Since(start).Milliseconds()).
			Msg("template")

		writeJSON(w, http.StatusOK, templateResponse(t))
	}
}

// ChatService runs one generation turn over the caller's transcript.
type ChatService interface {
	Handler() func(w http.ResponseWriter, r *http.Request)
}

type chatService struct {
	models ModelFactory
	model  string
}

func NewChatService(models ModelFactory, model string) ChatService {
	return &chatService{models: models, model: model}
}

// validateChat returns the resolved model or a client-facing validation error.
func validateChat(req sftypes.ChatRequest, fallback string) (string, error) {
	if req.Messages == nil {
		return "", errMessagesRequired
	}
	model := pickModel(req.Model, fallback)
	if req.APIKey == "" && requiresKey(model) {
		return "", errors.New(msgAPIKeyRequired)
	}
	return model, nil
}

func (s *chatService) Handler() func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		l := hlog.FromRequest(r)

		var req sftypes.ChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, msgMessagesRequired)
			return
		}
		model, err := validateChat(req, s.model)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		llm, err := s.models(r.Context(), model, req.APIKey)
		if err != nil {
			l.Err(err).Str("model", model).Msg("model init failed")
			writeInternal(w, err)
			return
		}

		start := time.Now()
		resp, err := llm.GenerateContent(r.Context(), toMessageContent(systemPrompt, req.Messages),
			llms.WithModel(providerModel(model)))
		if err != nil {
			l.Err(err).Str("model", model).Msg("ai failed to generate content")
			writeInternal(w, err)
			return
		}
		data, err := extractResponseContent(resp)
		if err != nil {
			l.Err(err).Str("model", model).Msg("failed to extract ai response content")
			writeInternal(w, err)
			return
		}

		l.Info().
			Str("model", model).
			Int("messages", len(req.Messages)).
			Int("len", len(data)).
			Int64("elapsed_ms", time.Since(start).Milliseconds()).
			Msg("chat")

		writeJSON(w, http.StatusOK, sftypes.ChatResponse{Response: data, Success: true})
	}
}

// StreamService serves chat turns over a websocket, one request frame per
// turn, streaming chunk frames followed by a done or error frame.
type StreamService interface {
	Handler(ctx context.Context) func(w http.ResponseWriter, r *http.Request)
}

type streamService struct {
	models   ModelFactory
	model    string
	upgrader websocket.Upgrader
}

func NewStreamService(models ModelFactory, model string, origins []string) StreamService {
	allowed := map[string]bool{}
	for _, o := range origins {
		allowed[o] = true
	}
	return &streamService{
		models: models,
		model:  model,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || allowed[origin]
			},
		},
	}
}

func (s *streamService) Handler(ctx context.Context) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := s.upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Err(err).Msg("ws upgrade")
			return
		}
		defer c.Close()

		// Set up a close handler
		c.SetCloseHandler(func(code int, text string) error {
			log.Info().Int("code", code).Str("text", text).Msg("received close frame")
			message := websocket.FormatCloseMessage(code, "")
			return c.WriteControl(websocket.CloseMessage, message, time.Now().Add(time.Second))
		})

		l := log.With().Str("client_ip", r.RemoteAddr).Logger()

		// unblock ReadMessage on server shutdown
		done := make(chan struct{})
		defer close(done)
		go func() {
			select {
			case <-ctx.Done():
				msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutdown")
				_ = c.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
				c.Close()
			case <-done:
			}
		}()

		for {
			// block until a message is received
			mt, message, err := c.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err,
					websocket.CloseNormalClosure,
					websocket.CloseGoingAway,
					websocket.CloseAbnormalClosure) {
					l.Err(err).Msg("unexpected close error")
				} else {
					l.Info().Msg("websocket closed normally")
				}
				return
			}

			// Only process text messages
			if mt != websocket.TextMessage {
				continue
			}

			var req sftypes.ChatRequest
			if err := json.Unmarshal(message, &req); err != nil {
				l.Err(err).Msg("Error unmarshalling JSON")
				if !s.write(c, sftypes.FrameError, msgMessagesRequired) {
					return
				}
				continue
			}

			if !s.turn(ctx, c, l, req) {
				return
			}
		}
	}
}

// turn runs one streamed generation. It reports false once the connection
// can no longer be written to.
func (s *streamService) turn(ctx context.Context, c *websocket.Conn, l zerolog.Logger, req sftypes.ChatRequest) bool {
	model, err := validateChat(req, s.model)
	if err != nil {
		return s.write(c, sftypes.FrameError, err.Error())
	}

	llm, err := s.models(ctx, model, req.APIKey)
	if err != nil {
		l.Err(err).Str("model", model).Msg("model init failed")
		return s.write(c, sftypes.FrameError, err.Error())
	}

	alive := true
	stream := func(_ context.Context, chunk []byte) error {
		if !s.write(c, sftypes.FrameChunk, string(chunk)) {
			alive = false
			return errors.New("websocket write failed")
		}
		return nil
	}

	start := time.Now()
	resp, err := llm.GenerateContent(ctx, toMessageContent(systemPrompt, req.Messages),
		llms.WithModel(providerModel(model)), llms.WithStreamingFunc(stream))
	if !alive {
		return false
	}
	if err != nil {
		l.Err(err).Str("model", model).Msg("ai failed to generate content")
		return s.write(c, sftypes.FrameError, err.Error())
	}
	data, err := extractResponseContent(resp)
	if err != nil {
		l.Err(err).Str("model", model).Msg("failed to extract ai response content")
		return s.write(c, sftypes.FrameError, err.Error())
	}

	l.Info().
		Str("model", model).
		Int("len", len(data)).
		Int64("elapsed_ms", time.Since(start).Milliseconds()).
		Msg("stream")

	return s.write(c, sftypes.FrameDone, data)
}

func (s *streamService) write(c *websocket.Conn, kind, data string) bool {
	if err := c.WriteJSON(sftypes.StreamFrame{Type: kind, Data: data}); err != nil {
		log.Err(err).Msg("failed to write message to ws")
		return false
	}
	return true
}
