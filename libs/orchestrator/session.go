// Package orchestrator sequences the template and generation calls of a
// scaffolding session and owns its append-only step log and transcript.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/cyber-nic/scaffold/libs/artifact"
	"github.com/cyber-nic/scaffold/libs/filetree"
	"github.com/cyber-nic/scaffold/libs/mount"
	sftypes "github.com/cyber-nic/scaffold/libs/types"
	"github.com/rs/zerolog/log"
)

type State string

const (
	StateIdle       State = "idle"
	StateTemplate   State = "template"
	StateGeneration State = "generation"
	StateComplete   State = "complete"
)

type Tab string

const (
	TabCode    Tab = "code"
	TabPreview Tab = "preview"
)

const (
	ErrorText      = "Sorry, there was an error processing your request. Please try again."
	SetupDoneText  = "Project setup completed! Your files have been generated and are ready for editing."
	GeneratingText = "Generating edits..."
)

var (
	ErrBusy           = errors.New("a request is already in flight")
	ErrEmptyMessage   = errors.New("message is empty")
	ErrAlreadyStarted = errors.New("session already started")
	ErrMissingAPIKey  = errors.New("API key is required")
)

// Backend is the stateless HTTP boundary consumed by a Session.
type Backend interface {
	Template(ctx context.Context, req sftypes.TemplateRequest) (sftypes.TemplateResponse, error)
	Chat(ctx context.Context, req sftypes.ChatRequest) (string, error)
}

type Config struct {
	APIKey string
	Model  string
}

// hasKey reports whether cfg can reach the model; local models need no key.
func (c Config) hasKey() bool {
	return c.APIKey != "" || !sftypes.RequiresAPIKey(c.Model)
}

// Reply is what a single Send produced.
type Reply struct {
	Text    string
	Steps   []sftypes.Step
	Changes []filetree.Change
	Preview bool
	Failed  bool
	Cause   error
}

// Session is one project conversation. All methods are safe for concurrent
// use; at most one Send runs at a time.
type Session struct {
	backend Backend
	cfg     Config

	mu              sync.Mutex
	busy            bool
	triggered       bool
	templateSet     bool
	state           State
	preview         bool
	tab             Tab
	templateSteps   []sftypes.Step
	generationSteps []sftypes.Step
	seed            []sftypes.Message
	transcript      []sftypes.Message
	chat            []sftypes.Message
}

func New(backend Backend, cfg Config) *Session {
	return &Session{
		backend: backend,
		cfg:     cfg,
		state:   StateIdle,
		tab:     TabCode,
	}
}

// Start sends the session's initial message. It fires at most once per
// session no matter how often it is called.
func (s *Session) Start(ctx context.Context, message string) (Reply, error) {
	s.mu.Lock()
	if s.triggered || s.templateSet {
		s.mu.Unlock()
		return Reply{}, ErrAlreadyStarted
	}
	s.triggered = true
	s.mu.Unlock()

	return s.Send(ctx, message)
}

// Send runs one user turn. Backend failures are absorbed into the Reply;
// the returned error only reports misuse.
func (s *Session) Send(ctx context.Context, message string) (Reply, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return Reply{}, ErrEmptyMessage
	}

	s.mu.Lock()
	if s.busy {
		s.mu.Unlock()
		return Reply{}, ErrBusy
	}
	s.busy = true
	s.triggered = true
	setup := !s.templateSet
	s.chat = append(s.chat, sftypes.Message{Role: sftypes.RoleUser, Content: message})
	s.preview = false
	s.tab = TabCode
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.busy = false
		s.mu.Unlock()
	}()

	if setup {
		return s.setup(ctx, message), nil
	}
	return s.followUp(ctx, message), nil
}

func (s *Session) setup(ctx context.Context, message string) Reply {
	l := log.With().Str("phase", string(StateTemplate)).Logger()

	if !s.cfg.hasKey() {
		return s.fail(StateIdle, ErrMissingAPIKey)
	}

	s.setState(StateTemplate)
	resp, err := s.backend.Template(ctx, sftypes.TemplateRequest{
		Prompt: message,
		APIKey: s.cfg.APIKey,
		Model:  s.cfg.Model,
	})
	if err != nil {
		l.Err(err).Msg("template call failed")
		// templateSet stays false, so the next Send retries the template call
		return s.fail(StateIdle, fmt.Errorf("template: %w", err))
	}

	var tmpl []sftypes.Step
	if len(resp.UIPrompts) > 0 {
		tmpl = stamp(artifact.Parse(resp.UIPrompts[0]), sftypes.PhaseTemplate, 0)
	}
	seed := make([]sftypes.Message, 0, len(resp.Prompts)+1)
	for _, p := range resp.Prompts {
		seed = append(seed, sftypes.Message{Role: sftypes.RoleUser, Content: p})
	}
	seed = append(seed, sftypes.Message{Role: sftypes.RoleUser, Content: message})

	s.mu.Lock()
	prev := s.filesLocked()
	s.templateSet = true
	s.templateSteps = append(s.templateSteps, tmpl...)
	s.seed = seed
	s.state = StateGeneration
	s.chat = append(s.chat, sftypes.Message{Role: sftypes.RoleAssistant, Content: GeneratingText})
	s.mu.Unlock()
	l.Debug().Int("steps", len(tmpl)).Msg("template steps applied")

	response, err := s.backend.Chat(ctx, sftypes.ChatRequest{
		Messages: seed,
		APIKey:   s.cfg.APIKey,
		Model:    s.cfg.Model,
	})
	if err != nil {
		log.Err(err).Str("phase", string(StateGeneration)).Msg("generation call failed")
		return s.fail(StateComplete, fmt.Errorf("generation: %w", err))
	}

	text, ok := artifact.Title(response)
	if !ok {
		text = SetupDoneText
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	gen := stamp(artifact.Parse(response), sftypes.PhaseGeneration, len(s.generationSteps))
	s.generationSteps = append(s.generationSteps, gen...)
	s.transcript = append(s.transcript, s.seed...)
	s.transcript = append(s.transcript, sftypes.Message{Role: sftypes.RoleAssistant, Content: response})
	s.seed = nil
	s.state = StateComplete
	s.preview = true
	s.tab = TabPreview
	s.chat = append(s.chat, sftypes.Message{Role: sftypes.RoleAssistant, Content: text})

	return Reply{
		Text:    text,
		Steps:   append(append([]sftypes.Step{}, tmpl...), gen...),
		Changes: filetree.Diff(prev, s.filesLocked()),
		Preview: true,
	}
}

func (s *Session) followUp(ctx context.Context, message string) Reply {
	user := sftypes.Message{Role: sftypes.RoleUser, Content: message}

	if !s.cfg.hasKey() {
		return s.fail(StateComplete, ErrMissingAPIKey)
	}

	s.mu.Lock()
	s.state = StateGeneration
	messages := make([]sftypes.Message, 0, len(s.seed)+len(s.transcript)+1)
	messages = append(messages, s.seed...)
	messages = append(messages, s.transcript...)
	messages = append(messages, user)
	s.chat = append(s.chat, sftypes.Message{Role: sftypes.RoleAssistant, Content: GeneratingText})
	s.mu.Unlock()

	response, err := s.backend.Chat(ctx, sftypes.ChatRequest{
		Messages: messages,
		APIKey:   s.cfg.APIKey,
		Model:    s.cfg.Model,
	})
	if err != nil {
		log.Err(err).Str("phase", string(StateGeneration)).Msg("follow-up call failed")
		return s.fail(StateComplete, fmt.Errorf("generation: %w", err))
	}

	text, ok := artifact.Title(response)
	if !ok {
		text = response
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.filesLocked()
	gen := stamp(artifact.Parse(response), sftypes.PhaseGeneration, len(s.generationSteps))
	s.generationSteps = append(s.generationSteps, gen...)
	s.transcript = append(s.transcript, s.seed...)
	s.transcript = append(s.transcript, user, sftypes.Message{Role: sftypes.RoleAssistant, Content: response})
	s.seed = nil
	s.state = StateComplete
	s.preview = true
	s.tab = TabPreview
	s.chat = append(s.chat, sftypes.Message{Role: sftypes.RoleAssistant, Content: text})

	return Reply{
		Text:    text,
		Steps:   gen,
		Changes: filetree.Diff(prev, s.filesLocked()),
		Preview: true,
	}
}

// fail records the error message and moves the session to state. Preview is
// re-enabled so the caller never stays stuck in a loading state, but the
// active tab is left alone.
func (s *Session) fail(state State, cause error) Reply {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state = state
	s.preview = true
	s.chat = append(s.chat, sftypes.Message{Role: sftypes.RoleAssistant, Content: ErrorText})
	return Reply{Text: ErrorText, Preview: true, Failed: true, Cause: cause}
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// stamp assigns phase, completed status and ids unique within the phase's
// accumulated batch.
func stamp(steps []sftypes.Step, phase sftypes.Phase, offset int) []sftypes.Step {
	for i := range steps {
		steps[i].ID = artifact.StepID(phase, offset+i)
		steps[i].Phase = phase
		steps[i].Status = sftypes.StatusCompleted
	}
	return steps
}

func (s *Session) stepsLocked() []sftypes.Step {
	out := make([]sftypes.Step, 0, len(s.templateSteps)+len(s.generationSteps))
	out = append(out, s.templateSteps...)
	return append(out, s.generationSteps...)
}

func (s *Session) filesLocked() []sftypes.FileItem {
	return filetree.Build(s.stepsLocked())
}

// Steps returns a copy of all accumulated steps, template steps first.
func (s *Session) Steps() []sftypes.Step {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stepsLocked()
}

// Transcript returns a copy of the messages replayed to the generation endpoint.
func (s *Session) Transcript() []sftypes.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sftypes.Message{}, s.transcript...)
}

// Chat returns a copy of the user-visible conversation.
func (s *Session) Chat() []sftypes.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sftypes.Message{}, s.chat...)
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) PreviewEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.preview
}

func (s *Session) ActiveTab() Tab {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tab
}

// Files rebuilds the file tree from every accumulated step.
func (s *Session) Files() []sftypes.FileItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filesLocked()
}

// Mount projects the current file tree for a sandbox runtime.
func (s *Session) Mount() mount.Tree {
	return mount.Project(s.Files())
}
