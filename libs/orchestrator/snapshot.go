package orchestrator

import (
	sftypes "github.com/cyber-nic/scaffold/libs/types"
)

// Snapshot is the persistent form of a Session.
type Snapshot struct {
	State           State             `json:"state"`
	TemplateSet     bool              `json:"templateSet"`
	Preview         bool              `json:"preview"`
	Tab             Tab               `json:"tab"`
	TemplateSteps   []sftypes.Step    `json:"templateSteps"`
	GenerationSteps []sftypes.Step    `json:"generationSteps"`
	Seed            []sftypes.Message `json:"seed,omitempty"`
	Transcript      []sftypes.Message `json:"transcript"`
	Chat            []sftypes.Message `json:"chat"`
}

// Snapshot copies the session state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Snapshot{
		State:           s.state,
		TemplateSet:     s.templateSet,
		Preview:         s.preview,
		Tab:             s.tab,
		TemplateSteps:   append([]sftypes.Step{}, s.templateSteps...),
		GenerationSteps: append([]sftypes.Step{}, s.generationSteps...),
		Seed:            append([]sftypes.Message{}, s.seed...),
		Transcript:      append([]sftypes.Message{}, s.transcript...),
		Chat:            append([]sftypes.Message{}, s.chat...),
	}
}

// Restore rebuilds a session from snap. A snapshot taken mid-call resumes in
// a usable state: template sessions fall back to idle, generation ones to
// complete.
func Restore(backend Backend, cfg Config, snap Snapshot) *Session {
	s := New(backend, cfg)

	s.templateSet = snap.TemplateSet
	s.triggered = snap.TemplateSet || len(snap.Chat) > 0
	s.preview = snap.Preview
	s.tab = snap.Tab
	if s.tab == "" {
		s.tab = TabCode
	}
	s.templateSteps = append(s.templateSteps, snap.TemplateSteps...)
	s.generationSteps = append(s.generationSteps, snap.GenerationSteps...)
	s.seed = append(s.seed, snap.Seed...)
	s.transcript = append(s.transcript, snap.Transcript...)
	s.chat = append(s.chat, snap.Chat...)

	switch snap.State {
	case StateComplete:
		s.state = StateComplete
	case StateGeneration:
		s.state = StateComplete
		s.preview = true
	case StateTemplate, StateIdle, "":
		s.state = StateIdle
		if s.templateSet {
			s.state = StateComplete
		}
	default:
		s.state = StateIdle
	}

	return s
}
