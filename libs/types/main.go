package sftypes

import (
	"encoding/json"
	"strings"
)

// StepType discriminates build instructions extracted from model output.
type StepType string

const (
	StepCreateFile   StepType = "create-file"
	StepCreateFolder StepType = "create-folder"
	StepEditFile     StepType = "edit-file"
	StepDeleteFile   StepType = "delete-file"
	StepRunScript    StepType = "run-script"
)

// Valid reports whether t is one of the known step types.
func (t StepType) Valid() bool {
	switch t {
	case StepCreateFile, StepCreateFolder, StepEditFile, StepDeleteFile, StepRunScript:
		return true
	default:
		return false
	}
}

type StepStatus string

const (
	StatusPending    StepStatus = "pending"
	StatusInProgress StepStatus = "in-progress"
	StatusCompleted  StepStatus = "completed"
)

// Phase tags the conversation phase that produced a step.
type Phase string

const (
	PhaseTemplate   Phase = "template"
	PhaseGeneration Phase = "generation"
)

// Step is one instruction extracted from model output.
type Step struct {
	ID          string     `json:"id"`
	Type        StepType   `json:"type"`
	Title       string     `json:"title,omitempty"`
	Description string     `json:"description,omitempty"`
	Path        string     `json:"path,omitempty"`
	Code        string     `json:"code,omitempty"`
	Status      StepStatus `json:"status,omitempty"`
	Phase       Phase      `json:"phase,omitempty"`
}

// FileItem is a node of the project file tree: either *File or *Folder.
type FileItem interface {
	ItemName() string
	ItemPath() string
	fileItem()
}

// File is a leaf of the file tree.
type File struct {
	Name    string `json:"name"`
	Path    string `json:"path"`
	Content string `json:"content"`
}

// Folder holds children in first-seen order.
type Folder struct {
	Name     string     `json:"name"`
	Path     string     `json:"path"`
	Children []FileItem `json:"children"`
}

func (f *File) ItemName() string   { return f.Name }
func (f *File) ItemPath() string   { return f.Path }
func (*File) fileItem()            {}
func (f *Folder) ItemName() string { return f.Name }
func (f *Folder) ItemPath() string { return f.Path }
func (*Folder) fileItem()          {}

func (f *File) MarshalJSON() ([]byte, error) {
	type file File
	return json.Marshal(struct {
		Type string `json:"type"`
		*file
	}{"file", (*file)(f)})
}

func (f *Folder) MarshalJSON() ([]byte, error) {
	type folder Folder
	v := struct {
		Type string `json:"type"`
		*folder
	}{"folder", (*folder)(f)}
	if v.Children == nil {
		cp := *v.folder
		cp.Children = []FileItem{}
		v.folder = &cp
	}
	return json.Marshal(v)
}

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one transcript entry replayed to the generation endpoint.
type Message struct {
	Role    Role   `json:"role" jsonschema:"enum=user,enum=assistant"`
	Content string `json:"content"`
}

// OllamaPrefix marks a model name served by a local Ollama instance.
const OllamaPrefix = "ollama:"

// RequiresAPIKey reports whether model is served by a hosted provider.
func RequiresAPIKey(model string) bool {
	return !strings.HasPrefix(model, OllamaPrefix)
}

// TemplateRequest is the body of POST /template.
type TemplateRequest struct {
	Prompt string `json:"prompt"`
	APIKey string `json:"apiKey"`
	Model  string `json:"model,omitempty"`
}

// TemplateResponse carries the seed prompts for the generation phase and the
// template artifact shown to the user.
type TemplateResponse struct {
	Prompts   []string `json:"prompts"`
	UIPrompts []string `json:"uiPrompts"`
}

// ChatRequest is the body of POST /chat and of /chat/stream frames.
type ChatRequest struct {
	Messages []Message `json:"messages"`
	APIKey   string    `json:"apiKey"`
	Model    string    `json:"model,omitempty"`
}

type ChatResponse struct {
	Response string `json:"response"`
	Success  bool   `json:"success"`
}

// ErrorResponse is returned with 400 and 500 statuses.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// StreamFrame is a server frame on /chat/stream.
type StreamFrame struct {
	Type string `json:"type" jsonschema:"enum=chunk,enum=done,enum=error"`
	Data string `json:"data"`
}

const (
	FrameChunk = "chunk"
	FrameDone  = "done"
	FrameError = "error"
)
