package main

import (
	_ "embed"
	"fmt"
	"strings"

	sftypes "github.com/cyber-nic/scaffold/libs/types"
)

var (
	//go:embed prompts/system.md
	systemPrompt string

	//go:embed prompts/base.md
	basePrompt string

	//go:embed prompts/react.xml
	reactTemplate string

	//go:embed prompts/node.xml
	nodeTemplate string
)

const classifyPrompt = "Return either node or react based on what do you think this project should be. Only return a simple word either 'node' or 'react'. Do not return anything extra"

type Template string

const (
	TemplateNode  Template = "node"
	TemplateReact Template = "react"
)

// classify maps a classifier answer to a template. Anything but an exact
// "node" falls back to react.
func classify(answer string) Template {
	if strings.ToLower(strings.TrimSpace(answer)) == string(TemplateNode) {
		return TemplateNode
	}
	return TemplateReact
}

func artifactPrompt(artifact string) string {
	return fmt.Sprintf("Here is an artifact that contains all files of the project visible to you.\n"+
		"Consider the contents of ALL files in the project.\n\n%s\n\n"+
		"Here is a list of files that exist on the file system but are not being shown to you:\n\n"+
		"  - .gitignore\n  - package-lock.json\n", artifact)
}

func templateResponse(t Template) sftypes.TemplateResponse {
	switch t {
	case TemplateNode:
		return sftypes.TemplateResponse{
			Prompts:   []string{artifactPrompt(nodeTemplate)},
			UIPrompts: []string{nodeTemplate},
		}
	default:
		return sftypes.TemplateResponse{
			Prompts:   []string{basePrompt, artifactPrompt(reactTemplate)},
			UIPrompts: []string{reactTemplate},
		}
	}
}
