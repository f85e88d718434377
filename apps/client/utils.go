package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cyber-nic/scaffold/libs/codemap"
	"github.com/cyber-nic/scaffold/libs/filetree"
	"github.com/cyber-nic/scaffold/libs/orchestrator"
	sftypes "github.com/cyber-nic/scaffold/libs/types"
	sfutils "github.com/cyber-nic/scaffold/libs/utils"
	"github.com/logrusorgru/aurora/v4"
)

const apiKeyEnv = "SCAFFOLD_API_KEY"

// resolveAPIKey prefers the flag, then the environment, then ~/.secrets.
func resolveAPIKey(flagValue string) string {
	if k := strings.TrimSpace(flagValue); k != "" {
		return k
	}
	if k := strings.TrimSpace(os.Getenv(apiKeyEnv)); k != "" {
		return k
	}
	return sfutils.ReadSecret("OPENAI_API_KEY")
}

func defaultDBPath() string {
	homedir, err := os.UserHomeDir()
	if err != nil {
		return "scaffold.db"
	}
	return filepath.Join(homedir, ".scaffold", "sessions.db")
}

func showSpinner(w io.Writer, done <-chan struct{}) {
	spinnerChars := []rune{'|', '/', '-', '\\'}
	for {
		for _, r := range spinnerChars {
			fmt.Fprintf(w, "\rProcessing... %c", r)
			select {
			case <-done:
				fmt.Fprintf(w, "\r%s\r", strings.Repeat(" ", 16)) // Clear the spinner line
				return
			case <-time.After(100 * time.Millisecond):
			}
		}
	}
}

func textPrompt(w io.Writer) {
	fmt.Fprint(w, aurora.Bold("> ").String())
}

func printReply(w io.Writer, r orchestrator.Reply) {
	if r.Failed {
		fmt.Fprintln(w, aurora.Red(r.Text))
		if r.Cause != nil {
			fmt.Fprintln(w, aurora.Faint(r.Cause.Error()))
		}
		return
	}

	fmt.Fprintln(w, aurora.Bold(aurora.Green(r.Text)))
	for _, s := range r.Steps {
		printStep(w, s)
	}
	for _, c := range r.Changes {
		switch c.Kind {
		case filetree.Created:
			fmt.Fprintf(w, "  %s %s\n", aurora.Green("+"), c.Path)
		case filetree.Updated:
			fmt.Fprintf(w, "  %s %s (%s %s)\n", aurora.Yellow("~"), c.Path,
				aurora.Green(fmt.Sprintf("+%d", c.Additions)), aurora.Red(fmt.Sprintf("-%d", c.Deletions)))
		}
	}
}

func printStep(w io.Writer, s sftypes.Step) {
	switch s.Type {
	case sftypes.StepCreateFile:
		fmt.Fprintf(w, "  %s %s\n", aurora.Cyan("create"), s.Path)
	case sftypes.StepRunScript:
		fmt.Fprintf(w, "  %s %s\n", aurora.Magenta("run   "), strings.TrimSpace(s.Code))
	default:
		fmt.Fprintf(w, "  %s %s\n", aurora.Faint(string(s.Type)), s.Path)
	}
}

func printTree(w io.Writer, items []sftypes.FileItem, indent string) {
	for _, item := range items {
		switch n := item.(type) {
		case *sftypes.Folder:
			fmt.Fprintf(w, "%s%s/\n", indent, aurora.Bold(aurora.Blue(n.Name)))
			printTree(w, n.Children, indent+"  ")
		case *sftypes.File:
			fmt.Fprintf(w, "%s%s\n", indent, n.Name)
		}
	}
}

// printWarnings reports syntax errors in the files touched by changes.
func printWarnings(w io.Writer, tree []sftypes.FileItem, changes []filetree.Change) {
	touched := map[string]bool{}
	for _, c := range changes {
		if c.Kind != filetree.Unchanged {
			touched[c.Path] = true
		}
	}
	var files []*sftypes.File
	for _, f := range filetree.Files(tree) {
		if touched[f.Path] {
			files = append(files, f)
		}
	}
	for _, r := range codemap.Analyze(files) {
		if r.HasErrors {
			fmt.Fprintln(w, aurora.Yellow(fmt.Sprintf("warning: %s:%d:%d: syntax error", r.Path, r.ErrorLine, r.ErrorColumn)))
		}
	}
}
