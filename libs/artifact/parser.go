// Package artifact turns model-emitted artifact markup into build steps.
//
// An artifact is a <boltArtifact title="..."> container holding <boltAction>
// tags. Actions with type="file" carry a filePath attribute and the file
// contents as inner text; actions with type="shell" carry a command.
package artifact

import (
	"fmt"
	"regexp"
	"strings"

	sftypes "github.com/cyber-nic/scaffold/libs/types"
	"github.com/google/uuid"
)

const (
	actionFile  = "file"
	actionShell = "shell"

	containerClose = "</boltArtifact>"
	actionClose    = "</boltAction>"
)

var (
	containerRe = regexp.MustCompile(`<boltArtifact\b([^>]*)>`)
	actionRe    = regexp.MustCompile(`<boltAction\b([^>]*)>`)
	attrRe      = regexp.MustCompile(`([A-Za-z_:][-A-Za-z0-9_:.]*)\s*=\s*(?:"([^"]*)"|'([^']*)')`)

	stepNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/cyber-nic/scaffold/steps"))
)

// Artifact is one parsed container.
type Artifact struct {
	ID    string
	Title string
	Steps []sftypes.Step
}

// StepID derives a stable step id from the producing phase and the step's
// position in the accumulated batch.
func StepID(phase sftypes.Phase, index int) string {
	return uuid.NewSHA1(stepNamespace, []byte(fmt.Sprintf("%s/%d", phase, index))).String()
}

// ParseArtifacts returns every well-formed container in source order.
func ParseArtifacts(markup string) []Artifact {
	var out []Artifact
	index := 0

	scanTags(markup, containerRe, containerClose, func(rawAttrs, body string) bool {
		attrs := parseAttrs(rawAttrs)
		a := Artifact{ID: attrs["id"], Title: attrs["title"]}

		scanTags(body, actionRe, actionClose, func(rawAttrs, body string) bool {
			step, ok := toStep(parseAttrs(rawAttrs), body)
			if ok {
				step.ID = StepID("", index)
				index++
				a.Steps = append(a.Steps, step)
			}
			return true
		})
		out = append(out, a)
		return true
	})

	return out
}

// Parse flattens all containers of markup into an ordered step sequence.
// Unrecognized or malformed tags are skipped.
func Parse(markup string) []sftypes.Step {
	steps := []sftypes.Step{}
	for _, a := range ParseArtifacts(markup) {
		steps = append(steps, a.Steps...)
	}
	return steps
}

// Title returns the title attribute of the first container in markup.
func Title(markup string) (string, bool) {
	var (
		title string
		ok    bool
	)
	scanTags(markup, containerRe, containerClose, func(rawAttrs, _ string) bool {
		title, ok = parseAttrs(rawAttrs)["title"]
		return false
	})
	return title, ok
}

// scanTags calls fn with the attributes and body of every terminated tag
// opened by open and closed by closeTag, in source order, until fn returns
// false. A tag whose body holds another opening tag is unterminated; it is
// skipped and scanning resumes at that inner tag.
func scanTags(s string, open *regexp.Regexp, closeTag string, fn func(attrs, body string) bool) {
	for {
		loc := open.FindStringSubmatchIndex(s)
		if loc == nil {
			return
		}
		rest := s[loc[1]:]
		end := strings.Index(rest, closeTag)
		if end < 0 {
			return
		}
		body := rest[:end]
		if next := open.FindStringIndex(body); next != nil {
			s = rest[next[0]:]
			continue
		}
		if !fn(s[loc[2]:loc[3]], body) {
			return
		}
		s = rest[end+len(closeTag):]
	}
}

func toStep(attrs map[string]string, body string) (sftypes.Step, bool) {
	switch attrs["type"] {
	case actionFile:
		path := strings.TrimSpace(attrs["filePath"])
		if path == "" {
			return sftypes.Step{}, false
		}
		return sftypes.Step{
			Type:  sftypes.StepCreateFile,
			Title: "Create " + path,
			Path:  path,
			Code:  trimLeadingNewline(body),
		}, true
	case actionShell:
		return sftypes.Step{
			Type:  sftypes.StepRunScript,
			Title: "Run command",
			Code:  strings.TrimSpace(body),
		}, true
	default:
		return sftypes.Step{}, false
	}
}

func trimLeadingNewline(s string) string {
	if strings.HasPrefix(s, "\r\n") {
		return s[2:]
	}
	return strings.TrimPrefix(s, "\n")
}

func parseAttrs(raw string) map[string]string {
	attrs := map[string]string{}
	for _, m := range attrRe.FindAllStringSubmatch(raw, -1) {
		if _, seen := attrs[m[1]]; seen {
			continue
		}
		v := m[2]
		if v == "" {
			v = m[3]
		}
		attrs[m[1]] = v
	}
	return attrs
}
