package filetree

import (
	"strings"

	sftypes "github.com/cyber-nic/scaffold/libs/types"
	"github.com/sergi/go-diff/diffmatchpatch"
)

type ChangeKind string

const (
	Created   ChangeKind = "created"
	Updated   ChangeKind = "updated"
	Unchanged ChangeKind = "unchanged"
)

// Change summarizes what happened to one file between two builds.
type Change struct {
	Path      string     `json:"path"`
	Kind      ChangeKind `json:"kind"`
	Additions int        `json:"additions"`
	Deletions int        `json:"deletions"`
}

// Diff reports, in next's file order, how every file of next differs from prev.
func Diff(prev, next []sftypes.FileItem) []Change {
	before := map[string]string{}
	for _, f := range Files(prev) {
		before[f.Path] = f.Content
	}

	var changes []Change
	for _, f := range Files(next) {
		old, existed := before[f.Path]
		switch {
		case !existed:
			changes = append(changes, Change{Path: f.Path, Kind: Created, Additions: countLines(f.Content)})
		case old == f.Content:
			changes = append(changes, Change{Path: f.Path, Kind: Unchanged})
		default:
			add, del := lineChanges(old, f.Content)
			changes = append(changes, Change{Path: f.Path, Kind: Updated, Additions: add, Deletions: del})
		}
	}
	return changes
}

func lineChanges(oldText, newText string) (additions, deletions int) {
	dmp := diffmatchpatch.New()
	a, b, lines := dmp.DiffLinesToChars(oldText, newText)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), lines)

	for _, d := range diffs {
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			additions += countLines(d.Text)
		case diffmatchpatch.DiffDelete:
			deletions += countLines(d.Text)
		}
	}
	return additions, deletions
}

func countLines(s string) int {
	if s == "" {
		return 0
	}
	n := strings.Count(s, "\n")
	if !strings.HasSuffix(s, "\n") {
		n++
	}
	return n
}
