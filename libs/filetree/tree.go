// Package filetree folds accumulated build steps into a hierarchical file tree.
package filetree

import (
	"strings"

	sftypes "github.com/cyber-nic/scaffold/libs/types"
	"github.com/rs/zerolog/log"
)

// Build folds steps into a tree. Only CreateFile steps shape the tree; the
// result depends solely on the order of steps.
func Build(steps []sftypes.Step) []sftypes.FileItem {
	root := &sftypes.Folder{}

	for _, step := range steps {
		switch step.Type {
		case sftypes.StepCreateFile:
			apply(root, step)
		case sftypes.StepCreateFolder, sftypes.StepEditFile, sftypes.StepDeleteFile, sftypes.StepRunScript:
			// visible in step logs only
		default:
			log.Debug().Str("id", step.ID).Str("type", string(step.Type)).Msg("unknown step type")
		}
	}

	return root.Children
}

// splitPath returns the non-empty segments of p. ok is false when no segment
// remains or a segment climbs out of the root.
func splitPath(p string) (segs []string, ok bool) {
	for _, s := range strings.Split(p, "/") {
		switch s {
		case "", ".":
			continue
		case "..":
			return nil, false
		}
		segs = append(segs, s)
	}
	return segs, len(segs) > 0
}

// childPath joins name under a parent node path. Node paths are relative
// to the project root, so "/src/a.js" and "src/a.js" name the same node.
func childPath(parent, name string) string {
	if parent == "" {
		return name
	}
	return parent + "/" + name
}

func child(parent *sftypes.Folder, name string) sftypes.FileItem {
	for _, c := range parent.Children {
		if c.ItemName() == name {
			return c
		}
	}
	return nil
}

func apply(root *sftypes.Folder, step sftypes.Step) {
	l := log.With().Str("id", step.ID).Str("path", step.Path).Logger()

	segs, ok := splitPath(step.Path)
	if !ok {
		l.Debug().Msg("dropping step with unusable path")
		return
	}

	// validate against the existing tree before mutating it
	parent := root
	for i, seg := range segs {
		c := child(parent, seg)
		if c == nil {
			break
		}
		last := i == len(segs)-1
		switch n := c.(type) {
		case *sftypes.Folder:
			if last {
				l.Debug().Msg("dropping file step: path is a folder")
				return
			}
			parent = n
		case *sftypes.File:
			if !last {
				l.Debug().Msg("dropping file step: parent is a file")
				return
			}
		}
	}

	parent = root
	for _, seg := range segs[:len(segs)-1] {
		switch n := child(parent, seg).(type) {
		case *sftypes.Folder:
			parent = n
		case nil:
			folder := &sftypes.Folder{Name: seg, Path: childPath(parent.Path, seg)}
			parent.Children = append(parent.Children, folder)
			parent = folder
		}
	}

	name := segs[len(segs)-1]
	if f, ok := child(parent, name).(*sftypes.File); ok {
		f.Content = step.Code
		return
	}
	parent.Children = append(parent.Children, &sftypes.File{
		Name:    name,
		Path:    childPath(parent.Path, name),
		Content: step.Code,
	})
}

// Walk visits every node depth-first in child order. Returning false from fn
// stops the walk.
func Walk(tree []sftypes.FileItem, fn func(sftypes.FileItem) bool) bool {
	for _, item := range tree {
		if !fn(item) {
			return false
		}
		if folder, ok := item.(*sftypes.Folder); ok {
			if !Walk(folder.Children, fn) {
				return false
			}
		}
	}
	return true
}

// Files lists the files of tree depth-first.
func Files(tree []sftypes.FileItem) []*sftypes.File {
	var out []*sftypes.File
	Walk(tree, func(item sftypes.FileItem) bool {
		if f, ok := item.(*sftypes.File); ok {
			out = append(out, f)
		}
		return true
	})
	return out
}

// FirstFile returns the first file found depth-first.
func FirstFile(tree []sftypes.FileItem) (*sftypes.File, bool) {
	var found *sftypes.File
	Walk(tree, func(item sftypes.FileItem) bool {
		if f, ok := item.(*sftypes.File); ok {
			found = f
			return false
		}
		return true
	})
	return found, found != nil
}

// Find looks a node up by path. Leading separators are ignored.
func Find(tree []sftypes.FileItem, path string) (sftypes.FileItem, bool) {
	segs, ok := splitPath(path)
	if !ok {
		return nil, false
	}

	parent := &sftypes.Folder{Children: tree}
	for i, seg := range segs {
		switch n := child(parent, seg).(type) {
		case *sftypes.Folder:
			if i == len(segs)-1 {
				return n, true
			}
			parent = n
		case *sftypes.File:
			if i == len(segs)-1 {
				return n, true
			}
			return nil, false
		default:
			return nil, false
		}
	}
	return nil, false
}
