// Package mount projects a file tree into the nested directory/file structure
// accepted by a sandbox runtime.
package mount

import (
	"encoding/json"
	"path"

	sftypes "github.com/cyber-nic/scaffold/libs/types"
)

// Tree maps node names to nodes at one directory level.
type Tree map[string]Node

// Node is either a directory or a file; exactly one field is set.
type Node struct {
	Directory Tree
	File      *FileContents
}

type FileContents struct {
	Contents string `json:"contents"`
}

// IsDir reports whether n is a directory node.
func (n Node) IsDir() bool { return n.File == nil }

func (n Node) MarshalJSON() ([]byte, error) {
	if n.File != nil {
		return json.Marshal(struct {
			File *FileContents `json:"file"`
		}{n.File})
	}
	dir := n.Directory
	if dir == nil {
		dir = Tree{}
	}
	return json.Marshal(struct {
		Directory Tree `json:"directory"`
	}{dir})
}

func (n *Node) UnmarshalJSON(data []byte) error {
	var raw struct {
		Directory Tree          `json:"directory"`
		File      *FileContents `json:"file"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	n.File = raw.File
	n.Directory = raw.Directory
	if n.File == nil && n.Directory == nil {
		n.Directory = Tree{}
	}
	return nil
}

// Project converts tree into a mount Tree. The input is not modified.
func Project(tree []sftypes.FileItem) Tree {
	out := Tree{}
	for _, item := range tree {
		out[item.ItemName()] = project(item)
	}
	return out
}

func project(item sftypes.FileItem) Node {
	switch n := item.(type) {
	case *sftypes.Folder:
		return Node{Directory: Project(n.Children)}
	case *sftypes.File:
		return Node{File: &FileContents{Contents: n.Content}}
	default:
		return Node{Directory: Tree{}}
	}
}

// Files flattens t into a map of slash-separated relative paths to contents.
func (t Tree) Files() map[string]string {
	out := map[string]string{}
	t.walk("", func(p string, n Node) {
		if n.File != nil {
			out[p] = n.File.Contents
		}
	})
	return out
}

// Dirs lists the relative paths of every directory in t.
func (t Tree) Dirs() []string {
	var out []string
	t.walk("", func(p string, n Node) {
		if n.IsDir() {
			out = append(out, p)
		}
	})
	return out
}

func (t Tree) walk(prefix string, fn func(string, Node)) {
	for name, n := range t {
		p := path.Join(prefix, name)
		fn(p, n)
		if n.IsDir() {
			n.Directory.walk(p, fn)
		}
	}
}
