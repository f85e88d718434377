package filetree

import (
	"testing"

	sftypes "github.com/cyber-nic/scaffold/libs/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func file(path, code string) sftypes.Step {
	return sftypes.Step{Type: sftypes.StepCreateFile, Path: path, Code: code}
}

func TestBuildSingleFile(t *testing.T) {
	tree := Build([]sftypes.Step{
		file("index.js", "console.log(1)"),
		{Type: sftypes.StepRunScript, Code: "npm install"},
	})

	require.Len(t, tree, 1)
	f, ok := tree[0].(*sftypes.File)
	require.True(t, ok)
	assert.Equal(t, &sftypes.File{Name: "index.js", Path: "index.js", Content: "console.log(1)"}, f)
}

func TestBuildOverwrite(t *testing.T) {
	tree := Build([]sftypes.Step{
		file("/a/b.txt", "1"),
		file("/a/b.txt", "2"),
	})

	require.Len(t, tree, 1)
	folder := tree[0].(*sftypes.Folder)
	assert.Equal(t, "a", folder.Name)
	assert.Equal(t, "a", folder.Path)
	require.Len(t, folder.Children, 1)

	f := folder.Children[0].(*sftypes.File)
	assert.Equal(t, "a/b.txt", f.Path)
	assert.Equal(t, "2", f.Content)
}

func TestBuildFolderReuse(t *testing.T) {
	tree := Build([]sftypes.Step{
		file("/src/a.ts", "x"),
		file("/src/b.ts", "y"),
	})

	require.Len(t, tree, 1)
	src := tree[0].(*sftypes.Folder)
	assert.Equal(t, "src", src.Name)
	require.Len(t, src.Children, 2)
	assert.Equal(t, "a.ts", src.Children[0].ItemName())
	assert.Equal(t, "b.ts", src.Children[1].ItemName())
}

func TestBuildMalformedPaths(t *testing.T) {
	tree := Build([]sftypes.Step{
		file("", "empty"),
		{Type: sftypes.StepCreateFile, Code: "missing"},
		file("/", "root only"),
		file("../escape.txt", "nope"),
		file("ok.txt", "fine"),
	})

	require.Len(t, tree, 1)
	assert.Equal(t, "ok.txt", tree[0].ItemPath())
}

func TestBuildTypeFixedByFirstCreation(t *testing.T) {
	tree := Build([]sftypes.Step{
		file("src/app.js", "a"),
		file("src", "file over folder"),
		file("src/app.js/inner.js", "folder over file"),
		file("src/app.js", "b"),
	})

	require.Len(t, tree, 1)
	src := tree[0].(*sftypes.Folder)
	require.Len(t, src.Children, 1)
	f := src.Children[0].(*sftypes.File)
	assert.Equal(t, "b", f.Content)
}

func TestBuildNormalizesSegments(t *testing.T) {
	tree := Build([]sftypes.Step{
		file("src//components/./Button.jsx", "btn"),
		file("/src/main.jsx", "main"),
	})

	require.Len(t, tree, 1)
	src := tree[0].(*sftypes.Folder)
	assert.Equal(t, "src", src.Path)
	require.Len(t, src.Children, 2)
	assert.Equal(t, "src/components", src.Children[0].ItemPath())
	assert.Equal(t, "src/main.jsx", src.Children[1].ItemPath())

	btn, ok := Find(tree, "/src/components/Button.jsx")
	require.True(t, ok)
	assert.Equal(t, "btn", btn.(*sftypes.File).Content)
}

func TestBuildDeterministic(t *testing.T) {
	steps := []sftypes.Step{
		file("package.json", "{}"),
		file("src/z.js", "z"),
		file("src/a.js", "a"),
		file("public/index.html", "<html></html>"),
		file("src/lib/util.js", "u"),
		file("src/a.js", "a2"),
	}

	assert.Equal(t, Build(steps), Build(steps))

	var paths []string
	Walk(Build(steps), func(item sftypes.FileItem) bool {
		paths = append(paths, item.ItemPath())
		return true
	})
	assert.Equal(t, []string{
		"package.json",
		"src", "src/z.js", "src/a.js", "src/lib", "src/lib/util.js",
		"public", "public/index.html",
	}, paths)
}

func TestFirstFileAndFind(t *testing.T) {
	tree := Build([]sftypes.Step{
		file("src/deep/x.js", "x"),
		file("README.md", "r"),
	})

	first, ok := FirstFile(tree)
	require.True(t, ok)
	assert.Equal(t, "src/deep/x.js", first.Path)

	_, ok = Find(tree, "src/missing.js")
	assert.False(t, ok)

	folder, ok := Find(tree, "src/deep")
	require.True(t, ok)
	assert.IsType(t, &sftypes.Folder{}, folder)

	_, ok = FirstFile(nil)
	assert.False(t, ok)
}

func TestDiff(t *testing.T) {
	prev := Build([]sftypes.Step{
		file("a.txt", "one\ntwo\nthree\n"),
		file("b.txt", "same\n"),
	})
	next := Build([]sftypes.Step{
		file("a.txt", "one\n2\nthree\nfour\n"),
		file("b.txt", "same\n"),
		file("c.txt", "new\nfile"),
	})

	changes := Diff(prev, next)
	require.Len(t, changes, 3)
	assert.Equal(t, Change{Path: "a.txt", Kind: Updated, Additions: 2, Deletions: 1}, changes[0])
	assert.Equal(t, Change{Path: "b.txt", Kind: Unchanged}, changes[1])
	assert.Equal(t, Change{Path: "c.txt", Kind: Created, Additions: 2}, changes[2])
}
