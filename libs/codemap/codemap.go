// Package codemap runs generated files through tree-sitter to list their
// identifiers and flag syntax errors.
package codemap

import (
	"path/filepath"
	"regexp"
	"sort"

	sftypes "github.com/cyber-nic/scaffold/libs/types"
	"github.com/rs/zerolog/log"
	sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_go "github.com/tree-sitter/tree-sitter-go/bindings/go"
	tree_sitter_javascript "github.com/tree-sitter/tree-sitter-javascript/bindings/go"
	tree_sitter_python "github.com/tree-sitter/tree-sitter-python/bindings/go"
	tree_sitter_typescript "github.com/tree-sitter/tree-sitter-typescript/bindings/go"
)

var whitespaceRegex = regexp.MustCompile(`\s`)

// Report describes one analyzed file. Error positions are 1-based and only
// set when HasErrors is true.
type Report struct {
	Path        string   `json:"path"`
	Language    string   `json:"language"`
	Symbols     []string `json:"symbols"`
	HasErrors   bool     `json:"hasErrors"`
	ErrorLine   int      `json:"errorLine,omitempty"`
	ErrorColumn int      `json:"errorColumn,omitempty"`
}

func getLanguage(path string) (string, *sitter.Language) {
	switch filepath.Ext(path) {
	case ".go":
		return "go", sitter.NewLanguage(tree_sitter_go.Language())
	case ".js", ".jsx", ".mjs", ".cjs":
		return "javascript", sitter.NewLanguage(tree_sitter_javascript.Language())
	case ".py":
		return "python", sitter.NewLanguage(tree_sitter_python.Language())
	case ".ts":
		return "typescript", sitter.NewLanguage(tree_sitter_typescript.LanguageTypescript())
	case ".tsx":
		return "tsx", sitter.NewLanguage(tree_sitter_typescript.LanguageTSX())
	default:
		return "", nil
	}
}

// Supported reports whether Analyze understands path.
func Supported(path string) bool {
	_, lang := getLanguage(path)
	return lang != nil
}

// Analyze parses every supported file and returns one report per file, in
// input order. Unsupported files are skipped.
func Analyze(files []*sftypes.File) []Report {
	parser := sitter.NewParser()
	defer parser.Close()

	out := []Report{}
	for _, f := range files {
		name, lang := getLanguage(f.Path)
		if lang == nil {
			continue
		}
		if err := parser.SetLanguage(lang); err != nil {
			log.Warn().Err(err).Str("path", f.Path).Msg("set language")
			continue
		}

		code := []byte(f.Content)
		tree := parser.Parse(code, nil)
		if tree == nil {
			log.Warn().Str("path", f.Path).Msg("parse failed")
			continue
		}
		log.Trace().Str("path", f.Path).Msg("Parsed")

		root := tree.RootNode()
		r := Report{
			Path:     f.Path,
			Language: name,
			Symbols:  identifiers(root, code),
		}
		if root.HasError() {
			r.HasErrors = true
			if n := firstError(root); n != nil {
				pos := n.StartPosition()
				r.ErrorLine = int(pos.Row) + 1
				r.ErrorColumn = int(pos.Column) + 1
			}
		}
		tree.Close()

		out = append(out, r)
	}
	return out
}

var identifierKinds = map[string]bool{
	"identifier":          true,
	"field_identifier":    true,
	"package_identifier":  true,
	"property_identifier": true,
	"type_identifier":     true,
}

// identifiers collects the distinct identifier names under root, sorted.
func identifiers(root *sitter.Node, code []byte) []string {
	terms := map[string]bool{}

	var collect func(*sitter.Node)
	collect = func(n *sitter.Node) {
		if n == nil {
			return
		}
		if n.IsNamed() && identifierKinds[n.Kind()] {
			text := string(code[n.StartByte():n.EndByte()])
			if len(text) > 1 && !whitespaceRegex.MatchString(text) {
				terms[text] = true
			}
		}
		for i := uint(0); i < n.NamedChildCount(); i++ {
			collect(n.NamedChild(i))
		}
	}
	collect(root)

	keywords := make([]string, 0, len(terms))
	for t := range terms {
		keywords = append(keywords, t)
	}
	sort.Strings(keywords)
	return keywords
}

// firstError returns the first ERROR or MISSING node in document order.
func firstError(n *sitter.Node) *sitter.Node {
	if n == nil {
		return nil
	}
	if n.IsError() || n.IsMissing() {
		return n
	}
	if !n.HasError() {
		return nil
	}
	for i := uint(0); i < n.ChildCount(); i++ {
		if e := firstError(n.Child(i)); e != nil {
			return e
		}
	}
	return nil
}
