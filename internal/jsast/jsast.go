// Package jsast is a narrow adapter over a JavaScript syntax tree. It
// converts only the node kinds the monitor cares about into plain Go
// values: string literals, template static chunks, function and method
// declarations, and import/export/require targets. Everything else in
// the tree is ignored, and parse failures yield empty results rather
// than errors.
package jsast

import (
	"context"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
)

// Tree is a parsed script ready for harvesting.
type Tree struct {
	src  []byte
	root *sitter.Node
}

// Parse parses src as JavaScript. The returned tree tolerates syntax
// errors inside the source; only a hard parser failure returns an error.
func Parse(ctx context.Context, src []byte) (*Tree, error) {
	parser := sitter.NewParser()
	parser.SetLanguage(javascript.GetLanguage())

	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, err
	}
	return &Tree{src: src, root: tree.RootNode()}, nil
}

// walk visits every named node in the tree, depth first.
func (t *Tree) walk(node *sitter.Node, visit func(*sitter.Node)) {
	if node == nil {
		return
	}
	visit(node)
	for i := 0; i < int(node.NamedChildCount()); i++ {
		t.walk(node.NamedChild(i), visit)
	}
}

// Literals returns the contents of every string literal, quotes stripped.
func (t *Tree) Literals() []string {
	var out []string
	t.walk(t.root, func(n *sitter.Node) {
		if n.Type() != "string" {
			return
		}
		out = append(out, stripQuotes(n.Content(t.src)))
	})
	return out
}

// TemplateChunks returns the static text chunks of every template
// literal, with interpolation blocks and backticks removed. Chunks are
// sliced between substitution nodes by byte range, so nested templates
// inside interpolations contribute their own chunks separately.
func (t *Tree) TemplateChunks() []string {
	var out []string
	t.walk(t.root, func(n *sitter.Node) {
		if n.Type() != "template_string" {
			return
		}

		start := n.StartByte() + 1 // skip opening backtick
		end := n.EndByte()
		if end > start {
			end-- // skip closing backtick
		}

		cursor := start
		for i := 0; i < int(n.NamedChildCount()); i++ {
			sub := n.NamedChild(i)
			if sub.Type() != "template_substitution" {
				continue
			}
			if sub.StartByte() > cursor {
				out = append(out, string(t.src[cursor:sub.StartByte()]))
			}
			cursor = sub.EndByte()
		}
		if end > cursor {
			out = append(out, string(t.src[cursor:end]))
		}
	})
	return out
}

// Features returns declared function/method names and the string targets
// of import/export/require forms. Variables initialized to an arrow or
// anonymous function count as function declarations.
func (t *Tree) Features() (funcs []string, imports []string) {
	seenFunc := make(map[string]bool)
	seenImport := make(map[string]bool)

	addFunc := func(name string) {
		if name != "" && !seenFunc[name] {
			seenFunc[name] = true
			funcs = append(funcs, name)
		}
	}
	addImport := func(target string) {
		if target != "" && !seenImport[target] {
			seenImport[target] = true
			imports = append(imports, target)
		}
	}

	t.walk(t.root, func(n *sitter.Node) {
		switch n.Type() {
		case "function_declaration", "generator_function_declaration", "method_definition":
			if name := n.ChildByFieldName("name"); name != nil {
				addFunc(name.Content(t.src))
			}

		case "variable_declarator":
			value := n.ChildByFieldName("value")
			if value == nil {
				return
			}
			switch value.Type() {
			case "arrow_function", "function", "function_expression":
				if name := n.ChildByFieldName("name"); name != nil && name.Type() == "identifier" {
					addFunc(name.Content(t.src))
				}
			}

		case "import_statement", "export_statement":
			if source := n.ChildByFieldName("source"); source != nil {
				addImport(stripQuotes(source.Content(t.src)))
			}

		case "call_expression":
			fn := n.ChildByFieldName("function")
			if fn == nil || fn.Type() != "identifier" || fn.Content(t.src) != "require" {
				return
			}
			args := n.ChildByFieldName("arguments")
			if args == nil || args.NamedChildCount() == 0 {
				return
			}
			if arg := args.NamedChild(0); arg.Type() == "string" {
				addImport(stripQuotes(arg.Content(t.src)))
			}
		}
	})

	return funcs, imports
}

// Literals parses src and returns its string literals. Parse failure
// yields nil.
func Literals(src []byte) []string {
	tree, err := Parse(context.Background(), src)
	if err != nil {
		return nil
	}
	return tree.Literals()
}

// TemplateChunks parses src and returns its template static chunks.
// Parse failure yields nil.
func TemplateChunks(src []byte) []string {
	tree, err := Parse(context.Background(), src)
	if err != nil {
		return nil
	}
	return tree.TemplateChunks()
}

// Features parses src and returns its declared names and import
// targets. Parse failure yields nil sets.
func Features(src []byte) (funcs []string, imports []string) {
	tree, err := Parse(context.Background(), src)
	if err != nil {
		return nil, nil
	}
	return tree.Features()
}

func stripQuotes(s string) string {
	if len(s) >= 2 {
		first, last := s[0], s[len(s)-1]
		if (first == '"' && last == '"') ||
			(first == '\'' && last == '\'') ||
			(first == '`' && last == '`') {
			return s[1 : len(s)-1]
		}
	}
	return strings.TrimSpace(s)
}
