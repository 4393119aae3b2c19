package gitimport

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"path"
	"slices"
	"strings"
	"sync"
	"unicode/utf8"
	"unsafe"

	"github.com/alexaandru/go-sitter-forest/c"
	"github.com/alexaandru/go-sitter-forest/cpp"
	golang "github.com/alexaandru/go-sitter-forest/go"
	"github.com/alexaandru/go-sitter-forest/java"
	"github.com/alexaandru/go-sitter-forest/javascript"
	"github.com/alexaandru/go-sitter-forest/python"
	"github.com/alexaandru/go-sitter-forest/rust"
	"github.com/alexaandru/go-sitter-forest/typescript"
	sitter "github.com/alexaandru/go-tree-sitter-bare"
	"github.com/sergi/go-diff/diffmatchpatch"
	"github.com/src-d/enry/v2"

	"github.com/Sumatoshi-tech/testfang/pkg/gitlib"
	"github.com/Sumatoshi-tech/testfang/pkg/safeconv"
)

// Granularity selects what a code element stands for.
type Granularity int

const (
	// FileGranularity records one element per touched path.
	FileGranularity Granularity = iota
	// FunctionGranularity records the functions whose lines a commit touches.
	// Lines outside any function, binary files and languages without a
	// grammar are recorded under the path itself.
	FunctionGranularity
)

// ErrUnknownGranularity is returned by ParseGranularity.
var ErrUnknownGranularity = errors.New("gitimport: unknown granularity")

var errParserPool = errors.New("gitimport: parser pool returned unexpected type")

// ParseGranularity maps "file" or "function" to a Granularity.
func ParseGranularity(s string) (Granularity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "file":
		return FileGranularity, nil
	case "function", "func":
		return FunctionGranularity, nil
	default:
		return FileGranularity, fmt.Errorf("%w: %q", ErrUnknownGranularity, s)
	}
}

// String returns the granularity name.
func (g Granularity) String() string {
	switch g {
	case FileGranularity:
		return "file"
	case FunctionGranularity:
		return "function"
	default:
		return fmt.Sprintf("granularity(%d)", int(g))
	}
}

// grammar describes how functions and their enclosing scopes look in one
// tree-sitter language.
type grammar struct {
	load      func() unsafe.Pointer
	functions map[string]bool
	scopes    map[string]bool

	once sync.Once
	pool sync.Pool
}

// grammars is keyed by enry language name.
var grammars = map[string]*grammar{
	"Go": {
		load:      golang.GetLanguage,
		functions: map[string]bool{"function_declaration": true, "method_declaration": true},
	},
	"Python": {
		load:      python.GetLanguage,
		functions: map[string]bool{"function_definition": true},
		scopes:    map[string]bool{"class_definition": true},
	},
	"Java": {
		load:      java.GetLanguage,
		functions: map[string]bool{"method_declaration": true, "constructor_declaration": true},
		scopes: map[string]bool{
			"class_declaration": true, "interface_declaration": true,
			"enum_declaration": true, "record_declaration": true,
		},
	},
	"JavaScript": {
		load: javascript.GetLanguage,
		functions: map[string]bool{
			"function_declaration": true, "generator_function_declaration": true, "method_definition": true,
		},
		scopes: map[string]bool{"class_declaration": true},
	},
	"TypeScript": {
		load: typescript.GetLanguage,
		functions: map[string]bool{
			"function_declaration": true, "generator_function_declaration": true, "method_definition": true,
		},
		scopes: map[string]bool{"class_declaration": true, "abstract_class_declaration": true},
	},
	"Rust": {
		load:      rust.GetLanguage,
		functions: map[string]bool{"function_item": true},
		scopes:    map[string]bool{"impl_item": true, "trait_item": true, "mod_item": true},
	},
	"C": {
		load:      c.GetLanguage,
		functions: map[string]bool{"function_definition": true},
	},
	"C++": {
		load:      cpp.GetLanguage,
		functions: map[string]bool{"function_definition": true},
		scopes: map[string]bool{
			"class_specifier": true, "struct_specifier": true, "namespace_definition": true,
		},
	},
}

func grammarFor(name string) *grammar {
	return grammars[enry.GetLanguage(path.Base(name), nil)]
}

func (g *grammar) parse(ctx context.Context, content []byte) (*sitter.Tree, error) {
	g.once.Do(func() {
		lang := sitter.NewLanguage(g.load())
		g.pool.New = func() any {
			p := sitter.NewParser()
			p.SetLanguage(lang)

			return p
		}
	})

	p, ok := g.pool.Get().(*sitter.Parser)
	if !ok {
		return nil, errParserPool
	}

	defer g.pool.Put(p)

	return p.ParseString(ctx, nil, content)
}

// span is the inclusive zero-based row range of one function.
type span struct {
	name        string
	first, last int
}

// lineOwners returns, per line, the innermost function covering it.
func (g *grammar) lineOwners(ctx context.Context, content []byte, lines int) ([]string, error) {
	owners := make([]string, lines)
	if len(content) == 0 {
		return owners, nil
	}

	tree, err := g.parse(ctx, content)
	if err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.IsNull() {
		return owners, nil
	}

	var spans []span

	g.collect(root, content, nil, &spans)

	// Spans come in pre-order, so nested functions overwrite their parents.
	for _, s := range spans {
		for l := s.first; l <= s.last && l < lines; l++ {
			owners[l] = s.name
		}
	}

	return owners, nil
}

func (g *grammar) collect(n sitter.Node, src []byte, scope []string, out *[]span) {
	typ := n.Type()

	switch {
	case g.functions[typ]:
		name := nodeName(n, src)
		if name == "" {
			break
		}

		if typ == "method_declaration" {
			if recv := n.ChildByFieldName("receiver"); !recv.IsNull() {
				if ident := findDescendantByType(recv, "type_identifier"); !ident.IsNull() {
					scope = append(slices.Clip(scope), nodeText(ident, src))
				}
			}
		}

		scope = append(slices.Clip(scope), name)
		*out = append(*out, span{
			name:  strings.Join(scope, "."),
			first: safeconv.MustUintToInt(n.StartPoint().Row),
			last:  safeconv.MustUintToInt(n.EndPoint().Row),
		})
	case g.scopes[typ]:
		if name := nodeName(n, src); name != "" {
			scope = append(slices.Clip(scope), name)
		}
	}

	for idx := range n.NamedChildCount() {
		g.collect(n.NamedChild(idx), src, scope, out)
	}
}

// nodeName finds the identifier of a declaration. C-family declarators nest
// the identifier, and Rust impl blocks are named by their type.
func nodeName(n sitter.Node, src []byte) string {
	if name := n.ChildByFieldName("name"); !name.IsNull() {
		return nodeText(name, src)
	}

	if decl := n.ChildByFieldName("declarator"); !decl.IsNull() {
		for next := decl.ChildByFieldName("declarator"); !next.IsNull(); next = decl.ChildByFieldName("declarator") {
			decl = next
		}

		return nodeText(decl, src)
	}

	if typ := n.ChildByFieldName("type"); !typ.IsNull() {
		return nodeText(typ, src)
	}

	return ""
}

func findDescendantByType(n sitter.Node, typ string) sitter.Node {
	if n.Type() == typ {
		return n
	}

	for idx := range n.NamedChildCount() {
		if found := findDescendantByType(n.NamedChild(idx), typ); !found.IsNull() {
			return found
		}
	}

	return sitter.Node{}
}

func nodeText(n sitter.Node, src []byte) string {
	start, end := safeconv.MustUintToInt(n.StartByte()), safeconv.MustUintToInt(n.EndByte())
	if end > len(src) || start > end {
		return ""
	}

	return string(src[start:end])
}

// functionElements returns the code elements one file change touches. The
// diff is line based; every deleted line is charged to the function owning
// it before the change and every inserted line to the one owning it after.
func functionElements(ctx context.Context, repo *gitlib.Repository, change *gitlib.Change) ([]string, error) {
	name := change.Path()

	g := grammarFor(name)
	if g == nil {
		return []string{name}, nil
	}

	before, binary, err := blobContents(ctx, repo, change.From, change.Action != gitlib.Insert)
	if err != nil || binary {
		return []string{name}, err
	}

	after, binary, err := blobContents(ctx, repo, change.To, change.Action != gitlib.Delete)
	if err != nil || binary {
		return []string{name}, err
	}

	dmp := diffmatchpatch.New()
	src, dst, _ := dmp.DiffLinesToRunes(string(before), string(after))
	diffs := dmp.DiffMainRunes(src, dst, false)

	ownersBefore, err := g.lineOwners(ctx, before, len(src))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}

	ownersAfter, err := g.lineOwners(ctx, after, len(dst))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}

	touched := make(map[string]bool)
	mark := func(owners []string, start, size int) {
		for l := start; l < start+size; l++ {
			if l < len(owners) && owners[l] != "" {
				touched[name+":"+owners[l]] = true
			} else {
				touched[name] = true
			}
		}
	}

	var lineBefore, lineAfter int

	for _, edit := range diffs {
		size := utf8.RuneCountInString(edit.Text)

		switch edit.Type {
		case diffmatchpatch.DiffDelete:
			mark(ownersBefore, lineBefore, size)
			lineBefore += size
		case diffmatchpatch.DiffInsert:
			mark(ownersAfter, lineAfter, size)
			lineAfter += size
		case diffmatchpatch.DiffEqual:
			lineBefore += size
			lineAfter += size
		}
	}

	// A pure mode or rename change still touches the file.
	if len(touched) == 0 {
		return []string{name}, nil
	}

	return slices.Sorted(maps.Keys(touched)), nil
}

func blobContents(ctx context.Context, repo *gitlib.Repository, entry gitlib.ChangeEntry, present bool) ([]byte, bool, error) {
	if !present {
		return nil, false, nil
	}

	blob, err := repo.LookupBlob(ctx, entry.Hash)
	if err != nil {
		return nil, false, err
	}
	defer blob.Free()

	if blob.IsBinary() {
		return nil, true, nil
	}

	return slices.Clone(blob.Contents()), false, nil
}
