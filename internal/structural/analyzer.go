// Package structural parses structural-source files (Python) with
// tree-sitter and walks the syntax tree into a Module model. The walk
// carries an explicit scope stack so nested definitions attribute methods,
// nested functions, and variable references to the correct enclosing scope.
package structural

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"

	"github.com/jward/codeatlas/internal/model"
)

// AnalysisError is the non-fatal, per-file parse failure result. The run
// continues; the file is excluded from downstream stages.
type AnalysisError struct {
	File    string
	Message string
}

func (e *AnalysisError) Error() string {
	return fmt.Sprintf("analyze %s: %s", e.File, e.Message)
}

// maxValueSnippet bounds the literal value recorded on a Variable.
const maxValueSnippet = 80

// Analyzer parses structural-source files. Each Analyze call builds its own
// tree-sitter parser, so a single Analyzer is safe for concurrent use.
type Analyzer struct{}

// NewAnalyzer returns a structural analyzer for Python sources.
func NewAnalyzer() *Analyzer { return &Analyzer{} }

// Analyze parses src into a Module. Parse failures return *AnalysisError.
func (a *Analyzer) Analyze(ctx context.Context, file model.DiscoveredFile, src []byte) (*model.Module, error) {
	parser := sitter.NewParser()
	parser.SetLanguage(python.GetLanguage())

	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, &AnalysisError{File: file.RelPath, Message: err.Error()}
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() {
		return nil, &AnalysisError{File: file.RelPath, Message: "syntax error"}
	}

	mod := &model.Module{
		Name:      ModuleName(file.RelPath),
		File:      file.RelPath,
		Classes:   make(map[string]*model.Class),
		Functions: make(map[string]*model.Function),
		Variables: make(map[string]*model.Variable),
		Docstring: blockDocstring(root, src),
		Lines:     lineRange(root),
	}

	w := &walker{src: src, mod: mod}
	w.walk(root, scope{})

	return mod, nil
}

// ModuleName derives the dotted module name from a relative path:
// "pkg/util.py" → "pkg.util", "pkg/__init__.py" → "pkg".
func ModuleName(relPath string) string {
	p := filepath.ToSlash(relPath)
	p = strings.TrimSuffix(p, ".py")
	p = strings.TrimSuffix(p, "/__init__")
	if p == "__init__" {
		return ""
	}
	return strings.ReplaceAll(p, "/", ".")
}

// scope is an immutable stack frame passed through the traversal. Pushing
// returns a new value; nothing on the walker mutates between siblings.
type scope struct {
	class *model.Class
	fn    *model.Function
}

func (s scope) withClass(c *model.Class) scope { return scope{class: c} }

func (s scope) withFunc(f *model.Function) scope { return scope{class: s.class, fn: f} }

type walker struct {
	src []byte
	mod *model.Module
}

func (w *walker) walk(node *sitter.Node, sc scope) {
	switch node.Type() {
	case "import_statement":
		w.collectImport(node)
		return
	case "import_from_statement":
		w.collectFromImport(node)
		return
	case "decorated_definition":
		w.walkDecorated(node, sc)
		return
	case "class_definition":
		w.walkClass(node, sc, nil)
		return
	case "function_definition":
		w.walkFunction(node, sc, nil)
		return
	case "expression_statement":
		if sc.fn == nil {
			if asn := childOfType(node, "assignment"); asn != nil {
				w.collectAssignment(asn, sc)
				return
			}
		}
	case "call":
		if sc.fn != nil {
			if name := calleeName(node, w.src); name != "" {
				sc.fn.Calls = appendUnique(sc.fn.Calls, name)
			}
			// Keep walking: arguments may reference variables or contain
			// further calls.
		}
	case "attribute":
		if sc.fn != nil {
			if name := selfAttribute(node, w.src); name != "" {
				sc.fn.ReferencedVars = appendUnique(sc.fn.ReferencedVars, name)
				return
			}
		}
	case "identifier":
		if sc.fn != nil && isReferencePosition(node) {
			sc.fn.ReferencedVars = appendUnique(sc.fn.ReferencedVars, node.Content(w.src))
		}
		return
	}

	for i := 0; i < int(node.NamedChildCount()); i++ {
		w.walk(node.NamedChild(i), sc)
	}
}

// walkDecorated peels decorators off a decorated_definition and forwards
// them to the wrapped class or function.
func (w *walker) walkDecorated(node *sitter.Node, sc scope) {
	var decorators []string
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		switch child.Type() {
		case "decorator":
			if name := decoratorName(child, w.src); name != "" {
				decorators = append(decorators, name)
			}
		case "class_definition":
			w.walkClass(child, sc, decorators)
		case "function_definition":
			w.walkFunction(child, sc, decorators)
		}
	}
}

func (w *walker) walkClass(node *sitter.Node, sc scope, decorators []string) {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return
	}

	cls := &model.Class{
		Name:       nameNode.Content(w.src),
		Methods:    make(map[string]*model.Function),
		Variables:  make(map[string]*model.Variable),
		Decorators: decorators,
		Lines:      lineRange(node),
	}
	if supers := node.ChildByFieldName("superclasses"); supers != nil {
		for i := 0; i < int(supers.NamedChildCount()); i++ {
			arg := supers.NamedChild(i)
			if base := dottedName(arg, w.src); base != "" {
				// As written; duplicates permitted.
				cls.Bases = append(cls.Bases, base)
			}
		}
	}

	body := node.ChildByFieldName("body")
	if body != nil {
		cls.Docstring = blockDocstring(body, w.src)
		inner := sc.withClass(cls)
		for i := 0; i < int(body.NamedChildCount()); i++ {
			w.walk(body.NamedChild(i), inner)
		}
	}

	// A class nested inside a function body stays local; only module-level
	// and class-level classes become entities.
	switch {
	case sc.fn != nil:
		// Local class: nothing to attach.
	case sc.class != nil:
		// Nested class: flatten into the module under a qualified name.
		w.mod.Classes[sc.class.Name+"."+cls.Name] = cls
	default:
		w.mod.Classes[cls.Name] = cls
	}
}

func (w *walker) walkFunction(node *sitter.Node, sc scope, decorators []string) {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return
	}

	fn := &model.Function{
		Name:       nameNode.Content(w.src),
		Decorators: decorators,
		Lines:      lineRange(node),
	}
	if params := node.ChildByFieldName("parameters"); params != nil {
		fn.Params = parameterNames(params, w.src)
	}
	if ret := node.ChildByFieldName("return_type"); ret != nil {
		fn.ReturnType = collapseWhitespace(ret.Content(w.src))
	}
	fn.IsMethod = sc.class != nil && sc.fn == nil
	fn.IsProperty = isProperty(decorators)

	// A function nested inside another function is not an entity of its
	// own; its body's calls and references attribute to the enclosing
	// function. This avoids relationship explosion for local helpers.
	owner := fn
	if sc.fn != nil {
		owner = sc.fn
	}

	body := node.ChildByFieldName("body")
	if body != nil {
		fn.Docstring = blockDocstring(body, w.src)
		inner := sc.withFunc(owner)
		for i := 0; i < int(body.NamedChildCount()); i++ {
			w.walk(body.NamedChild(i), inner)
		}
	}

	switch {
	case sc.fn != nil:
		// Nested function: folded into owner above.
	case sc.class != nil:
		sc.class.Methods[fn.Name] = fn
	default:
		w.mod.Functions[fn.Name] = fn
	}
}

// collectAssignment records a module-scope or class-scope assignment as a
// Variable definition.
func (w *walker) collectAssignment(asn *sitter.Node, sc scope) {
	left := asn.ChildByFieldName("left")
	right := asn.ChildByFieldName("right")
	typ := asn.ChildByFieldName("type")
	if left == nil {
		return
	}

	for _, name := range assignmentTargets(left, w.src) {
		v := &model.Variable{
			Name:       name,
			IsConstant: isConstantName(name),
			Lines:      lineRange(asn),
		}
		if typ != nil {
			v.InferredType = collapseWhitespace(typ.Content(w.src))
		} else if right != nil {
			v.InferredType = literalType(right)
		}
		if right != nil {
			v.Value = valueSnippet(right.Content(w.src))
		}
		if sc.class != nil {
			sc.class.Variables[name] = v
		} else {
			w.mod.Variables[name] = v
		}
	}
}

func (w *walker) collectImport(node *sitter.Node) {
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		switch child.Type() {
		case "dotted_name":
			w.mod.Imports = append(w.mod.Imports, child.Content(w.src))
		case "aliased_import":
			if name := child.ChildByFieldName("name"); name != nil {
				w.mod.Imports = append(w.mod.Imports, name.Content(w.src))
			}
		}
	}
}

// collectFromImport records "from X import a, b" as "X.a", "X.b" so import
// detection can match either the module X.a itself or X by prefix.
// Relative imports resolve against the current module's package.
func (w *walker) collectFromImport(node *sitter.Node) {
	modNode := node.ChildByFieldName("module_name")
	if modNode == nil {
		return
	}
	base := w.importBase(modNode)
	if base == "" {
		return
	}

	var names []string
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		if sameNode(child, modNode) {
			continue
		}
		switch child.Type() {
		case "dotted_name":
			names = append(names, child.Content(w.src))
		case "aliased_import":
			if name := child.ChildByFieldName("name"); name != nil {
				names = append(names, name.Content(w.src))
			}
		case "wildcard_import":
			w.mod.Imports = append(w.mod.Imports, base)
			return
		}
	}
	if len(names) == 0 {
		w.mod.Imports = append(w.mod.Imports, base)
		return
	}
	for _, n := range names {
		w.mod.Imports = append(w.mod.Imports, base+"."+n)
	}
}

// importBase resolves the module part of a from-import. Relative forms
// ("from ..pkg import x") anchor to the current module's package path.
func (w *walker) importBase(modNode *sitter.Node) string {
	text := modNode.Content(w.src)
	if modNode.Type() != "relative_import" {
		return text
	}

	dots := 0
	for dots < len(text) && text[dots] == '.' {
		dots++
	}
	rest := text[dots:]

	// Package of the current module: everything before its last segment.
	var parts []string
	if idx := strings.LastIndex(w.mod.Name, "."); idx >= 0 {
		parts = strings.Split(w.mod.Name[:idx], ".")
	}
	// One leading dot anchors at the current package; each extra dot
	// climbs one level.
	if cut := dots - 1; cut > 0 {
		if cut > len(parts) {
			cut = len(parts)
		}
		parts = parts[:len(parts)-cut]
	}
	base := strings.Join(parts, ".")
	switch {
	case base == "":
		return rest
	case rest == "":
		return base
	default:
		return base + "." + rest
	}
}
