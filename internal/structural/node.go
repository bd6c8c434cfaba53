package structural

import (
	"strings"
	"unicode/utf8"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/jward/codeatlas/internal/model"
)

func lineRange(node *sitter.Node) model.LineRange {
	return model.LineRange{
		Start: int(node.StartPoint().Row) + 1,
		End:   int(node.EndPoint().Row) + 1,
	}
}

// blockDocstring returns the docstring of a module or block node: the
// leading expression statement holding a bare string literal.
func blockDocstring(block *sitter.Node, src []byte) string {
	if block.NamedChildCount() == 0 {
		return ""
	}
	first := block.NamedChild(0)
	if first.Type() != "expression_statement" || first.NamedChildCount() != 1 {
		return ""
	}
	str := first.NamedChild(0)
	if str.Type() != "string" {
		return ""
	}
	return stripStringQuotes(str.Content(src))
}

func stripStringQuotes(s string) string {
	s = strings.TrimLeft(s, "rRbBuUfF")
	for _, q := range []string{`"""`, `'''`, `"`, `'`} {
		if strings.HasPrefix(s, q) && strings.HasSuffix(s, q) && len(s) >= 2*len(q) {
			return strings.TrimSpace(s[len(q) : len(s)-len(q)])
		}
	}
	return strings.TrimSpace(s)
}

func childOfType(node *sitter.Node, typ string) *sitter.Node {
	for i := 0; i < int(node.NamedChildCount()); i++ {
		if child := node.NamedChild(i); child.Type() == typ {
			return child
		}
	}
	return nil
}

// dottedName renders an identifier or simple attribute chain as dotted
// text ("a.b.c"). Chains through calls or subscripts collapse to the
// final attribute name.
func dottedName(node *sitter.Node, src []byte) string {
	switch node.Type() {
	case "identifier":
		return node.Content(src)
	case "attribute":
		attr := node.ChildByFieldName("attribute")
		if attr == nil {
			return ""
		}
		obj := node.ChildByFieldName("object")
		if obj != nil {
			if base := dottedName(obj, src); base != "" {
				return base + "." + attr.Content(src)
			}
		}
		return attr.Content(src)
	default:
		return ""
	}
}

// decoratorName unwraps a decorator to its name expression: call
// decorators yield their function part, then the dotted text.
func decoratorName(dec *sitter.Node, src []byte) string {
	for i := 0; i < int(dec.NamedChildCount()); i++ {
		expr := dec.NamedChild(i)
		if expr.Type() == "call" {
			if fn := expr.ChildByFieldName("function"); fn != nil {
				return dottedName(fn, src)
			}
			return ""
		}
		if name := dottedName(expr, src); name != "" {
			return name
		}
	}
	return ""
}

// calleeName returns the literal callee of a call expression, attribute
// chains collapsed to dotted form. Returns "" for computed callees.
func calleeName(call *sitter.Node, src []byte) string {
	fn := call.ChildByFieldName("function")
	if fn == nil {
		return ""
	}
	return dottedName(fn, src)
}

// selfAttribute returns the attribute name for self/cls accesses
// ("self.counter" → "counter"), or "" for other attribute chains.
func selfAttribute(node *sitter.Node, src []byte) string {
	obj := node.ChildByFieldName("object")
	attr := node.ChildByFieldName("attribute")
	if obj == nil || attr == nil || obj.Type() != "identifier" {
		return ""
	}
	switch obj.Content(src) {
	case "self", "cls":
		return attr.Content(src)
	}
	return ""
}

// isReferencePosition reports whether an identifier inside a function body
// is a variable read. Binding positions and name components handled
// elsewhere (callees, attribute members, keyword names) are excluded.
func isReferencePosition(node *sitter.Node) bool {
	parent := node.Parent()
	if parent == nil {
		return false
	}
	switch parent.Type() {
	case "call":
		return !sameNode(parent.ChildByFieldName("function"), node)
	case "attribute":
		return !sameNode(parent.ChildByFieldName("attribute"), node)
	case "keyword_argument":
		return !sameNode(parent.ChildByFieldName("name"), node)
	case "assignment", "augmented_assignment":
		return !sameNode(parent.ChildByFieldName("left"), node)
	case "for_statement":
		return !sameNode(parent.ChildByFieldName("left"), node)
	case "as_pattern_target", "pattern_list", "tuple_pattern":
		return false
	}
	return true
}

func sameNode(a, b *sitter.Node) bool {
	if a == nil || b == nil {
		return false
	}
	return a.StartByte() == b.StartByte() && a.EndByte() == b.EndByte()
}

func parameterNames(params *sitter.Node, src []byte) []string {
	var names []string
	for i := 0; i < int(params.NamedChildCount()); i++ {
		p := params.NamedChild(i)
		switch p.Type() {
		case "identifier":
			names = append(names, p.Content(src))
		case "typed_parameter":
			if id := childOfType(p, "identifier"); id != nil {
				names = append(names, id.Content(src))
			}
		case "default_parameter", "typed_default_parameter":
			if name := p.ChildByFieldName("name"); name != nil {
				names = append(names, name.Content(src))
			}
		case "list_splat_pattern", "dictionary_splat_pattern":
			if id := childOfType(p, "identifier"); id != nil {
				names = append(names, id.Content(src))
			}
		}
	}
	return names
}

// assignmentTargets collects plain identifier targets. Attribute and
// subscript targets are not definitions at module or class scope.
func assignmentTargets(left *sitter.Node, src []byte) []string {
	switch left.Type() {
	case "identifier":
		return []string{left.Content(src)}
	case "pattern_list", "tuple_pattern":
		var names []string
		for i := 0; i < int(left.NamedChildCount()); i++ {
			if t := left.NamedChild(i); t.Type() == "identifier" {
				names = append(names, t.Content(src))
			}
		}
		return names
	default:
		return nil
	}
}

// isConstantName follows the UPPER_CASE convention.
func isConstantName(name string) bool {
	hasUpper := false
	for _, r := range name {
		switch {
		case r >= 'A' && r <= 'Z':
			hasUpper = true
		case r >= 'a' && r <= 'z':
			return false
		}
	}
	return hasUpper
}

// literalType infers a type name from a literal right-hand side, or the
// constructor name for call expressions. Returns "" when unknown.
func literalType(right *sitter.Node) string {
	switch right.Type() {
	case "string", "concatenated_string":
		return "str"
	case "integer":
		return "int"
	case "float":
		return "float"
	case "true", "false":
		return "bool"
	case "none":
		return "None"
	case "list", "list_comprehension":
		return "list"
	case "dictionary", "dictionary_comprehension":
		return "dict"
	case "tuple":
		return "tuple"
	case "set", "set_comprehension":
		return "set"
	default:
		return ""
	}
}

func valueSnippet(s string) string {
	s = collapseWhitespace(s)
	if len(s) <= maxValueSnippet {
		return s
	}
	// Back off to a rune boundary so truncation never leaves invalid UTF-8.
	cut := maxValueSnippet
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func appendUnique(list []string, s string) []string {
	for _, existing := range list {
		if existing == s {
			return list
		}
	}
	return append(list, s)
}

func isProperty(decorators []string) bool {
	for _, d := range decorators {
		if d == "property" || d == "cached_property" || strings.HasSuffix(d, ".setter") {
			return true
		}
	}
	return false
}
