package relate

import (
	"sort"
	"strings"

	"github.com/jward/codeatlas/internal/model"
)

// Detector produces unscored relationship edges from the complete set of
// per-file models. Both endpoints of every emitted edge resolve within the
// same run's collections; unresolved candidates are dropped, never emitted.
type Detector struct{}

// NewDetector returns a relationship detector.
func NewDetector() *Detector { return &Detector{} }

// Detect runs the five detection passes in priority order. Output order is
// deterministic: modules and documents are processed sorted by file, and
// same-name candidate lists are pre-sorted in the index.
func (d *Detector) Detect(modules []*model.Module, documents []*model.Document) []model.Relationship {
	idx := buildIndex(modules)

	sorted := make([]*model.Module, len(modules))
	copy(sorted, modules)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].File < sorted[j].File })

	sortedDocs := make([]*model.Document, len(documents))
	copy(sortedDocs, documents)
	sort.Slice(sortedDocs, func(i, j int) bool { return sortedDocs[i].File < sortedDocs[j].File })

	c := &collector{seen: make(map[string]bool)}

	for _, m := range sorted {
		d.detectImports(c, idx, m)
	}
	for _, m := range sorted {
		d.detectInheritance(c, idx, m)
	}
	for _, m := range sorted {
		d.detectCalls(c, idx, m)
	}
	for _, m := range sorted {
		d.detectAttributeAccess(c, idx, m)
	}
	for _, doc := range sortedDocs {
		d.detectDocReferences(c, idx, doc)
	}

	return c.rels
}

// collector accumulates edges and enforces first-match-wins per pair.
type collector struct {
	rels []model.Relationship
	seen map[string]bool
}

func (c *collector) add(rel model.Relationship) {
	key := string(rel.Source.Kind) + ":" + rel.Source.FQN + "|" + string(rel.Target.Kind) + ":" + rel.Target.FQN
	if c.seen[key] {
		return
	}
	c.seen[key] = true
	c.rels = append(c.rels, rel)
}

// detectImports matches import identifiers against module names, exact
// first, then the longest proper prefix of the identifier.
func (d *Detector) detectImports(c *collector, idx *index, m *model.Module) {
	src := idx.modules[m.Name].Ref
	for _, imp := range m.Imports {
		target, ok := resolveImport(idx, imp)
		if !ok || target.FQN == m.Name {
			continue
		}
		c.add(model.Relationship{
			Source:   src,
			Target:   target,
			Kind:     model.RelImport,
			Evidence: model.Evidence{Match: model.MatchExactFQN, Text: imp},
		})
	}
}

func resolveImport(idx *index, imp string) (model.ElementRef, bool) {
	if e, ok := idx.modules[imp]; ok {
		return e.Ref, true
	}
	for prefix := imp; ; {
		dot := strings.LastIndex(prefix, ".")
		if dot < 0 {
			return model.ElementRef{}, false
		}
		prefix = prefix[:dot]
		if e, ok := idx.modules[prefix]; ok {
			return e.Ref, true
		}
	}
}

// detectInheritance resolves base-class identifiers: dotted bases try an
// exact FQN hit first; short names resolve same-module then project-wide.
// Unresolved bases are dropped.
func (d *Detector) detectInheritance(c *collector, idx *index, m *model.Module) {
	for _, clsName := range sortedKeys(m.Classes) {
		src := idx.classes[join(m.Name, clsName)].Ref
		for _, base := range m.Classes[clsName].Bases {
			if strings.Contains(base, ".") {
				if e, ok := idx.classes[base]; ok {
					c.add(model.Relationship{
						Source:   src,
						Target:   e.Ref,
						Kind:     model.RelInheritance,
						Evidence: model.Evidence{Match: model.MatchExactFQN, Text: base},
					})
					continue
				}
			}
			targets, match := resolveShort(idx.classesByName[lastSegment(base)], m.Name, m.File)
			for _, t := range targets {
				if t.Ref.FQN == src.FQN {
					continue
				}
				c.add(model.Relationship{
					Source:   src,
					Target:   t.Ref,
					Kind:     model.RelInheritance,
					Evidence: model.Evidence{Match: match, Text: base},
				})
			}
		}
	}
}

// detectCalls resolves called-identifier names against known functions and
// methods. An edge is emitted only when a target is found.
func (d *Detector) detectCalls(c *collector, idx *index, m *model.Module) {
	d.eachFunction(idx, m, func(src model.ElementRef, fn *model.Function) {
		for _, callee := range fn.Calls {
			if e, ok := idx.functions[callee]; ok {
				c.add(model.Relationship{
					Source:   src,
					Target:   e.Ref,
					Kind:     model.RelCall,
					Evidence: model.Evidence{Match: model.MatchExactFQN, Text: callee},
				})
				continue
			}
			candidates := idx.functionsByKey[callee]
			if len(candidates) == 0 {
				candidates = idx.functionsByKey[lastSegment(callee)]
			}
			targets, match := resolveShort(candidates, m.Name, m.File)
			for _, t := range targets {
				if t.Ref.FQN == src.FQN {
					continue
				}
				c.add(model.Relationship{
					Source:   src,
					Target:   t.Ref,
					Kind:     model.RelCall,
					Evidence: model.Evidence{Match: match, Text: callee},
				})
			}
		}
	})
}

// detectAttributeAccess links referenced-variable names on functions to
// class-level or module-level Variables.
func (d *Detector) detectAttributeAccess(c *collector, idx *index, m *model.Module) {
	d.eachFunction(idx, m, func(src model.ElementRef, fn *model.Function) {
		for _, name := range fn.ReferencedVars {
			targets, match := resolveShort(idx.varsByName[name], m.Name, m.File)
			for _, t := range targets {
				c.add(model.Relationship{
					Source:   src,
					Target:   t.Ref,
					Kind:     model.RelAttributeAccess,
					Evidence: model.Evidence{Match: match, Text: name},
				})
			}
		}
	})
}

// detectDocReferences resolves raw mentions against module, class,
// function, and variable names. Exact text scores by path distance; a match that differs
// in case only is the weakest accepted evidence. Mentions that resolve to
// nothing produce no edge at all.
func (d *Detector) detectDocReferences(c *collector, idx *index, doc *model.Document) {
	src := model.ElementRef{Kind: model.ElemDocument, FQN: doc.File, File: doc.File}

	for _, mention := range doc.Mentions {
		if e, ok := lookupExactFQN(idx, mention.Text); ok {
			c.add(model.Relationship{
				Source:   src,
				Target:   e,
				Kind:     model.RelDocReference,
				Evidence: model.Evidence{Match: model.MatchExactFQN, Text: mention.Text},
			})
			continue
		}

		candidates := exactNameCandidates(idx, mention.Text)
		if len(candidates) > 0 {
			targets, match := resolveShort(candidates, "", doc.File)
			for _, t := range targets {
				c.add(model.Relationship{
					Source:   src,
					Target:   t.Ref,
					Kind:     model.RelDocReference,
					Evidence: model.Evidence{Match: match, Text: mention.Text},
				})
			}
			continue
		}

		for _, t := range fuzzyNameCandidates(idx, mention.Text) {
			c.add(model.Relationship{
				Source:   src,
				Target:   t.Ref,
				Kind:     model.RelDocReference,
				Evidence: model.Evidence{Match: model.MatchDocFuzzy, Text: mention.Text},
			})
		}
	}
}

func lookupExactFQN(idx *index, text string) (model.ElementRef, bool) {
	if e, ok := idx.modules[text]; ok && strings.Contains(text, ".") {
		return e.Ref, true
	}
	if e, ok := idx.classes[text]; ok && strings.Contains(text, ".") {
		return e.Ref, true
	}
	if e, ok := idx.functions[text]; ok && strings.Contains(text, ".") {
		return e.Ref, true
	}
	if e, ok := idx.variables[text]; ok && strings.Contains(text, ".") {
		return e.Ref, true
	}
	return model.ElementRef{}, false
}

func exactNameCandidates(idx *index, text string) []entry {
	var candidates []entry
	if e, ok := idx.modules[text]; ok {
		candidates = append(candidates, e)
	}
	candidates = append(candidates, idx.classesByName[text]...)
	candidates = append(candidates, idx.functionsByKey[text]...)
	candidates = append(candidates, idx.varsByName[text]...)
	return candidates
}

// fuzzyNameCandidates matches case-insensitively across the same element
// kinds the exact-name path covers. Sorted for determinism.
func fuzzyNameCandidates(idx *index, text string) []entry {
	lower := strings.ToLower(text)
	var out []entry
	for name, e := range idx.modules {
		if strings.ToLower(name) == lower && name != text {
			out = append(out, e)
		}
	}
	for name, entries := range idx.classesByName {
		if strings.ToLower(name) == lower && name != text {
			out = append(out, entries...)
		}
	}
	for name, entries := range idx.functionsByKey {
		if strings.ToLower(name) == lower && name != text {
			out = append(out, entries...)
		}
	}
	for name, entries := range idx.varsByName {
		if strings.ToLower(name) == lower && name != text {
			out = append(out, entries...)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ref.FQN < out[j].Ref.FQN })
	return out
}

// eachFunction visits module-level functions, then methods, in name order.
func (d *Detector) eachFunction(idx *index, m *model.Module, visit func(model.ElementRef, *model.Function)) {
	for _, name := range sortedKeys(m.Functions) {
		visit(idx.functions[join(m.Name, name)].Ref, m.Functions[name])
	}
	for _, clsName := range sortedKeys(m.Classes) {
		cls := m.Classes[clsName]
		for _, methName := range sortedKeys(cls.Methods) {
			visit(idx.functions[join(m.Name, clsName, methName)].Ref, cls.Methods[methName])
		}
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
