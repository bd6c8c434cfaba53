// Package relate detects typed relationships between code elements and
// documentation, and scores them by evidence strength. Detection runs in
// fixed priority order (import, inheritance, call, attribute-access,
// doc-reference); the first match wins per (source, target) pair, so one
// pair never carries contradictory edge kinds.
package relate

import (
	"path/filepath"
	"sort"
	"strings"

	"github.com/jward/codeatlas/internal/model"
)

// entry is one addressable element in the resolution index.
type entry struct {
	Ref    model.ElementRef
	Module string // owning module name; "" for modules themselves
}

// index is the project-wide symbol table detection resolves against.
// Built once per run from the complete set of models; read-only after.
type index struct {
	modules        map[string]entry   // module name → entry
	classes        map[string]entry   // class FQN → entry
	classesByName  map[string][]entry // short name → entries
	functions      map[string]entry   // function FQN → entry
	functionsByKey map[string][]entry // short name and Class.method → entries
	variables      map[string]entry   // variable FQN → entry
	varsByName     map[string][]entry // short name → entries
}

func buildIndex(modules []*model.Module) *index {
	idx := &index{
		modules:        make(map[string]entry),
		classes:        make(map[string]entry),
		classesByName:  make(map[string][]entry),
		functions:      make(map[string]entry),
		functionsByKey: make(map[string][]entry),
		variables:      make(map[string]entry),
		varsByName:     make(map[string][]entry),
	}

	for _, m := range modules {
		idx.modules[m.Name] = entry{Ref: model.ElementRef{
			Kind: model.ElemModule, FQN: m.Name, File: m.File,
		}}

		for name := range m.Functions {
			e := entry{
				Ref:    model.ElementRef{Kind: model.ElemFunction, FQN: join(m.Name, name), File: m.File},
				Module: m.Name,
			}
			idx.functions[e.Ref.FQN] = e
			idx.functionsByKey[name] = append(idx.functionsByKey[name], e)
		}

		for name := range m.Variables {
			e := entry{
				Ref:    model.ElementRef{Kind: model.ElemVariable, FQN: join(m.Name, name), File: m.File},
				Module: m.Name,
			}
			idx.variables[e.Ref.FQN] = e
			idx.varsByName[name] = append(idx.varsByName[name], e)
		}

		for clsName, cls := range m.Classes {
			ce := entry{
				Ref:    model.ElementRef{Kind: model.ElemClass, FQN: join(m.Name, clsName), File: m.File},
				Module: m.Name,
			}
			idx.classes[ce.Ref.FQN] = ce
			idx.classesByName[lastSegment(clsName)] = append(idx.classesByName[lastSegment(clsName)], ce)

			for methName := range cls.Methods {
				me := entry{
					Ref:    model.ElementRef{Kind: model.ElemFunction, FQN: join(m.Name, clsName, methName), File: m.File},
					Module: m.Name,
				}
				idx.functions[me.Ref.FQN] = me
				idx.functionsByKey[methName] = append(idx.functionsByKey[methName], me)
				idx.functionsByKey[lastSegment(clsName)+"."+methName] = append(idx.functionsByKey[lastSegment(clsName)+"."+methName], me)
			}
			for varName := range cls.Variables {
				ve := entry{
					Ref:    model.ElementRef{Kind: model.ElemVariable, FQN: join(m.Name, clsName, varName), File: m.File},
					Module: m.Name,
				}
				idx.variables[ve.Ref.FQN] = ve
				idx.varsByName[varName] = append(idx.varsByName[varName], ve)
			}
		}
	}

	// Deterministic candidate order regardless of map iteration.
	for _, byName := range []map[string][]entry{idx.classesByName, idx.functionsByKey, idx.varsByName} {
		for _, entries := range byName {
			sort.Slice(entries, func(i, j int) bool { return entries[i].Ref.FQN < entries[j].Ref.FQN })
		}
	}

	return idx
}

// resolveShort narrows same-name candidates: entries in the source module
// first (same-file evidence), then candidates in the source file's own
// directory, else all project-wide candidates with the longest shared path
// prefix against the source file. Remaining ties are returned in full;
// ambiguity is surfaced, not collapsed.
func resolveShort(candidates []entry, srcModule, srcFile string) ([]entry, model.MatchKind) {
	if len(candidates) == 0 {
		return nil, ""
	}

	var sameModule []entry
	for _, c := range candidates {
		if c.Module != "" && c.Module == srcModule {
			sameModule = append(sameModule, c)
		}
	}
	if len(sameModule) > 0 {
		return sameModule, model.MatchSameFile
	}

	best := -1
	var winners []entry
	for _, c := range candidates {
		p := sharedPrefixLen(srcFile, c.Ref.File)
		switch {
		case p > best:
			best = p
			winners = []entry{c}
		case p == best:
			winners = append(winners, c)
		}
	}

	// sharedPrefixLen cannot tell the source's own directory from a
	// deeper subdirectory of it, so same-dir entries must win the tie
	// explicitly or they would score as cross-dir.
	srcDir := filepath.Dir(srcFile)
	var sameDir []entry
	for _, c := range winners {
		if filepath.Dir(c.Ref.File) == srcDir {
			sameDir = append(sameDir, c)
		}
	}
	if len(sameDir) > 0 {
		return sameDir, model.MatchSameDir
	}
	return winners, model.MatchCrossDir
}

// sharedPrefixLen counts leading path segments two relative paths share.
func sharedPrefixLen(a, b string) int {
	as := strings.Split(filepath.ToSlash(filepath.Dir(a)), "/")
	bs := strings.Split(filepath.ToSlash(filepath.Dir(b)), "/")
	n := 0
	for n < len(as) && n < len(bs) && as[n] == bs[n] {
		n++
	}
	return n
}

func join(parts ...string) string {
	var nonEmpty []string
	for _, p := range parts {
		if p != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	return strings.Join(nonEmpty, ".")
}

func lastSegment(s string) string {
	if idx := strings.LastIndex(s, "."); idx >= 0 {
		return s[idx+1:]
	}
	return s
}
