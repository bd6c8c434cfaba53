// Package docs parses markup-documentation files into Document models:
// headed sections with depth, plus raw code-identifier mention candidates.
// No resolution happens here; that is relationship detection's job.
package docs

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"gopkg.in/yaml.v3"

	"github.com/jward/codeatlas/internal/model"
)

// AnalysisError is the non-fatal, per-file failure result.
type AnalysisError struct {
	File    string
	Message string
}

func (e *AnalysisError) Error() string {
	return fmt.Sprintf("analyze %s: %s", e.File, e.Message)
}

// maxExcerpt bounds the body excerpt stored per section.
const maxExcerpt = 240

var (
	// Backtick code spans: `ClassName.method()` or `CONSTANT`.
	codeSpanRe = regexp.MustCompile("`([^`\n]+)`")
	// Dotted paths in running text need at least one dot to count; bare
	// words would turn every sentence into mention candidates.
	dottedPathRe = regexp.MustCompile(`\b[A-Za-z_][A-Za-z0-9_]*(?:\.[A-Za-z_][A-Za-z0-9_]*)+\b`)
	identRe      = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(?:\.[A-Za-z_][A-Za-z0-9_]*)*$`)
)

// Analyzer parses markdown documentation. Safe for concurrent use.
type Analyzer struct{}

// NewAnalyzer returns a documentation analyzer.
func NewAnalyzer() *Analyzer { return &Analyzer{} }

// Analyze splits src into headed sections and collects mention candidates.
func (a *Analyzer) Analyze(_ context.Context, file model.DiscoveredFile, src []byte) (*model.Document, error) {
	if !utf8.Valid(src) {
		return nil, &AnalysisError{File: file.RelPath, Message: "not valid UTF-8 text"}
	}

	doc := &model.Document{File: file.RelPath}

	body, title, bodyOffset := splitFrontmatter(string(src))
	doc.Title = title

	lines := strings.Split(body, "\n")
	var current model.Section
	current.Lines.Start = bodyOffset + 1
	started := false
	inCodeBlock := false

	flush := func(endLine int) {
		if !started && strings.TrimSpace(current.Excerpt) == "" {
			return
		}
		current.Lines.End = endLine
		current.Excerpt = trimExcerpt(current.Excerpt)
		doc.Sections = append(doc.Sections, current)
	}

	for i, line := range lines {
		lineNo := bodyOffset + i + 1

		if isCodeFence(line) {
			inCodeBlock = !inCodeBlock
		}

		if !inCodeBlock && isHeading(line) {
			flush(lineNo - 1)
			level, heading := parseHeading(line)
			current = model.Section{
				Heading: heading,
				Level:   level,
				Lines:   model.LineRange{Start: lineNo},
			}
			started = true
			if doc.Title == "" && level == 1 {
				doc.Title = heading
			}
			continue
		}

		if current.Excerpt != "" {
			current.Excerpt += "\n"
		}
		current.Excerpt += line

		sectionIdx := len(doc.Sections)
		for _, m := range scanMentions(line) {
			doc.Mentions = appendMention(doc.Mentions, model.Mention{
				Text:    m,
				Section: sectionIdx,
				Line:    lineNo,
			})
		}
	}
	flush(bodyOffset + len(lines))

	return doc, nil
}

// splitFrontmatter strips a leading YAML frontmatter block, returning the
// body, the frontmatter title (if any), and the number of lines consumed.
// A malformed block degrades to plain body, never an error.
func splitFrontmatter(content string) (body, title string, offset int) {
	if !strings.HasPrefix(content, "---\n") && !strings.HasPrefix(content, "---\r\n") {
		return content, "", 0
	}
	rest := content[strings.Index(content, "\n")+1:]
	closeIdx := strings.Index(rest, "\n---")
	if closeIdx == -1 {
		return content, "", 0
	}
	yamlContent := rest[:closeIdx]

	after := rest[closeIdx+1:]
	if nl := strings.Index(after, "\n"); nl >= 0 {
		after = after[nl+1:]
	} else {
		after = ""
	}

	var fm map[string]any
	if err := yaml.Unmarshal([]byte(yamlContent), &fm); err != nil {
		return content, "", 0
	}
	if t, ok := fm["title"].(string); ok {
		title = t
	}
	consumed := strings.Count(content[:len(content)-len(after)], "\n")
	return after, title, consumed
}

// scanMentions extracts code-identifier candidates from one line: backtick
// spans that look like identifiers, and dotted paths in running text.
func scanMentions(line string) []string {
	var mentions []string

	stripped := line
	for _, m := range codeSpanRe.FindAllStringSubmatch(line, -1) {
		span := strings.TrimSuffix(strings.TrimSpace(m[1]), "()")
		if identRe.MatchString(span) {
			mentions = append(mentions, span)
		}
		stripped = strings.Replace(stripped, m[0], "", 1)
	}

	// Dotted paths outside code spans.
	mentions = append(mentions, dottedPathRe.FindAllString(stripped, -1)...)
	return mentions
}

func appendMention(list []model.Mention, m model.Mention) []model.Mention {
	for _, existing := range list {
		if existing.Text == m.Text && existing.Section == m.Section {
			return list
		}
	}
	return append(list, m)
}

func trimExcerpt(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= maxExcerpt {
		return s
	}
	// Back off to a rune boundary so truncation never leaves invalid UTF-8.
	cut := maxExcerpt
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

func isCodeFence(line string) bool {
	trimmed := strings.TrimSpace(line)
	return strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~")
}

func isHeading(line string) bool {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "#") {
		return false
	}
	return strings.TrimLeft(trimmed, "#") == "" || strings.HasPrefix(strings.TrimLeft(trimmed, "#"), " ")
}

func parseHeading(line string) (int, string) {
	trimmed := strings.TrimSpace(line)
	level := 0
	for _, ch := range trimmed {
		if ch != '#' {
			break
		}
		level++
	}
	if level > 6 {
		level = 6
	}
	return level, strings.TrimSpace(strings.TrimLeft(trimmed, "#"))
}
