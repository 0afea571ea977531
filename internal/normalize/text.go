package normalize

import (
	"errors"
	"regexp"
	"strings"
)

// ErrEmptyDiagram is returned when a response holds no diagram text.
var ErrEmptyDiagram = errors.New("empty mermaid diagram")

// CleanMermaid turns model output into a single-rooted mermaid mindmap:
// fences are stripped, text before "mindmap" dropped, and top level nodes
// after the root are re-indented under it.
func CleanMermaid(raw string) (string, error) {
	code := strings.TrimSpace(raw)
	code = strings.ReplaceAll(code, "```mermaid", "")
	code = strings.TrimSpace(strings.ReplaceAll(code, "```", ""))
	if code == "" {
		return "", ErrEmptyDiagram
	}

	if i := strings.Index(code, "mindmap"); i >= 0 {
		code = code[i:]
	}
	if !strings.HasPrefix(code, "mindmap") {
		code = "mindmap\n" + code
	}

	lines := strings.Split(code, "\n")
	fixed := make([]string, 0, len(lines))
	rootFound := false
	for _, line := range lines {
		switch {
		case strings.HasPrefix(strings.TrimSpace(line), "mindmap"):
			fixed = append(fixed, line)
		case strings.Contains(line, "root(("):
			fixed = append(fixed, line)
			rootFound = true
		default:
			stripped := strings.TrimLeft(line, " \t")
			indent := len(line) - len(stripped)
			if rootFound && indent < 4 && stripped != "" && !strings.HasPrefix(stripped, "#") {
				fixed = append(fixed, "    "+stripped)
			} else {
				fixed = append(fixed, line)
			}
		}
	}
	return strings.Join(fixed, "\n"), nil
}

var (
	headingLine = regexp.MustCompile(`^[#*\s]*([\p{L} ]+?)[*\s]*:[*\s]*(.*)$`)
	bulletLine  = regexp.MustCompile(`^\s*(?:[-*•]|\d+[.)])\s+`)
)

// Sections splits lightly structured text into the named sections. A
// section starts at a line "NAME:" (markdown emphasis allowed) and runs to
// the next known heading. Names match case-insensitively; missing sections
// are absent from the map.
func Sections(text string, names ...string) map[string]string {
	known := make(map[string]string, len(names))
	for _, n := range names {
		known[strings.ToUpper(n)] = n
	}

	out := make(map[string]string)
	var current string
	var buf []string
	flush := func() {
		if current != "" {
			out[current] = strings.TrimSpace(strings.Join(buf, "\n"))
		}
		buf = buf[:0]
	}

	for _, line := range strings.Split(text, "\n") {
		if m := headingLine.FindStringSubmatch(line); m != nil {
			if name, ok := known[strings.ToUpper(strings.TrimSpace(m[1]))]; ok {
				flush()
				current = name
				if rest := strings.TrimSpace(m[2]); rest != "" {
					buf = append(buf, rest)
				}
				continue
			}
		}
		if current != "" {
			buf = append(buf, line)
		}
	}
	flush()
	return out
}

// List reads bullet or numbered lines as items. Text without bullets is
// split on commas.
func List(text string) []string {
	var items []string
	for _, line := range strings.Split(text, "\n") {
		if !bulletLine.MatchString(line) {
			continue
		}
		if item := strings.TrimSpace(bulletLine.ReplaceAllString(line, "")); item != "" {
			items = append(items, item)
		}
	}
	if len(items) > 0 {
		return items
	}
	for _, part := range strings.Split(text, ",") {
		if part = strings.TrimSpace(part); part != "" {
			items = append(items, part)
		}
	}
	return items
}
