// Package templates renders policy documents from templates with
// handlebars-style {{name}} placeholders.
//
// Rendering is strict: every placeholder must have a binding. A template that
// references an unknown name fails with interfaces.ErrTemplate instead of
// expanding to an empty string, so a document can never be submitted with a
// blank measurement or secret.
package templates

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ruteri/scone-policy-sessions/interfaces"
)

// Bindings maps placeholder names to their values.
type Bindings map[string]string

// With returns a copy of b extended by extra. Entries in extra win.
func (b Bindings) With(extra Bindings) Bindings {
	out := make(Bindings, len(b)+len(extra))
	for k, v := range b {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

var placeholderRE = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_]+)\s*\}\}`)

// Render expands every {{name}} in tmpl. All missing names are reported in a
// single ErrTemplate.
func Render(tmpl string, bindings Bindings) (string, error) {
	missing := map[string]struct{}{}
	out := placeholderRE.ReplaceAllStringFunc(tmpl, func(m string) string {
		key := placeholderRE.FindStringSubmatch(m)[1]
		if v, ok := bindings[key]; ok {
			return v
		}
		missing[key] = struct{}{}
		return m
	})

	if len(missing) > 0 {
		names := make([]string, 0, len(missing))
		for k := range missing {
			names = append(names, k)
		}
		sort.Strings(names)
		return "", fmt.Errorf("%w: undefined placeholder(s) %s", interfaces.ErrTemplate, strings.Join(names, ", "))
	}
	// bound values are free to contain braces
	stripped := placeholderRE.ReplaceAllString(tmpl, "")
	if at := strings.Index(stripped, "{{"); at >= 0 {
		return "", fmt.Errorf("%w: malformed placeholder near %q", interfaces.ErrTemplate, excerpt(stripped, at))
	}
	return out, nil
}

// Placeholders lists the distinct placeholder names referenced by tmpl, sorted.
func Placeholders(tmpl string) []string {
	seen := map[string]struct{}{}
	for _, m := range placeholderRE.FindAllStringSubmatch(tmpl, -1) {
		seen[m[1]] = struct{}{}
	}
	names := make([]string, 0, len(seen))
	for k := range seen {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// CheckYAML verifies that a rendered document is well-formed YAML with a
// top-level mapping. It is a local pre-check before the remote dry-run and
// fails with the same kind, interfaces.ErrTemplateInvalid.
func CheckYAML(document string) error {
	var root map[string]any
	if err := yaml.Unmarshal([]byte(document), &root); err != nil {
		return fmt.Errorf("%w: rendered document is not valid YAML: %v", interfaces.ErrTemplateInvalid, err)
	}
	if root == nil {
		return fmt.Errorf("%w: rendered document is empty", interfaces.ErrTemplateInvalid)
	}
	return nil
}

func excerpt(s string, at int) string {
	end := at + 24
	if end > len(s) {
		end = len(s)
	}
	return s[at:end]
}
