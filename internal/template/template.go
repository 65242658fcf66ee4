// Package template renders configured SMS bodies against a consultation
// context. Rendering is a pure function: the chosen body is resolved and
// rendered once at acceptance time, and the rendered text is what gets
// stored and sent, so later template edits never alter history.
package template

import "strings"

// Render substitutes {name} placeholders in body with values from vars.
// Placeholders without a matching key are kept verbatim, as are unbalanced
// braces. Matching is exact and case-sensitive.
func Render(body string, vars map[string]string) string {
	if !strings.ContainsRune(body, '{') {
		return body
	}

	var b strings.Builder
	b.Grow(len(body))

	for {
		open := strings.IndexByte(body, '{')
		if open < 0 {
			b.WriteString(body)
			return b.String()
		}

		close := strings.IndexByte(body[open:], '}')
		if close < 0 {
			b.WriteString(body)
			return b.String()
		}
		close += open

		b.WriteString(body[:open])

		name := body[open+1 : close]
		if val, ok := vars[name]; ok {
			b.WriteString(val)
		} else {
			b.WriteString(body[open : close+1])
		}

		body = body[close+1:]
	}
}
