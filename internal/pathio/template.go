package pathio

import "strings"

// renderTemplate substitutes the two named placeholders a command
// template may contain, {filename} and {size}, by literal string
// replacement.
func renderTemplate(tpl, filename, size string) string {
	r := strings.NewReplacer("{filename}", filename, "{size}", size)
	return r.Replace(tpl)
}
