// Package templates substitutes {{key}} placeholders in outreach copy.
//
// Substitution is a literal replace-all per known key. It is not a template
// language: unknown placeholders are left as written and no HTML escaping is
// performed, so callers must only feed trusted variables into HTML bodies.
package templates

import (
	"sort"
	"strings"

	"emex-dashboard/internal/leads"
)

// Render replaces every {{key}} for each key in vars. Empty values render as "".
func Render(tmpl string, vars map[string]string) string {
	if tmpl == "" || len(vars) == 0 {
		return tmpl
	}
	// Sorted keys keep the output stable when one value contains another key's token.
	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := tmpl
	for _, k := range keys {
		out = strings.ReplaceAll(out, "{{"+k+"}}", vars[k])
	}
	return out
}

// LeadVariables is the fixed variable set available to sequence steps.
func LeadVariables(l leads.Lead) map[string]string {
	full := l.FullName()
	return map[string]string{
		"first_name": l.FirstName,
		"last_name":  l.LastName,
		"full_name":  full,
		"name":       full,
		"company":    l.Company,
		"job_title":  l.JobTitle,
		"email":      l.Email,
	}
}

// Placeholders lists the distinct {{key}} tokens in tmpl in order of appearance.
func Placeholders(tmpl string) []string {
	var out []string
	seen := map[string]struct{}{}
	for {
		i := strings.Index(tmpl, "{{")
		if i < 0 {
			return out
		}
		j := strings.Index(tmpl[i+2:], "}}")
		if j < 0 {
			return out
		}
		key := tmpl[i+2 : i+2+j]
		if _, ok := seen[key]; !ok && key != "" && !strings.ContainsAny(key, "{} \n") {
			seen[key] = struct{}{}
			out = append(out, key)
		}
		tmpl = tmpl[i+2+j+2:]
	}
}
