package templates

import (
	"testing"

	"emex-dashboard/internal/leads"
)

func TestRender_ReplacesAllOccurrences(t *testing.T) {
	got := Render("Hi {{first_name}}, {{first_name}} at {{company}}", map[string]string{
		"first_name": "Ada",
		"company":    "Acme",
	})
	if got != "Hi Ada, Ada at Acme" {
		t.Fatalf("unexpected render: %q", got)
	}
}

func TestRender_EmptyValueAndUnknownKey(t *testing.T) {
	got := Render("Hi {{first_name}} from {{team}}", map[string]string{"first_name": ""})
	if got != "Hi  from {{team}}" {
		t.Fatalf("unexpected render: %q", got)
	}
}

func TestRender_NoEscaping(t *testing.T) {
	got := Render("<p>{{company}}</p>", map[string]string{"company": "<b>A&B</b>"})
	if got != "<p><b>A&B</b></p>" {
		t.Fatalf("unexpected render: %q", got)
	}
}

func TestRender_RoundTripLeavesNoTokens(t *testing.T) {
	vars := LeadVariables(leads.Lead{FirstName: "Grace", LastName: "Hopper", Company: "Navy", JobTitle: "Rear Admiral", Email: "g@navy.mil"})
	tmpl := "{{full_name}} / {{first_name}} {{last_name}} / {{company}} / {{job_title}} / {{email}} / {{name}}"
	out := Render(tmpl, vars)
	if p := Placeholders(out); len(p) != 0 {
		t.Fatalf("expected no remaining tokens, got %v in %q", p, out)
	}
	if Render(out, vars) != out {
		t.Fatalf("expected idempotent render")
	}
}

func TestPlaceholders(t *testing.T) {
	got := Placeholders("{{a}} {{b}} {{a}} {{ }} {{c")
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("unexpected placeholders: %v", got)
	}
}
