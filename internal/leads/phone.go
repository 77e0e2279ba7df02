package leads

import (
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// normalizePhone returns the E.164 form when the number parses and is valid.
// The region hint falls back to US; unparseable input is kept as typed.
func normalizePhone(raw, region string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	hint := strings.ToUpper(strings.TrimSpace(region))
	switch hint {
	case "":
		hint = "US"
	case "UK":
		hint = "GB"
	}
	num, err := phonenumbers.Parse(raw, hint)
	if err != nil || !phonenumbers.IsValidNumber(num) {
		return raw
	}
	return phonenumbers.Format(num, phonenumbers.E164)
}
