package leads

import (
	"regexp"
	"strings"
)

// Scoring weights
const (
	ScoreSeniorTitle = 20
	ScoreAnyTitle    = 10
	ScoreHasEmail    = 15
	ScoreHasCompany  = 10
	ScoreHighRegion  = 15

	MaxScore = 100

	// OutreachReadyThreshold is the minimum score for a lead to be contacted.
	OutreachReadyThreshold = 50
)

// seniorityKeywords are matched case-insensitively as whole words of the job
// title; a keyword may not be preceded or followed by a letter.
var seniorityKeywords = []string{
	"ceo", "cto", "cfo", "coo", "cmo", "chief",
	"founder", "owner", "president",
	"vp", "svp", "evp", "vice president", "director", "head", "partner",
}

var highValueRegions = map[string]struct{}{
	"US": {}, "UK": {}, "GB": {}, "CA": {}, "AU": {}, "DE": {},
}

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

// Score maps a lead to [0, MaxScore]. It is pure and deterministic.
func Score(l Lead) int {
	total := 0
	for _, v := range Breakdown(l) {
		total += v
	}
	if total > MaxScore {
		total = MaxScore
	}
	return total
}

// Breakdown lists the points each rule contributed.
func Breakdown(l Lead) map[string]int {
	out := make(map[string]int, 4)

	title := strings.TrimSpace(l.JobTitle)
	if title != "" {
		if isSeniorTitle(title) {
			out["senior_title"] = ScoreSeniorTitle
		} else {
			out["has_title"] = ScoreAnyTitle
		}
	}
	if strings.TrimSpace(l.Email) != "" {
		out["has_email"] = ScoreHasEmail
	}
	if strings.TrimSpace(l.Company) != "" {
		out["has_company"] = ScoreHasCompany
	}
	if isHighValueRegion(l.Region) {
		out["high_value_region"] = ScoreHighRegion
	}
	return out
}

func IsOutreachReady(score int) bool {
	return score >= OutreachReadyThreshold
}

// ClassifyEmail reports the deliverability guess for an address.
func ClassifyEmail(email string) EmailStatus {
	email = strings.TrimSpace(email)
	if email == "" {
		return EmailStatusUnknown
	}
	if emailRegex.MatchString(email) {
		return EmailStatusValid
	}
	return EmailStatusInvalid
}

func isSeniorTitle(title string) bool {
	t := strings.ToLower(title)
	for _, kw := range seniorityKeywords {
		if containsWord(t, kw) {
			return true
		}
	}
	return false
}

// containsWord matches kw on word boundaries so "vp" does not hit "mvp".
func containsWord(s, kw string) bool {
	for i := 0; ; {
		j := strings.Index(s[i:], kw)
		if j < 0 {
			return false
		}
		start := i + j
		end := start + len(kw)
		if (start == 0 || !isLetter(s[start-1])) && (end == len(s) || !isLetter(s[end])) {
			return true
		}
		i = start + 1
	}
}

func isLetter(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

func isHighValueRegion(region string) bool {
	_, ok := highValueRegions[strings.ToUpper(strings.TrimSpace(region))]
	return ok
}
