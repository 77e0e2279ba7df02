package outreach

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"html"
	"net/url"
	"regexp"
	"strings"
)

// Tracker instruments outgoing HTML with an open pixel and signed click redirects.
//
// Tracking URLs embed tenant and email ids and an HMAC over them, so the public
// endpoints can scope lookups by tenant and refuse to act as an open redirect.
type Tracker struct {
	baseURL string
	secret  []byte
}

func NewTracker(baseURL, secret string) *Tracker {
	return &Tracker{baseURL: strings.TrimRight(baseURL, "/"), secret: []byte(secret)}
}

const (
	OpenPathPrefix  = "/t/o"
	ClickPathPrefix = "/t/c"
)

func (t *Tracker) OpenURL(tenantID, emailID string) string {
	return t.baseURL + OpenPathPrefix + "/" + url.PathEscape(tenantID) + "/" + url.PathEscape(emailID) + ".gif?s=" + t.sign(tenantID, emailID, "open")
}

func (t *Tracker) ClickURL(tenantID, emailID, target string) string {
	q := url.Values{}
	q.Set("u", target)
	q.Set("s", t.sign(tenantID, emailID, "click", target))
	return t.baseURL + ClickPathPrefix + "/" + url.PathEscape(tenantID) + "/" + url.PathEscape(emailID) + "?" + q.Encode()
}

func (t *Tracker) VerifyOpen(tenantID, emailID, sig string) bool {
	return hmac.Equal([]byte(sig), []byte(t.sign(tenantID, emailID, "open")))
}

func (t *Tracker) VerifyClick(tenantID, emailID, target, sig string) bool {
	return hmac.Equal([]byte(sig), []byte(t.sign(tenantID, emailID, "click", target)))
}

var hrefRegex = regexp.MustCompile(`(?i)href\s*=\s*("https?://[^"]*"|'https?://[^']*')`)

var bodyCloseRegex = regexp.MustCompile(`(?i)</body\s*>`)

// Instrument rewrites http(s) links to click redirects and appends an open pixel.
func (t *Tracker) Instrument(tenantID, emailID, body string) string {
	out := hrefRegex.ReplaceAllStringFunc(body, func(m string) string {
		sub := hrefRegex.FindStringSubmatch(m)
		quoted := sub[1]
		target := html.UnescapeString(quoted[1 : len(quoted)-1])
		return `href="` + html.EscapeString(t.ClickURL(tenantID, emailID, target)) + `"`
	})

	pixel := `<img src="` + html.EscapeString(t.OpenURL(tenantID, emailID)) + `" width="1" height="1" alt="" style="display:none" />`
	if loc := bodyCloseRegex.FindStringIndex(out); loc != nil {
		return out[:loc[0]] + pixel + out[loc[0]:]
	}
	return out + pixel
}

func (t *Tracker) sign(parts ...string) string {
	mac := hmac.New(sha256.New, t.secret)
	mac.Write([]byte(strings.Join(parts, "\x00")))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}
