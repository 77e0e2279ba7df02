package compose

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"emex-dashboard/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDraft(t *testing.T) {
	s, b := ParseDraft("Subject: Quick question, {{first_name}}\r\n\r\n<p>Hi {{first_name}}</p>\n")
	assert.Equal(t, "Quick question, {{first_name}}", s)
	assert.Equal(t, "<p>Hi {{first_name}}</p>", b)

	s, b = ParseDraft("Hello there\nBody line")
	assert.Equal(t, "Hello there", s)
	assert.Equal(t, "Body line", b)

	s, b = ParseDraft("   ")
	assert.Empty(t, s)
	assert.Empty(t, b)
}

func TestDrafter_NotConfigured(t *testing.T) {
	d := NewDrafter(config.OpenAIConfig{Model: "gpt-4o-mini"})
	assert.False(t, d.Enabled())
	_, err := d.DraftEmail(context.Background(), DraftRequest{Goal: "book a demo"})
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestDrafter_DraftEmail(t *testing.T) {
	var gotReq map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.True(t, strings.HasSuffix(r.URL.Path, "/chat/completions"))
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		_ = json.NewDecoder(r.Body).Decode(&gotReq)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"model": "gpt-4o-mini",
			"choices": [{"index": 0, "finish_reason": "stop",
				"message": {"role": "assistant", "content": "Subject: Intro for {{company}}\n\n<p>Hi {{first_name}}, quick idea.</p>"}}],
			"usage": {"prompt_tokens": 50, "completion_tokens": 20, "total_tokens": 70}
		}`))
	}))
	defer srv.Close()

	d := NewDrafterWithBaseURL("sk-test", srv.URL+"/v1", "gpt-4o-mini")
	draft, err := d.DraftEmail(context.Background(), DraftRequest{Goal: "book a demo", Tone: "friendly"})
	require.NoError(t, err)
	assert.Equal(t, "Intro for {{company}}", draft.Subject)
	assert.Equal(t, "<p>Hi {{first_name}}, quick idea.</p>", draft.Content)
	assert.Equal(t, 70, draft.TokensUsed)

	assert.Equal(t, "gpt-4o-mini", gotReq["model"])
	msgs, _ := gotReq["messages"].([]any)
	require.Len(t, msgs, 2)
	sys, _ := msgs[0].(map[string]any)
	assert.Contains(t, sys["content"], "{{company}}, {{first_name}}")

	_, err = d.DraftEmail(context.Background(), DraftRequest{Goal: " "})
	assert.ErrorIs(t, err, ErrInvalidArgument)
}
