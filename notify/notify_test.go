package notify

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dualtier/dtman/config"
	"github.com/dualtier/dtman/log"
	"github.com/stretchr/testify/assert"
)

func TestMain(m *testing.M) {
	log.InitLoggerConsole()
	m.Run()
}

func TestWebhookChannelPayload(t *testing.T) {
	var got map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(body, &got))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
	}))
	defer srv.Close()

	ch := NewWebhookChannel(srv.URL)
	err := ch.Send("cache endpoint failover", map[string]interface{}{"failed": "p1:6379"})
	assert.NoError(t, err)
	assert.Equal(t, "cache endpoint failover", got["message"])
	assert.Equal(t, "p1:6379", got["context"].(map[string]interface{})["failed"])
	assert.NotNil(t, got["timestamp"])
}

func TestWebhookChannelServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	err := NewWebhookChannel(srv.URL).Send("boom", nil)
	assert.Error(t, err)
}

func TestChatChannelFlattensContext(t *testing.T) {
	var got map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(body, &got))
	}))
	defer srv.Close()

	err := NewChatChannel(srv.URL).Send("fallback mode enabled", map[string]interface{}{"reason": "outage"})
	assert.NoError(t, err)
	text := got["text"].(string)
	assert.Contains(t, text, "fallback mode enabled")
	assert.Contains(t, text, "reason: outage")
}

func TestNotifierDisabled(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))
	defer srv.Close()

	n := NewNotifier(&config.NotifyConfig{
		Enabled:    false,
		Channels:   []string{"webhook"},
		WebhookUrl: srv.URL,
	})
	n.Notify("nothing should go out", nil)
	assert.Equal(t, 0, calls)

	var nilNotifier *Notifier
	nilNotifier.Notify("still fine", nil)
}

func TestNotifierFanOut(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))
	defer srv.Close()

	n := NewNotifier(&config.NotifyConfig{
		Enabled:        true,
		Channels:       []string{"console", "webhook", "chat"},
		WebhookUrl:     srv.URL,
		ChatWebhookUrl: srv.URL,
	})
	n.Notify("audit failed", map[string]interface{}{"drift": 12.5})
	assert.Equal(t, 2, calls)
}
