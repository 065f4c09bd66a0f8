package notify

import (
	"bytes"
	"net/http"
	"time"

	"github.com/dualtier/dtman/log"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type ConsoleChannel struct{}

func (c *ConsoleChannel) Name() string {
	return "console"
}

func (c *ConsoleChannel) Send(message string, context map[string]interface{}) error {
	log.Logger.Warnf("[ALERT] %s %v", message, context)
	return nil
}

type WebhookChannel struct {
	url    string
	client *http.Client
}

func NewWebhookChannel(url string) *WebhookChannel {
	return &WebhookChannel{
		url:    url,
		client: &http.Client{Timeout: 5 * time.Second},
	}
}

func (w *WebhookChannel) Name() string {
	return "webhook"
}

func (w *WebhookChannel) Send(message string, context map[string]interface{}) error {
	payload, err := json.Marshal(map[string]interface{}{
		"message":   message,
		"context":   context,
		"timestamp": time.Now().Unix(),
	})
	if err != nil {
		return errors.Wrap(err, "")
	}
	return w.post(payload)
}

func (w *WebhookChannel) post(payload []byte) error {
	resp, err := w.client.Post(w.url, "application/json", bytes.NewReader(payload))
	if err != nil {
		return errors.Wrap(err, "")
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		return errors.Errorf("webhook returned %d", resp.StatusCode)
	}
	return nil
}

// ChatChannel posts to a chat-style incoming webhook (slack/feishu shape).
type ChatChannel struct {
	*WebhookChannel
}

func NewChatChannel(url string) *ChatChannel {
	return &ChatChannel{WebhookChannel: NewWebhookChannel(url)}
}

func (c *ChatChannel) Name() string {
	return "chat"
}

func (c *ChatChannel) Send(message string, context map[string]interface{}) error {
	text := message
	for k, v := range context {
		text += "\n" + k + ": " + toString(v)
	}
	payload, err := json.Marshal(map[string]interface{}{"text": text})
	if err != nil {
		return errors.Wrap(err, "")
	}
	return c.post(payload)
}

func toString(v interface{}) string {
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(bytes.Trim(data, `"`))
}
