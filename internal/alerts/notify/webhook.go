package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	alerts "vitalwatch-cloud/internal/alerts/domain"
)

// Channel delivers rendered content.
type Channel interface {
	Send(ctx context.Context, content string) error
}

type webhookPayload struct {
	MsgType string      `json:"msgtype"`
	Text    webhookText `json:"text"`
}

type webhookText struct {
	Content string `json:"content"`
}

// WebhookChannel sends notifications to a webhook endpoint.
type WebhookChannel struct {
	url    string
	client *http.Client
}

// WebhookOption configures the webhook channel.
type WebhookOption func(*WebhookChannel)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(client *http.Client) WebhookOption {
	return func(ch *WebhookChannel) {
		if client != nil {
			ch.client = client
		}
	}
}

// NewWebhookChannel constructs a webhook channel.
func NewWebhookChannel(url string, opts ...WebhookOption) (*WebhookChannel, error) {
	if url == "" {
		return nil, errors.New("webhook channel: empty url")
	}
	channel := &WebhookChannel{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(channel)
	}
	return channel, nil
}

// Send posts the content using DingTalk/WeCom-compatible payload.
func (w *WebhookChannel) Send(ctx context.Context, content string) error {
	if w == nil || w.url == "" {
		return errors.New("webhook channel: empty url")
	}
	payload := webhookPayload{
		MsgType: "text",
		Text:    webhookText{Content: content},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook channel: non-2xx response %d", resp.StatusCode)
	}
	return nil
}

// Clock provides time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// WebhookNotifier renders alerts and pushes them to a channel. Alerts
// are emitted without suppression by default; a cooldown per device and
// category is available as a knob for noisy fleets.
type WebhookNotifier struct {
	channel        Channel
	template       *Template
	logger         *log.Logger
	clock          Clock
	cooldown       time.Duration
	requestTimeout time.Duration

	mu       sync.Mutex
	lastSent map[string]time.Time
}

// NotifierOption configures the webhook notifier.
type NotifierOption func(*WebhookNotifier)

// WithCooldown sets a minimum interval between notifications for the
// same device and category. Zero disables suppression.
func WithCooldown(interval time.Duration) NotifierOption {
	return func(n *WebhookNotifier) {
		if interval > 0 {
			n.cooldown = interval
		}
	}
}

// WithRequestTimeout overrides the per-delivery timeout.
func WithRequestTimeout(timeout time.Duration) NotifierOption {
	return func(n *WebhookNotifier) {
		if timeout > 0 {
			n.requestTimeout = timeout
		}
	}
}

// WithClock overrides the default clock.
func WithClock(clock Clock) NotifierOption {
	return func(n *WebhookNotifier) {
		if clock != nil {
			n.clock = clock
		}
	}
}

// NewWebhookNotifier constructs a webhook notifier.
func NewWebhookNotifier(channel Channel, template *Template, logger *log.Logger, opts ...NotifierOption) (*WebhookNotifier, error) {
	if channel == nil {
		return nil, errors.New("webhook notifier: nil channel")
	}
	if logger == nil {
		return nil, errors.New("webhook notifier: nil logger")
	}
	if template == nil {
		defaultTemplate, err := NewTemplate("")
		if err != nil {
			return nil, err
		}
		template = defaultTemplate
	}
	notifier := &WebhookNotifier{
		channel:        channel,
		template:       template,
		logger:         logger,
		clock:          systemClock{},
		requestTimeout: 5 * time.Second,
		lastSent:       make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(notifier)
	}
	return notifier, nil
}

// Notify renders and delivers the alert. Failures are logged, never
// returned: a broken webhook must not disturb the monitoring cycle.
func (n *WebhookNotifier) Notify(ctx context.Context, alert alerts.Alert) {
	if n == nil {
		return
	}
	if n.cooldown > 0 && n.suppressed(alert) {
		return
	}

	content, err := n.template.Render(TemplateData{
		Device:   alert.DeviceID,
		Subject:  alert.SubjectID,
		Category: string(alert.Category),
		Severity: string(alert.Severity),
		Message:  alert.Message,
		Value:    strconv.FormatFloat(alert.Value, 'f', -1, 64),
		Time:     alert.RaisedAt.Format(time.RFC3339),
	})
	if err != nil {
		n.logger.Printf("alert notify render failed: device=%s err=%v", alert.DeviceID, err)
		return
	}

	sendCtx, cancel := context.WithTimeout(ctx, n.requestTimeout)
	defer cancel()
	if err := n.channel.Send(sendCtx, content); err != nil {
		n.logger.Printf("alert notify send failed: device=%s category=%s err=%v", alert.DeviceID, alert.Category, err)
	}
}

func (n *WebhookNotifier) suppressed(alert alerts.Alert) bool {
	key := alert.DeviceID + "|" + string(alert.Category)
	now := n.clock.Now()
	n.mu.Lock()
	defer n.mu.Unlock()
	if last, ok := n.lastSent[key]; ok && now.Sub(last) < n.cooldown {
		return true
	}
	n.lastSent[key] = now
	return false
}
