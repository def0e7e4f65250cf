// Package sink forwards live contract events to HTTP webhooks.
package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"text/template"
	"time"

	"github.com/devblac/batchtrace/internal/events"
	"github.com/devblac/batchtrace/internal/fault"
)

// EventPayload is the data passed to sink templates.
type EventPayload struct {
	Kind      string
	BatchID   string
	BatchName string
	Actor     string
	Block     uint64
	TxHash    string
	LogIndex  uint
	Timestamp *time.Time
}

// PayloadOf flattens ev for templates.
func PayloadOf(ev events.Event) EventPayload {
	m := ev.Base()
	p := EventPayload{
		Kind:      ev.Kind().String(),
		BatchID:   m.SubjectID,
		Actor:     ev.Actor(),
		Block:     m.BlockNumber,
		TxHash:    m.TransactionHash,
		LogIndex:  m.LogIndex,
		Timestamp: m.Timestamp,
	}
	if c, ok := ev.(events.BatchCreated); ok {
		p.BatchName = c.BatchName
	}
	return p
}

type Sender interface {
	Send(ctx context.Context, payload EventPayload) error
}

// StatusError is a non-2xx webhook response.
type StatusError struct {
	Status int
}

func (e *StatusError) Error() string { return fmt.Sprintf("sink http status %d", e.Status) }

// Category maps the status onto the retry categories: 429 is RATE_LIMIT,
// 408 and 504 are TIMEOUT, other 5xx are PROVIDER.
func (e *StatusError) Category() fault.Code {
	switch {
	case e.Status == http.StatusTooManyRequests:
		return fault.RateLimit
	case e.Status == http.StatusRequestTimeout || e.Status == http.StatusGatewayTimeout:
		return fault.Timeout
	case e.Status >= 500:
		return fault.Provider
	default:
		return fault.Unknown
	}
}

type httpSender struct {
	url     string
	method  string
	render  *template.Template
	client  *http.Client
	headers map[string]string
}

// NewWebhookSender builds a generic HTTP sink.
func NewWebhookSender(url, method, tmpl string, headers map[string]string) (Sender, error) {
	if url == "" {
		return nil, fmt.Errorf("webhook url required")
	}
	if method == "" {
		method = http.MethodPost
	}
	t, err := parseTemplate(tmpl)
	if err != nil {
		return nil, err
	}
	return &httpSender{
		url:     url,
		method:  strings.ToUpper(method),
		render:  t,
		client:  defaultClient(),
		headers: headers,
	}, nil
}

// NewSlackSender builds a Slack-compatible webhook sink.
func NewSlackSender(url, tmpl string) (Sender, error) {
	return NewWebhookSender(url, http.MethodPost, tmpl, map[string]string{
		"Content-Type": "application/json",
	})
}

// NewTeamsSender builds a Teams-compatible webhook sink.
func NewTeamsSender(url, tmpl string) (Sender, error) {
	// Teams accepts simple {text: "..."} payloads.
	return NewWebhookSender(url, http.MethodPost, tmpl, map[string]string{
		"Content-Type": "application/json",
	})
}

// New builds a sender by type: webhook, slack or teams.
func New(kind, url, method, tmpl string) (Sender, error) {
	switch strings.ToLower(kind) {
	case "slack":
		return NewSlackSender(url, tmpl)
	case "teams":
		return NewTeamsSender(url, tmpl)
	case "webhook":
		return NewWebhookSender(url, method, tmpl, map[string]string{"Content-Type": "application/json"})
	default:
		return nil, fmt.Errorf("unsupported sink type: %s", kind)
	}
}

func (s *httpSender) Send(ctx context.Context, payload EventPayload) error {
	bodyStr, err := executeTemplate(s.render, payload)
	if err != nil {
		return err
	}
	reqBody, err := json.Marshal(map[string]string{
		"text": bodyStr,
	})
	if err != nil {
		return fmt.Errorf("marshal body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, s.method, s.url, bytes.NewReader(reqBody))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	for k, v := range s.headers {
		req.Header.Set(k, v)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return &StatusError{Status: resp.StatusCode}
	}
	return nil
}

func parseTemplate(tmpl string) (*template.Template, error) {
	if tmpl == "" {
		tmpl = "{{.Kind}} batch {{.BatchID}} by {{short_addr .Actor}} at block {{.Block}}"
	}
	funcs := template.FuncMap{
		"pretty_json": func(v any) string {
			out, _ := json.MarshalIndent(v, "", "  ")
			return string(out)
		},
		"short_addr": func(addr string) string {
			if len(addr) <= 10 {
				return addr
			}
			return addr[:6] + "..." + addr[len(addr)-4:]
		},
	}
	return template.New("msg").Funcs(funcs).Parse(tmpl)
}

func executeTemplate(t *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render template: %w", err)
	}
	return buf.String(), nil
}

func defaultClient() *http.Client {
	return &http.Client{
		Timeout: 8 * time.Second,
	}
}
