// Package alert notifies operators when a run fails.
package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
)

const defaultTimeout = 10 * time.Second

// ErrWebhook marks a failed webhook delivery.
var ErrWebhook = errors.New("alert webhook failed")

// Failure describes a failed task instance.
type Failure struct {
	TaskID        string
	ExecutionDate time.Time
	RunID         string
	Cursor        int
	Err           error
}

// Notifier delivers failure alerts.
type Notifier interface {
	Notify(ctx context.Context, f Failure) error
}

// Nop drops every alert.
type Nop struct{}

// Notify implements Notifier.
func (Nop) Notify(context.Context, Failure) error { return nil }

// Slack posts alerts to an incoming webhook.
type Slack struct {
	url  string
	http *http.Client
}

// NewSlack returns a Slack notifier for webhookURL.
func NewSlack(webhookURL string) *Slack {
	return &Slack{url: webhookURL, http: &http.Client{Timeout: defaultTimeout}}
}

// Message renders the alert text.
func Message(f Failure) string {
	errText := "unknown"
	if f.Err != nil {
		errText = f.Err.Error()
	}
	return fmt.Sprintf(":red_circle: Task Failed.\n*Task*: %s\n*Execution Date*: %s\n*Run*: %s\n*Resume Cursor*: %d\n*Error*: %s",
		f.TaskID, f.ExecutionDate.Format("2006-01-02"), f.RunID, f.Cursor, errText)
}

// Notify implements Notifier.
func (s *Slack) Notify(ctx context.Context, f Failure) error {
	body, err := json.Marshal(map[string]string{"text": Message(f)})
	if err != nil {
		return errors.Wrap(err, "encode alert")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return errors.Mark(errors.Wrap(err, "build request"), ErrWebhook)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return errors.Mark(errors.Wrap(err, "post alert"), ErrWebhook)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode/100 != 2 {
		return errors.Mark(errors.Newf("webhook returned %d", resp.StatusCode), ErrWebhook)
	}
	return nil
}
