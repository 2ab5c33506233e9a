package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/amishk599/jobsync/internal/model"
	"github.com/amishk599/jobsync/internal/retry"
)

var _ model.Notifier = (*SlackNotifier)(nil)

// SlackNotifier posts created, merged and untaggable jobs to a Slack channel
// via Incoming Webhooks. Replays (already_exists) are not posted.
type SlackNotifier struct {
	webhookURL string
	httpClient *http.Client
	retry      retry.Policy
	logger     *slog.Logger
}

// NewSlackNotifier returns a notifier posting to webhookURL. Rate-limited
// posts are retried after the Retry-After delay.
func NewSlackNotifier(webhookURL string, httpClient *http.Client, logger *slog.Logger) *SlackNotifier {
	return &SlackNotifier{
		webhookURL: webhookURL,
		httpClient: httpClient,
		retry: retry.Policy{
			MaxRetries: 1,
			BaseDelay:  time.Second,
			Retryable:  isRateLimited,
			Logger:     logger,
		},
		logger: logger,
	}
}

func isRateLimited(err error) bool {
	var he *model.HTTPError
	return errors.As(err, &he) && he.StatusCode == http.StatusTooManyRequests
}

func (s *SlackNotifier) Notify(ctx context.Context, ev model.SyncEvent) error {
	if ev.Outcome == model.OutcomeAlreadyExists || ev.Outcome == model.OutcomeError {
		return nil
	}

	body, err := json.Marshal(buildPayload(ev))
	if err != nil {
		return fmt.Errorf("marshal slack payload: %w", err)
	}

	err = s.retry.Do(ctx, func(ctx context.Context) error {
		return s.post(ctx, body)
	})
	if err != nil {
		return fmt.Errorf("slack notification for %s/%s: %w", ev.PortalName, ev.PortalJobID, err)
	}
	s.logger.Debug("slack message sent", "outcome", ev.Outcome, "portal_job_id", ev.PortalJobID)
	return nil
}

func (s *SlackNotifier) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post to slack: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		secs, _ := strconv.Atoi(resp.Header.Get("Retry-After"))
		return &model.HTTPError{
			StatusCode: resp.StatusCode,
			RetryAfter: time.Duration(secs) * time.Second,
			Err:        fmt.Errorf("slack returned %d", resp.StatusCode),
		}
	}
	return nil
}

// Block Kit payload types.

type slackPayload struct {
	Blocks []slackBlock `json:"blocks"`
}

type slackBlock struct {
	Type   string      `json:"type"`
	Text   *slackText  `json:"text,omitempty"`
	Fields []slackText `json:"fields,omitempty"`
}

type slackText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

var outcomeHeaders = map[model.SyncOutcome]string{
	model.OutcomeCreated:   "🆕 New job",
	model.OutcomeMerged:    "➕ Opening added",
	model.OutcomeTagFailed: "⚠️ Job could not be tagged",
}

func buildPayload(ev model.SyncEvent) slackPayload {
	header := outcomeHeaders[ev.Outcome]
	if header == "" {
		header = string(ev.Outcome)
	}
	if ev.CanonicalJobID != 0 {
		header += fmt.Sprintf(" #%d", ev.CanonicalJobID)
	}

	blocks := []slackBlock{
		{
			Type: "header",
			Text: &slackText{Type: "plain_text", Text: header},
		},
		{
			Type: "section",
			Fields: []slackText{
				{Type: "mrkdwn", Text: "*Portal:*\n" + ev.PortalName},
				{Type: "mrkdwn", Text: "*Posting:*\n" + ev.PortalJobID},
			},
		},
	}
	if ev.Message != "" {
		blocks = append(blocks, slackBlock{
			Type: "section",
			Text: &slackText{Type: "mrkdwn", Text: ev.Message},
		})
	}
	blocks = append(blocks, slackBlock{Type: "divider"})
	return slackPayload{Blocks: blocks}
}

// SendTestEvent sends a dummy event to verify a notifier integration works.
func SendTestEvent(ctx context.Context, n model.Notifier) error {
	return n.Notify(ctx, model.SyncEvent{
		PortalName:  "test",
		PortalJobID: "test-001",
		Outcome:     model.OutcomeCreated,
		Message:     "jobsync test notification",
		At:          time.Now(),
	})
}
