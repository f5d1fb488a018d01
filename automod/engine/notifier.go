package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/editguard/editguard/automod/event"
)

// Optional out-of-band channel for enforcement reports, in addition to the owner notice.
type Notifier interface {
	SendEnforcement(ctx context.Context, evt event.EditEvent, rep *Report) error
}

type SlackWebhookBody struct {
	Text string `json:"text"`
}

// Sends enforcement reports to a slack channel via "incoming webhook".
//
// The slack incoming webhook must be already configured in the slack workplace.
type SlackNotifier struct {
	WebhookURL string
	Client     *http.Client
}

func NewSlackNotifier(url string, client *http.Client) *SlackNotifier {
	if client == nil {
		client = http.DefaultClient
	}
	return &SlackNotifier{WebhookURL: url, Client: client}
}

func (n *SlackNotifier) SendEnforcement(ctx context.Context, evt event.EditEvent, rep *Report) error {
	return n.SendMsg(ctx, SlackEnforcementMsg(evt, rep))
}

func SlackEnforcementMsg(evt event.EditEvent, rep *Report) string {
	msg := fmt.Sprintf("⚠ Edit Enforcement ⚠\n`chat`: `%d`\n`msg`: `%d`\n`actor`: `%d` (%s)\n`prior`: %s\n", evt.ChatID, evt.MessageID, evt.ActorID, evt.ActorName, rep.Prior)
	for _, out := range rep.Outcomes {
		msg += fmt.Sprintf("`%s`: %s", out.Action.Kind, out.Status)
		if out.Reason != "" {
			msg += fmt.Sprintf(" (%s)", out.Reason)
		}
		msg += "\n"
	}
	for _, act := range rep.Skipped {
		msg += fmt.Sprintf("`%s`: skipped\n", act.Kind)
	}
	return msg
}

func (n *SlackNotifier) SendMsg(ctx context.Context, msg string) error {
	body, err := json.Marshal(SlackWebhookBody{Text: msg})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.WebhookURL, bytes.NewBuffer(body))
	if err != nil {
		return err
	}
	req.Header.Add("Content-Type", "application/json")
	resp, err := n.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	buf := new(bytes.Buffer)
	buf.ReadFrom(resp.Body)
	if resp.StatusCode != 200 || buf.String() != "ok" {
		return fmt.Errorf("failed slack webhook POST request. status=%d", resp.StatusCode)
	}
	return nil
}
