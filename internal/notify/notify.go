package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/voxleads/lead-relay/internal/model"
	"github.com/voxleads/lead-relay/pkg/logger"
)

// Notifier tells a location's staff about a delivered lead. Notification is
// best effort: implementations report errors, callers log and move on. A
// delivery never fails because an email did.
type Notifier interface {
	LeadDelivered(ctx context.Context, loc *model.Location, sub *model.Submission) error
}

// MailRelayNotifier posts a message to the internal mail relay service.
type MailRelayNotifier struct {
	client   *fasthttp.Client
	relayURL string
	from     string
	timeout  time.Duration
}

func NewMailRelayNotifier(relayURL, from string, timeout time.Duration) *MailRelayNotifier {
	return &MailRelayNotifier{
		client: &fasthttp.Client{
			ReadTimeout:  timeout,
			WriteTimeout: timeout,
		},
		relayURL: relayURL,
		from:     from,
		timeout:  timeout,
	}
}

type mailMessage struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	Body    string   `json:"body"`
}

func (n *MailRelayNotifier) LeadDelivered(ctx context.Context, loc *model.Location, sub *model.Submission) error {
	if !loc.NotifyOnLead || len(loc.NotifyEmails) == 0 {
		return nil
	}

	msg := mailMessage{
		From:    n.from,
		To:      loc.NotifyEmails,
		Subject: fmt.Sprintf("New lead for %s: %s %s", loc.Name, sub.FirstName, sub.LastName),
		Body: fmt.Sprintf("A new lead was delivered to your CRM.\n\nName: %s %s\nEmail: %s\nPhone: %s\nProgram: %s\n",
			sub.FirstName, sub.LastName, sub.Email, sub.Phone, sub.Target.ProgramID),
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal mail message: %w", err)
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(n.relayURL)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	req.SetBody(body)

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(n.timeout)
	}

	if err := n.client.DoDeadline(req, resp, deadline); err != nil {
		return fmt.Errorf("mail relay request failed: %w", err)
	}
	if resp.StatusCode() >= 300 {
		return fmt.Errorf("mail relay returned status %d", resp.StatusCode())
	}

	logger.Debug("lead notification sent",
		"location", loc.ID, "submission", sub.ID, "recipients", len(loc.NotifyEmails))
	return nil
}

// NopNotifier is used when no mail relay is configured.
type NopNotifier struct{}

func (NopNotifier) LeadDelivered(ctx context.Context, loc *model.Location, sub *model.Submission) error {
	return nil
}
