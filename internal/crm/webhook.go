package crm

import (
	"context"
	"encoding/json"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/voxleads/lead-relay/internal/model"
	"github.com/voxleads/lead-relay/pkg/logger"
)

// WebhookAdapter posts the canonical payload verbatim to the tenant's
// endpoint. Meant for CRMs that accept our shape directly or sit behind a
// tenant-owned translation layer.
type WebhookAdapter struct {
	client  *fasthttp.Client
	timeout time.Duration
}

func NewWebhookAdapter(timeout time.Duration) *WebhookAdapter {
	return &WebhookAdapter{
		client:  newHTTPClient(timeout),
		timeout: timeout,
	}
}

func (a *WebhookAdapter) Type() model.ConnectionType { return model.ConnectionTypeWebhook }

func (a *WebhookAdapter) Deliver(ctx context.Context, payload *model.DeliveryPayload, conn *model.CrmConnection) *Result {
	body, err := json.Marshal(payload)
	if err != nil {
		return &Result{Err: "failed to marshal payload: " + err.Error()}
	}

	headers := map[string]string{}
	if conn.AuthHeaderName != "" {
		headers[conn.AuthHeaderName] = resolveAuthValue(conn.AuthHeaderValue)
	}

	status, respBody, err := doPost(ctx, a.client, a.timeout, conn.Endpoint, headers, body)
	if err != nil {
		logger.Warn("webhook delivery transport failure",
			"tenant", conn.TenantID, "submission", payload.SubmissionID, "error", err)
		return &Result{Err: err.Error()}
	}

	result := &Result{
		StatusCode: status,
		Body:       string(respBody),
		Success:    status >= 200 && status < 300,
	}
	if !result.Success {
		result.Err = "unexpected status code: " + fasthttp.StatusMessage(status)
		return result
	}

	result.ExternalLeadID = extractLeadID(respBody, conn.ResponseIDPath)
	return result
}

// extractLeadID pulls the external id out of the response document. An
// unparseable or id-less response is not an error here; create jobs enforce
// the id requirement at the worker.
func extractLeadID(body []byte, idPath string) string {
	if idPath == "" {
		idPath = "id"
	}

	var doc map[string]interface{}
	if err := json.Unmarshal(body, &doc); err != nil {
		return ""
	}

	id, _ := extractByPath(doc, idPath)
	return id
}
