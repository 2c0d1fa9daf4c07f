package crm

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/voxleads/lead-relay/internal/model"
	"github.com/voxleads/lead-relay/pkg/logger"
)

// GenericAdapter reshapes the canonical payload into the flat form a CRM's
// lead endpoint expects, driven entirely by the connection's field map. Each
// destination field is filled from a dot-path into the payload document, or
// from a "lit:" literal.
type GenericAdapter struct {
	client  *fasthttp.Client
	timeout time.Duration
}

func NewGenericAdapter(timeout time.Duration) *GenericAdapter {
	return &GenericAdapter{
		client:  newHTTPClient(timeout),
		timeout: timeout,
	}
}

func (a *GenericAdapter) Type() model.ConnectionType { return model.ConnectionTypeGeneric }

func (a *GenericAdapter) Deliver(ctx context.Context, payload *model.DeliveryPayload, conn *model.CrmConnection) *Result {
	request, err := a.buildRequest(payload, conn.FieldMap)
	if err != nil {
		return &Result{Err: "failed to build request: " + err.Error()}
	}

	body, err := json.Marshal(request)
	if err != nil {
		return &Result{Err: "failed to marshal request: " + err.Error()}
	}

	headers := map[string]string{}
	if conn.AuthHeaderName != "" {
		headers[conn.AuthHeaderName] = resolveAuthValue(conn.AuthHeaderValue)
	}

	status, respBody, err := doPost(ctx, a.client, a.timeout, conn.Endpoint, headers, body)
	if err != nil {
		logger.Warn("generic delivery transport failure",
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

// buildRequest renders the payload through the field map. Unresolvable paths
// are omitted rather than sent as empty strings.
func (a *GenericAdapter) buildRequest(payload *model.DeliveryPayload, fieldMap map[string]string) (map[string]interface{}, error) {
	// Round-trip through JSON so dot-paths address the wire names.
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	var doc map[string]interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}

	request := make(map[string]interface{}, len(fieldMap))
	for field, source := range fieldMap {
		if lit, ok := strings.CutPrefix(source, "lit:"); ok {
			request[field] = lit
			continue
		}
		if value, ok := extractByPath(doc, source); ok {
			request[field] = value
		}
	}
	return request, nil
}
