package crm

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/voxleads/lead-relay/internal/model"
)

// Result is the outcome of one delivery call. Adapters report transport and
// protocol failures through Result, never as Go errors: the caller decides
// what is retryable.
type Result struct {
	Success        bool
	StatusCode     int
	Body           string
	ExternalLeadID string
	Err            string
}

// Adapter translates the canonical payload into one CRM's wire format and
// performs the call.
type Adapter interface {
	Type() model.ConnectionType
	Deliver(ctx context.Context, payload *model.DeliveryPayload, conn *model.CrmConnection) *Result
}

// Registry holds one adapter per connection type. Built once at startup;
// an unknown type in a tenant's config fails fast at resolve time rather
// than at delivery time.
type Registry struct {
	adapters map[model.ConnectionType]Adapter
}

func NewRegistry(adapters ...Adapter) (*Registry, error) {
	r := &Registry{adapters: make(map[model.ConnectionType]Adapter, len(adapters))}
	for _, a := range adapters {
		if !a.Type().Valid() {
			return nil, fmt.Errorf("adapter registered with unknown type: %s", a.Type())
		}
		if _, dup := r.adapters[a.Type()]; dup {
			return nil, fmt.Errorf("duplicate adapter for type: %s", a.Type())
		}
		r.adapters[a.Type()] = a
	}
	return r, nil
}

func (r *Registry) Resolve(t model.ConnectionType) (Adapter, error) {
	a, ok := r.adapters[t]
	if !ok {
		return nil, fmt.Errorf("no adapter for connection type: %s", t)
	}
	return a, nil
}

// resolveAuthValue expands "env:NAME" references so credentials stay out of
// the database.
func resolveAuthValue(value string) string {
	if name, ok := strings.CutPrefix(value, "env:"); ok {
		return os.Getenv(name)
	}
	return value
}

// extractByPath walks a dot-path through nested JSON objects and returns the
// value at the leaf rendered as a string.
func extractByPath(doc map[string]interface{}, path string) (string, bool) {
	if path == "" {
		return "", false
	}

	var current interface{} = doc
	for _, part := range strings.Split(path, ".") {
		m, ok := current.(map[string]interface{})
		if !ok {
			return "", false
		}
		current, ok = m[part]
		if !ok {
			return "", false
		}
	}

	switch v := current.(type) {
	case string:
		return v, v != ""
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	case bool:
		return fmt.Sprintf("%t", v), true
	case nil:
		return "", false
	default:
		return fmt.Sprintf("%v", v), true
	}
}

func newHTTPClient(timeout time.Duration) *fasthttp.Client {
	return &fasthttp.Client{
		ReadTimeout:         timeout,
		WriteTimeout:        timeout,
		MaxIdleConnDuration: 60 * time.Second,
	}
}

// doPost sends a JSON body and copies the response out of fasthttp's pooled
// buffers.
func doPost(ctx context.Context, client *fasthttp.Client, timeout time.Duration, endpoint string, headers map[string]string, body []byte) (int, []byte, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(endpoint)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	req.SetBody(body)

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(timeout)
	}

	if err := client.DoDeadline(req, resp, deadline); err != nil {
		return 0, nil, err
	}

	out := make([]byte, len(resp.Body()))
	copy(out, resp.Body())

	return resp.StatusCode(), out, nil
}
