// Package upstream builds and executes the templated HTTP request each
// paywalled backend forwards to, and extracts the string response the
// client ultimately receives.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/lightninglabs/lsatproxy/backend"
)

// defaultTimeout is the upstream HTTP deadline used when a Forwarder isn't
// constructed with an explicit one.
const defaultTimeout = 30 * time.Second

// Forwarder builds and executes the upstream HTTP call described by a
// backend.Descriptor.
type Forwarder struct {
	client  *http.Client
	timeout time.Duration
}

// NewForwarder constructs a Forwarder whose upstream calls are bounded by
// timeout. A zero timeout selects the default of 30 seconds.
func NewForwarder(timeout time.Duration) *Forwarder {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Forwarder{client: &http.Client{}, timeout: timeout}
}

// Forward projects fields onto the backend's body template, issues the
// upstream request, and returns the paragraphs extracted from the
// response per response_field_path.
func (f *Forwarder) Forward(ctx context.Context, b backend.Descriptor,
	fields map[string]string) ([]string, error) {

	projected, err := projectFields(fields, b.PassFields)
	if err != nil {
		return nil, err
	}

	body, err := buildBody(b.BodyTemplateJSON, projected)
	if err != nil {
		return nil, err
	}

	respBody, err := f.post(ctx, b, body)
	if err != nil {
		return nil, err
	}

	extracted, err := extractField(respBody, b.ResponseFieldPath)
	if err != nil {
		return nil, err
	}

	return splitParagraphs(extracted), nil
}

// projectFields coerces each field named in passFields, rejecting a
// missing key as a client error and an unrecognized type as a
// configuration error.
func projectFields(fields map[string]string,
	passFields map[string]backend.FieldType) (map[string]any, error) {

	projected := make(map[string]any, len(passFields))

	for name, typ := range passFields {
		raw, ok := fields[name]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrMissingField, name)
		}

		switch typ {
		case backend.FieldString:
			projected[name] = raw

		case backend.FieldInt:
			v, err := strconv.ParseInt(raw, 10, 32)
			if err != nil {
				return nil, fmt.Errorf("%w: field %q: %v",
					ErrInvalidFieldValue, name, err)
			}
			projected[name] = int32(v)

		case backend.FieldFloat:
			v, err := strconv.ParseFloat(raw, 32)
			if err != nil {
				return nil, fmt.Errorf("%w: field %q: %v",
					ErrInvalidFieldValue, name, err)
			}
			projected[name] = float32(v)

		default:
			return nil, fmt.Errorf("%w: %q", ErrUnknownFieldType, typ)
		}
	}

	return projected, nil
}

// buildBody parses templateJSON as a JSON object and overlays projected
// fields onto its top level.
func buildBody(templateJSON string, projected map[string]any) ([]byte, error) {
	tmpl := make(map[string]any)
	if strings.TrimSpace(templateJSON) != "" {
		if err := json.Unmarshal([]byte(templateJSON), &tmpl); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadTemplate, err)
		}
	}

	for k, v := range projected {
		tmpl[k] = v
	}

	out, err := json.Marshal(tmpl)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadTemplate, err)
	}

	return out, nil
}

// post issues the overlaid body as an HTTPS POST to the backend's upstream
// URL, attaching its static headers, and returns the response body in
// full.
func (f *Forwarder) post(ctx context.Context, b backend.Descriptor,
	body []byte) ([]byte, error) {

	ctxt, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(
		ctxt, http.MethodPost, b.UpstreamURL, bytes.NewReader(body),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnreachable, err)
	}
	req.Header.Set("Content-Type", "application/json")

	for _, raw := range b.StaticHeaders {
		name, value, ok := strings.Cut(raw, ": ")
		if !ok {
			continue
		}
		req.Header.Set(name, value)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnreachable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnreachable, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: status %d", ErrUpstreamUnreachable,
			resp.StatusCode)
	}

	log.Debugf("forwarded request to %v, got status %d", b.UpstreamURL,
		resp.StatusCode)

	return respBody, nil
}

// extractField parses respBody as JSON and walks dottedPath, where each
// segment is either an object key or a non-negative array index.
func extractField(respBody []byte, dottedPath string) (string, error) {
	var parsed any
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("%w: %v", ErrUpstreamMalformed, err)
	}

	current := parsed
	for _, segment := range strings.Split(dottedPath, ".") {
		if idx, err := strconv.Atoi(segment); err == nil && idx >= 0 {
			arr, ok := current.([]any)
			if !ok || idx >= len(arr) {
				return "", fmt.Errorf("%w: index %q not found",
					ErrUpstreamMalformed, segment)
			}
			current = arr[idx]
			continue
		}

		obj, ok := current.(map[string]any)
		if !ok {
			return "", fmt.Errorf("%w: key %q not found",
				ErrUpstreamMalformed, segment)
		}
		value, ok := obj[segment]
		if !ok {
			return "", fmt.Errorf("%w: key %q not found",
				ErrUpstreamMalformed, segment)
		}
		current = value
	}

	str, ok := current.(string)
	if !ok {
		return "", fmt.Errorf("%w: extracted value is not a string",
			ErrUpstreamMalformed)
	}

	return str, nil
}

// splitParagraphs trims surrounding whitespace and splits on blank lines.
func splitParagraphs(s string) []string {
	return strings.Split(strings.TrimSpace(s), "\n\n")
}
