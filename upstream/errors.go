package upstream

import "errors"

var (
	// ErrUnknownFieldType is a configuration error: a pass_fields entry
	// names a coercion this proxy doesn't implement.
	ErrUnknownFieldType = errors.New("unknown pass-through field type")

	// ErrMissingField is a client error: the inbound body is missing a
	// key the backend declares in pass_fields.
	ErrMissingField = errors.New("missing required field")

	// ErrInvalidFieldValue is a client error: a field's value couldn't
	// be coerced to its declared type.
	ErrInvalidFieldValue = errors.New("invalid field value")

	// ErrBadTemplate is a configuration error: body_template_json isn't
	// valid JSON, or isn't a JSON object.
	ErrBadTemplate = errors.New("invalid body template")

	// ErrUpstreamUnreachable covers network failures or non-2xx
	// responses from the upstream backend.
	ErrUpstreamUnreachable = errors.New("upstream unreachable")

	// ErrUpstreamMalformed covers a non-JSON response body, or a
	// response_field_path that doesn't resolve to a string.
	ErrUpstreamMalformed = errors.New("malformed upstream response")
)
