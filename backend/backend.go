// Package backend defines the descriptor of a single paywalled upstream
// route, shared between the credential engine, the upstream forwarder, and
// configuration loading.
package backend

// FieldType is the coercion applied to a pass-through field before it is
// overlaid onto the upstream request template.
type FieldType string

const (
	FieldString FieldType = "string"
	FieldInt    FieldType = "int"
	FieldFloat  FieldType = "float"
)

// Descriptor configures one paywalled route: where it's mounted, what it
// costs, and how its request/response are shaped against the upstream.
type Descriptor struct {
	// Name is a human-readable label for logs and the admin CLI.
	Name string `yaml:"name"`

	// Path is the proxy-side route this descriptor answers, e.g. "/echo".
	Path string `yaml:"path"`

	// UpstreamURL is the backend endpoint the forwarder POSTs to.
	UpstreamURL string `yaml:"upstream_url"`

	// StaticHeaders are additional "Name: Value" headers sent with every
	// forwarded request.
	StaticHeaders []string `yaml:"static_headers"`

	// BodyTemplateJSON is the JSON object overlaid with projected fields
	// before being sent upstream.
	BodyTemplateJSON string `yaml:"body_template_json"`

	// PassFields maps an inbound field name to the type it's coerced to
	// before being overlaid onto the body template.
	PassFields map[string]FieldType `yaml:"pass_fields"`

	// PriceMsat is the cost of a single call against this backend.
	PriceMsat uint32 `yaml:"price_msat"`

	// BudgetMultiple scales the initial quota granted per challenge;
	// zero is normalized to 1.
	BudgetMultiple uint32 `yaml:"budget_multiple"`

	// ResponseFieldPath is the dotted path into the upstream's JSON
	// response identifying the string to return to the client.
	ResponseFieldPath string `yaml:"response_field_path"`
}

// Charge returns the initial quota granted to a freshly minted credential
// for this backend, in millisatoshis.
func (d Descriptor) Charge() uint64 {
	multiple := d.BudgetMultiple
	if multiple == 0 {
		multiple = 1
	}
	return uint64(d.PriceMsat) * uint64(multiple)
}
