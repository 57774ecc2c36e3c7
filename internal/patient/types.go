// Package patient holds the record that flows through the relay: the inbound
// patient request, the insurance fields merged into it, and its JSON codec.
package patient

import "encoding/json"

// Wire field names shared by both queues.
const (
	FieldID           = "id"
	FieldPolicyNumber = "policyNumber"
	FieldProvider     = "provider"
)

// PolicyInfo is what the insurance directory knows about a patient.
type PolicyInfo struct {
	PolicyNumber string `json:"policyNumber,omitempty" yaml:"policyNumber,omitempty" dynamodbav:"policy_number,omitempty"`
	Provider     string `json:"provider,omitempty" yaml:"provider,omitempty" dynamodbav:"provider,omitempty"`
}

// Empty reports whether there is nothing to merge.
func (p PolicyInfo) Empty() bool {
	return p.PolicyNumber == "" && p.Provider == ""
}

// Request is a parsed patient record. Every field of the source object is
// kept as raw JSON so re-encoding does not alter values the relay does not own.
type Request struct {
	ID string `json:"id" validate:"required"`

	fields map[string]json.RawMessage
}

// Field returns the raw JSON for name and whether it was present.
func (r *Request) Field(name string) (json.RawMessage, bool) {
	v, ok := r.fields[name]
	return v, ok
}

// Len is the number of top-level fields, id included.
func (r *Request) Len() int { return len(r.fields) }
