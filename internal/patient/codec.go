package patient

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/imrishuroy/insurance-relay/internal/validation"
)

var (
	// ErrMalformed is returned when the payload is not a JSON object.
	ErrMalformed = errors.New("malformed patient payload")
	// ErrMissingID is returned when the object has no usable id.
	ErrMissingID = errors.New("patient id is required")
)

var validate = validation.New()

// Parse decodes one queue payload. Anything that is not a JSON object with a
// non-empty string id is rejected.
func Parse(data []byte) (*Request, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty body", ErrMalformed)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if fields == nil {
		return nil, fmt.Errorf("%w: not an object", ErrMalformed)
	}

	raw, ok := fields[FieldID]
	if !ok {
		return nil, ErrMissingID
	}
	req := &Request{fields: fields}
	if err := json.Unmarshal(raw, &req.ID); err != nil {
		return nil, fmt.Errorf("%w: id must be a string, got %s", ErrMissingID, raw)
	}
	if err := validation.Struct(validate, req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMissingID, err)
	}
	return req, nil
}

// Enrich returns a copy of r with the non-empty policy fields merged in.
// Fields the directory does not supply are left as they arrived.
func (r *Request) Enrich(info PolicyInfo) *Request {
	out := &Request{
		ID:     r.ID,
		fields: make(map[string]json.RawMessage, len(r.fields)+2),
	}
	for k, v := range r.fields {
		out.fields[k] = v
	}
	if info.PolicyNumber != "" {
		out.fields[FieldPolicyNumber] = mustString(info.PolicyNumber)
	}
	if info.Provider != "" {
		out.fields[FieldProvider] = mustString(info.Provider)
	}
	return out
}

// MarshalJSON encodes the record as a flat object with keys in sorted order.
func (r *Request) MarshalJSON() ([]byte, error) {
	if r.fields == nil {
		return json.Marshal(map[string]string{FieldID: r.ID})
	}
	return json.Marshal(r.fields)
}

// UnmarshalJSON is Parse for callers holding a *Request.
func (r *Request) UnmarshalJSON(data []byte) error {
	parsed, err := Parse(data)
	if err != nil {
		return err
	}
	*r = *parsed
	return nil
}

func mustString(s string) json.RawMessage {
	b, _ := json.Marshal(s)
	return b
}
