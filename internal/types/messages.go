package types

// RawError is a validation failure as reported by a validator, before
// message resolution.
type RawError struct {
	Kind    string         `json:"kind"`
	Message string         `json:"message,omitempty"` // validator-supplied, empty if none
	Params  map[string]any `json:"params,omitempty"`  // min, max, requiredLength, ... plus arbitrary extras
}

// TemplateParams returns the values a message template may reference:
// Params plus the validator's own message under "message". An explicit
// "message" param wins.
func (e RawError) TemplateParams() map[string]any {
	if e.Message == "" {
		return e.Params
	}
	if _, ok := e.Params["message"]; ok {
		return e.Params
	}
	params := make(map[string]any, len(e.Params)+1)
	for k, v := range e.Params {
		params[k] = v
	}
	params["message"] = e.Message
	return params
}

// ResolvedError is a RawError after message priority resolution and
// parameter interpolation. Ephemeral, recomputed per emission.
type ResolvedError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}
