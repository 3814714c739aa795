package api

import (
	"fmt"

	"github.com/goccy/go-json"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/solatis/fieldflow/internal/types"
)

// AffectedEntriesRequest asks which entries a set of changed fields affects.
type AffectedEntriesRequest struct {
	Form    string   `json:"form"`
	Changed []string `json:"changed"`
}

// EntryView is the wire form of a derivation entry.
type EntryView struct {
	ID         string   `json:"id"`
	Target     string   `json:"target"`
	Source     string   `json:"source"`
	DependsOn  []string `json:"dependsOn"`
	Trigger    string   `json:"trigger"`
	DebounceMs int      `json:"debounceMs,omitempty"`
	Expression string   `json:"expression,omitempty"`
}

// AffectedEntriesResponse lists affected entries split by trigger. Debounce
// periods are the distinct windows among the debounced entries, ascending.
type AffectedEntriesResponse struct {
	Form            string      `json:"form"`
	ETag            string      `json:"etag"`
	Immediate       []EntryView `json:"immediate"`
	Debounced       []EntryView `json:"debounced"`
	DebouncePeriods []int       `json:"debouncePeriods"`
}

// ResolveErrorsRequest carries the raw validation errors of one field.
type ResolveErrorsRequest struct {
	Form   string           `json:"form"`
	Field  string           `json:"field"`
	Errors []types.RawError `json:"errors"`
}

// ResolveErrorsResponse carries the display messages of one field.
type ResolveErrorsResponse struct {
	Errors []types.ResolvedError `json:"errors"`
}

// SyncDefinitionRequest uploads a YAML form definition.
type SyncDefinitionRequest struct {
	Definition string `json:"definition"`
}

// SyncDefinitionResponse reports the stored version.
type SyncDefinitionResponse struct {
	Form       string `json:"form"`
	FormID     string `json:"formId"`
	ETag       string `json:"etag"`
	Changed    bool   `json:"changed"`
	EntryCount int    `json:"entryCount"`
}

// decode converts a Struct payload into v.
func decode(in *structpb.Struct, v any) error {
	data, err := protojson.Marshal(in)
	if err != nil {
		return fmt.Errorf("%w: %v", errInvalidRequest, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", errInvalidRequest, err)
	}
	return nil
}

// encode converts v into a Struct payload.
func encode(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode response: %w", err)
	}
	out := new(structpb.Struct)
	if err := protojson.Unmarshal(data, out); err != nil {
		return nil, fmt.Errorf("encode response: %w", err)
	}
	return out, nil
}

// Encode converts a request value into a Struct payload for the client.
func Encode(v any) (*structpb.Struct, error) {
	return encode(v)
}

// Decode converts a Struct payload into v for the client.
func Decode(in *structpb.Struct, v any) error {
	return decode(in, v)
}

func entryView(e *types.DerivationEntry) EntryView {
	return EntryView{
		ID:         string(e.ID),
		Target:     e.TargetFieldKey,
		Source:     e.SourceFieldKey,
		DependsOn:  e.DependsOn,
		Trigger:    string(e.Trigger),
		DebounceMs: e.DebounceMs,
		Expression: e.Expression,
	}
}
