package api

import (
	"context"
	"fmt"
	"sort"

	"google.golang.org/protobuf/types/known/structpb"
)

// AffectedEntries returns the entries a change to the given fields
// schedules, split into immediate and debounced. Nothing is run.
func (s *Service) AffectedEntries(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req AffectedEntriesRequest
	if err := decode(in, &req); err != nil {
		return nil, toStatus(err)
	}
	if req.Form == "" {
		return nil, toStatus(fmt.Errorf("%w: form required", errInvalidRequest))
	}

	f, err := s.runtime(ctx, req.Form)
	if err != nil {
		return nil, toStatus(err)
	}

	resp := AffectedEntriesResponse{
		Form:            req.Form,
		ETag:            f.etag,
		Immediate:       []EntryView{},
		Debounced:       []EntryView{},
		DebouncePeriods: []int{},
	}
	periods := make(map[int]struct{})
	for _, e := range f.runtime.Affected(req.Changed...) {
		if e.IsDebounced() {
			resp.Debounced = append(resp.Debounced, entryView(e))
			periods[e.EffectiveDebounceMs()] = struct{}{}
			continue
		}
		resp.Immediate = append(resp.Immediate, entryView(e))
	}
	for ms := range periods {
		resp.DebouncePeriods = append(resp.DebouncePeriods, ms)
	}
	sort.Ints(resp.DebouncePeriods)

	out, err := encode(resp)
	return out, toStatus(err)
}
