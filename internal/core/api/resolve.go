package api

import (
	"context"
	"fmt"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/solatis/fieldflow/internal/messages"
)

// ResolveErrors resolves the raw validation errors of one field against
// the form's message catalogs.
func (s *Service) ResolveErrors(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req ResolveErrorsRequest
	if err := decode(in, &req); err != nil {
		return nil, toStatus(err)
	}
	if req.Form == "" || req.Field == "" {
		return nil, toStatus(fmt.Errorf("%w: form and field required", errInvalidRequest))
	}

	f, err := s.runtime(ctx, req.Form)
	if err != nil {
		return nil, toStatus(err)
	}
	def := f.runtime.Definition()

	resolved := messages.Resolve(
		req.Errors,
		messages.StaticMap(def.Fields[req.Field].Messages),
		messages.StaticMap(def.DefaultMessages),
		s.interp,
		s.logger.With("form", req.Form, "field", req.Field),
	)

	out, err := encode(ResolveErrorsResponse{Errors: resolved})
	return out, toStatus(err)
}
