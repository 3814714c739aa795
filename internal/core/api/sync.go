package api

import (
	"context"
	"fmt"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/solatis/fieldflow/internal/core/auth"
	"github.com/solatis/fieldflow/internal/form"
)

// SyncDefinition validates and stores a YAML form definition. A cached
// runtime of the same form is switched to the new entries in place.
func (s *Service) SyncDefinition(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req SyncDefinitionRequest
	if err := decode(in, &req); err != nil {
		return nil, toStatus(err)
	}

	def, err := form.ParseDefinition([]byte(req.Definition))
	if err != nil {
		return nil, toStatus(fmt.Errorf("%w: %v", errInvalidRequest, err))
	}
	entries, err := form.CompileDefinition(def, s.cfg.Engine.CompileOptions())
	if err != nil {
		return nil, toStatus(err)
	}

	var updatedBy string
	if p, ok := auth.PrincipalFromContext(ctx); ok {
		updatedBy = p.Name
	}

	rec, changed, err := s.store.SaveDefinition(ctx, def, entries, updatedBy)
	if err != nil {
		return nil, toStatus(err)
	}

	if changed {
		if f, ok := s.forms.Peek(def.Name); ok {
			if err := f.runtime.Replace(def); err != nil {
				s.forms.Remove(def.Name)
			} else {
				s.forms.Add(def.Name, &cachedForm{etag: rec.ETag, runtime: f.runtime})
			}
		}
		s.logger.Info("form definition synced",
			"form", def.Name,
			"etag", rec.ETag,
			"entries", rec.EntryCount,
			"updated_by", updatedBy)
	}

	out, err := encode(SyncDefinitionResponse{
		Form:       rec.Name,
		FormID:     rec.FormID,
		ETag:       rec.ETag,
		Changed:    changed,
		EntryCount: rec.EntryCount,
	})
	return out, toStatus(err)
}
