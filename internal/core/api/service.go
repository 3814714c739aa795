// Package api implements the gRPC DerivationService.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/solatis/fieldflow/internal/core/config"
	"github.com/solatis/fieldflow/internal/core/db"
	"github.com/solatis/fieldflow/internal/form"
	"github.com/solatis/fieldflow/internal/messages"
	"github.com/solatis/fieldflow/internal/types"
)

// FormStore is the persistence the service needs. Implemented by *db.Store.
type FormStore interface {
	LoadDefinition(ctx context.Context, name string) (*types.FormDefinition, *db.FormRecord, error)
	SaveDefinition(ctx context.Context, def *types.FormDefinition, entries []*types.DerivationEntry, updatedBy string) (*db.FormRecord, bool, error)
}

// cachedForm is a live runtime for one stored form version.
type cachedForm struct {
	etag    string
	runtime *form.Runtime
}

// Service implements DerivationServer. Thin orchestration over the store
// and per-form runtimes kept in an LRU.
type Service struct {
	store  FormStore
	cfg    *config.ServiceConfig
	interp *messages.Interpolator
	logger *slog.Logger

	// ctx bounds the lifetime of every cached runtime.
	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.Mutex // serializes cache population per service
	forms *lru.Cache[string, *cachedForm]
}

// NewService creates the service. Close releases every cached runtime.
func NewService(store FormStore, cfg *config.ServiceConfig, logger *slog.Logger) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if cfg == nil {
		return nil, fmt.Errorf("cfg cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	interp, err := messages.NewInterpolator(cfg.Engine.MessageTemplateCache)
	if err != nil {
		return nil, err
	}

	forms, err := lru.NewWithEvict(cfg.FormCacheSize, func(name string, f *cachedForm) {
		f.runtime.Close()
	})
	if err != nil {
		return nil, fmt.Errorf("form cache: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		store:  store,
		cfg:    cfg,
		interp: interp,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
		forms:  forms,
	}, nil
}

// Close releases every cached runtime.
func (s *Service) Close() {
	s.cancel()
	s.forms.Purge()
}

// runtime returns the live runtime of name, loading it from the store on
// a cache miss.
func (s *Service) runtime(ctx context.Context, name string) (*cachedForm, error) {
	if f, ok := s.forms.Get(name); ok {
		return f, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if f, ok := s.forms.Get(name); ok {
		return f, nil
	}

	def, rec, err := s.store.LoadDefinition(ctx, name)
	if err != nil {
		return nil, err
	}
	f, err := s.newCachedForm(def, rec.ETag)
	if err != nil {
		return nil, err
	}
	s.forms.Add(name, f)
	s.logger.Debug("form runtime loaded", "form", name, "etag", rec.ETag)
	return f, nil
}

func (s *Service) newCachedForm(def *types.FormDefinition, etag string) (*cachedForm, error) {
	rt, err := form.New(s.ctx, def, form.Options{
		Logger:       s.logger,
		Interpolator: s.interp,
		Compile:      s.cfg.Engine.CompileOptions(),
	})
	if err != nil {
		return nil, err
	}
	return &cachedForm{etag: etag, runtime: rt}, nil
}
