package db

import (
	"context"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/jmoiron/sqlx"
	"github.com/zeebo/blake3"

	"github.com/solatis/fieldflow/internal/types"
)

// ErrFormNotFound is returned when no form has the requested name.
var ErrFormNotFound = errors.New("form not found")

// defaultsFieldKey is the field_key under which form-level default
// messages are stored.
const defaultsFieldKey = ""

// FormRecord is the stored metadata of a form definition.
type FormRecord struct {
	FormID     string    `db:"form_id"`
	Name       string    `db:"name"`
	ETag       string    `db:"etag"`
	EntryCount int       `db:"entry_count"`
	CreatedAt  time.Time `db:"created_at"`
	UpdatedAt  time.Time `db:"updated_at"`
	UpdatedBy  string    `db:"updated_by"`
}

type formRow struct {
	FormRecord
	Definition string `db:"definition"`
}

type entryRow struct {
	EntryID    string `db:"entry_id"`
	Position   int    `db:"position"`
	Target     string `db:"target_field_key"`
	Source     string `db:"source_field_key"`
	DependsOn  string `db:"depends_on"`
	Trigger    string `db:"trigger_kind"`
	DebounceMs int    `db:"debounce_ms"`
	Expression string `db:"expression"`
}

type messageRow struct {
	FieldKey string `db:"field_key"`
	Kind     string `db:"kind"`
	Message  string `db:"message"`
}

// Store persists form definitions together with their compiled entries and
// message catalogs.
type Store struct {
	db      *sqlx.DB
	queries *Queries
	now     func() time.Time
}

// NewStore creates a store over db using the named queries q.
func NewStore(db *sqlx.DB, q *Queries) *Store {
	return &Store{
		db:      db,
		queries: q,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// ETag returns the content hash of def. Map keys are encoded sorted, so
// equal definitions hash equally.
func ETag(def *types.FormDefinition) (string, error) {
	canonical := *def
	canonical.ID = ""
	data, err := json.Marshal(&canonical)
	if err != nil {
		return "", fmt.Errorf("encode definition: %w", err)
	}
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:16]), nil
}

// SaveDefinition stores def and its compiled entries under def.Name,
// replacing any previous version. Returns changed=false without writing
// when the stored definition already has the same ETag.
func (s *Store) SaveDefinition(ctx context.Context, def *types.FormDefinition, entries []*types.DerivationEntry, updatedBy string) (*FormRecord, bool, error) {
	etag, err := ETag(def)
	if err != nil {
		return nil, false, err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()
	q := s.queries.WithTx(tx)

	var existing formRow
	err = q.Get(ctx, "get-form-by-name", &existing, def.Name)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		existing.FormID = ""
	case err != nil:
		return nil, false, fmt.Errorf("load form %q: %w", def.Name, err)
	case existing.ETag == etag:
		return &existing.FormRecord, false, nil
	}

	now := s.now()
	rec := FormRecord{
		FormID:     existing.FormID,
		Name:       def.Name,
		ETag:       etag,
		EntryCount: len(entries),
		CreatedAt:  existing.CreatedAt,
		UpdatedAt:  now,
		UpdatedBy:  updatedBy,
	}

	stored := *def
	if rec.FormID == "" {
		rec.FormID = string(def.ID)
		if rec.FormID == "" {
			rec.FormID = string(types.NewFormID())
		}
		rec.CreatedAt = now
	}
	stored.ID = types.FormID(rec.FormID)

	definition, err := json.Marshal(&stored)
	if err != nil {
		return nil, false, fmt.Errorf("encode definition: %w", err)
	}

	if existing.FormID == "" {
		_, err = q.Exec(ctx, "insert-form", rec.FormID, rec.Name, string(definition), rec.ETag,
			rec.EntryCount, rec.CreatedAt, rec.UpdatedAt, rec.UpdatedBy)
	} else {
		_, err = q.Exec(ctx, "update-form", string(definition), rec.ETag, rec.EntryCount,
			rec.UpdatedAt, rec.UpdatedBy, rec.FormID)
	}
	if err != nil {
		return nil, false, fmt.Errorf("write form %q: %w", def.Name, err)
	}

	if err := replaceEntries(ctx, q, rec.FormID, entries); err != nil {
		return nil, false, err
	}
	if err := replaceMessages(ctx, q, rec.FormID, def); err != nil {
		return nil, false, err
	}

	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("commit form %q: %w", def.Name, err)
	}
	return &rec, true, nil
}

func replaceEntries(ctx context.Context, q *Queries, formID string, entries []*types.DerivationEntry) error {
	if _, err := q.Exec(ctx, "delete-entries-for-form", formID); err != nil {
		return fmt.Errorf("clear entries: %w", err)
	}
	for i, e := range entries {
		deps, err := json.Marshal(e.DependsOn)
		if err != nil {
			return fmt.Errorf("encode dependencies of %s: %w", e.ID, err)
		}
		_, err = q.Exec(ctx, "insert-entry", string(e.ID), formID, i, e.TargetFieldKey,
			e.SourceFieldKey, string(deps), string(e.Trigger), e.DebounceMs, e.Expression)
		if err != nil {
			return fmt.Errorf("insert entry %s: %w", e.ID, err)
		}
	}
	return nil
}

func replaceMessages(ctx context.Context, q *Queries, formID string, def *types.FormDefinition) error {
	if _, err := q.Exec(ctx, "delete-messages-for-form", formID); err != nil {
		return fmt.Errorf("clear messages: %w", err)
	}
	insert := func(field string, catalog map[string]string) error {
		for kind, text := range catalog {
			if _, err := q.Exec(ctx, "insert-field-message", formID, field, kind, text); err != nil {
				return fmt.Errorf("insert message %s/%s: %w", field, kind, err)
			}
		}
		return nil
	}
	if err := insert(defaultsFieldKey, def.DefaultMessages); err != nil {
		return err
	}
	for field, fd := range def.Fields {
		if err := insert(field, fd.Messages); err != nil {
			return err
		}
	}
	return nil
}

// LoadDefinition returns the stored definition of name.
func (s *Store) LoadDefinition(ctx context.Context, name string) (*types.FormDefinition, *FormRecord, error) {
	var row formRow
	err := s.queries.Get(ctx, "get-form-by-name", &row, name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, fmt.Errorf("%w: %s", ErrFormNotFound, name)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("load form %q: %w", name, err)
	}

	var def types.FormDefinition
	if err := json.Unmarshal([]byte(row.Definition), &def); err != nil {
		return nil, nil, fmt.Errorf("decode form %q: %w", name, err)
	}
	return &def, &row.FormRecord, nil
}

// LoadEntries returns the compiled entries stored for formID in order.
func (s *Store) LoadEntries(ctx context.Context, formID string) ([]*types.DerivationEntry, error) {
	var rows []entryRow
	if err := s.queries.Select(ctx, "list-entries-for-form", &rows, formID); err != nil {
		return nil, fmt.Errorf("load entries: %w", err)
	}

	entries := make([]*types.DerivationEntry, 0, len(rows))
	for _, r := range rows {
		var deps []string
		if err := json.Unmarshal([]byte(r.DependsOn), &deps); err != nil {
			return nil, fmt.Errorf("decode dependencies of %s: %w", r.EntryID, err)
		}
		entries = append(entries, &types.DerivationEntry{
			ID:             types.EntryID(r.EntryID),
			TargetFieldKey: r.Target,
			SourceFieldKey: r.Source,
			DependsOn:      deps,
			Trigger:        types.Trigger(r.Trigger),
			DebounceMs:     r.DebounceMs,
			Expression:     r.Expression,
		})
	}
	return entries, nil
}

// LoadMessages returns the stored catalogs of formID: the form-level
// defaults and the per-field messages.
func (s *Store) LoadMessages(ctx context.Context, formID string) (map[string]string, map[string]map[string]string, error) {
	var rows []messageRow
	if err := s.queries.Select(ctx, "list-messages-for-form", &rows, formID); err != nil {
		return nil, nil, fmt.Errorf("load messages: %w", err)
	}

	defaults := make(map[string]string)
	fields := make(map[string]map[string]string)
	for _, r := range rows {
		if r.FieldKey == defaultsFieldKey {
			defaults[r.Kind] = r.Message
			continue
		}
		if fields[r.FieldKey] == nil {
			fields[r.FieldKey] = make(map[string]string)
		}
		fields[r.FieldKey][r.Kind] = r.Message
	}
	return defaults, fields, nil
}

// ListForms returns the metadata of every stored form ordered by name.
func (s *Store) ListForms(ctx context.Context) ([]FormRecord, error) {
	var records []FormRecord
	if err := s.queries.Select(ctx, "list-forms", &records); err != nil {
		return nil, fmt.Errorf("list forms: %w", err)
	}
	return records, nil
}

// DeleteForm removes name with its entries and messages.
func (s *Store) DeleteForm(ctx context.Context, name string) error {
	res, err := s.queries.Exec(ctx, "delete-form", name)
	if err != nil {
		return fmt.Errorf("delete form %q: %w", name, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrFormNotFound, name)
	}
	return nil
}
