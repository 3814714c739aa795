package derivation

import (
	"github.com/solatis/fieldflow/internal/reactive"
	"github.com/solatis/fieldflow/internal/types"
)

// EntrySource supplies the current entries together with a generation that
// changes whenever the entries are replaced. A Collection rebuilds its
// lookup maps when the generation differs from the one it last saw.
type EntrySource interface {
	Entries() ([]*types.DerivationEntry, uint64)
}

// StaticEntries is an EntrySource that never changes.
func StaticEntries(entries []*types.DerivationEntry) EntrySource {
	return staticSource{entries: entries}
}

type staticSource struct {
	entries []*types.DerivationEntry
}

func (s staticSource) Entries() ([]*types.DerivationEntry, uint64) {
	return s.entries, 0
}

// SignalEntries adapts a signal of entries. Every Set on the signal starts a
// new generation, even when the new slice holds the same entries.
func SignalEntries(sig *reactive.Signal[[]*types.DerivationEntry]) EntrySource {
	return signalSource{sig: sig}
}

type signalSource struct {
	sig *reactive.Signal[[]*types.DerivationEntry]
}

func (s signalSource) Entries() ([]*types.DerivationEntry, uint64) {
	return s.sig.Snapshot()
}

// FieldSet is a set of changed field keys.
type FieldSet map[string]struct{}

// NewFieldSet builds a FieldSet from keys.
func NewFieldSet(keys ...string) FieldSet {
	s := make(FieldSet, len(keys))
	for _, k := range keys {
		s[k] = struct{}{}
	}
	return s
}

// Add inserts keys into the set.
func (s FieldSet) Add(keys ...string) {
	for _, k := range keys {
		s[k] = struct{}{}
	}
}

// Merge inserts every key of other.
func (s FieldSet) Merge(other FieldSet) {
	for k := range other {
		s[k] = struct{}{}
	}
}
