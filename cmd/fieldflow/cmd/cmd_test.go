package cmd

import (
	"bytes"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solatis/fieldflow/internal/derivation"
	"github.com/solatis/fieldflow/internal/types"
)

func TestPickSecret(t *testing.T) {
	one := map[string][]byte{"a": []byte("x")}
	two := map[string][]byte{"a": []byte("x"), "b": []byte("y")}

	id, err := pickSecret(one, "")
	require.NoError(t, err)
	assert.Equal(t, "a", id)

	id, err = pickSecret(two, "b")
	require.NoError(t, err)
	assert.Equal(t, "b", id)

	_, err = pickSecret(two, "")
	assert.ErrorContains(t, err, "--secret-id")

	_, err = pickSecret(one, "missing")
	assert.ErrorContains(t, err, "not configured")

	_, err = pickSecret(map[string][]byte{}, "")
	assert.ErrorContains(t, err, "FF_HMAC_SECRET")
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := newLogger(&buf, "warn", "json")
	require.NoError(t, err)
	logger.Info("dropped")
	logger.Warn("kept", "field", "total")
	assert.NotContains(t, buf.String(), "dropped")
	assert.Contains(t, buf.String(), `"field":"total"`)

	_, err = newLogger(&buf, "loud", "json")
	assert.Error(t, err)
	_, err = newLogger(&buf, "info", "xml")
	assert.Error(t, err)
}

func TestWriteAffected(t *testing.T) {
	entries := []*types.DerivationEntry{
		{ID: "1", TargetFieldKey: "total", SourceFieldKey: "total", DependsOn: []string{"qty"}, Trigger: types.TriggerOnChange},
		{ID: "2", TargetFieldKey: "summary", SourceFieldKey: "summary", DependsOn: []string{"*"}, Trigger: types.TriggerDebounced, DebounceMs: 300},
		{ID: "3", TargetFieldKey: "tax", SourceFieldKey: "tax", DependsOn: []string{"country"}, Trigger: types.TriggerDebounced, DebounceMs: 800},
	}
	index := derivation.NewCollection(derivation.StaticEntries(entries))

	var buf bytes.Buffer
	require.NoError(t, writeAffected(&buf, index, []string{"qty"}))

	var out affectedOutput
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	assert.Equal(t, []string{"qty"}, out.Changed)
	require.Len(t, out.Entries, 2)
	assert.Equal(t, "total", out.Entries[0].Target)
	assert.Equal(t, "summary", out.Entries[1].Target)
	assert.Equal(t, []int{300}, out.DebouncePeriods)
}
