package reactive

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignal_SetNotifiesInSubscriptionOrder(t *testing.T) {
	s := NewSignal(1)
	var seen []string

	s.Subscribe(func(v int) { seen = append(seen, "first") })
	s.Subscribe(func(v int) { seen = append(seen, "second") })

	require.True(t, s.Set(2))
	assert.Equal(t, []string{"first", "second"}, seen)
	assert.Equal(t, 2, s.Get())
	assert.Equal(t, uint64(1), s.Version())
}

func TestSignal_WithEqualSuppressesDuplicates(t *testing.T) {
	s := NewSignal("a", WithEqual(func(a, b string) bool { return a == b }))
	calls := 0
	s.Subscribe(func(string) { calls++ })

	assert.False(t, s.Set("a"))
	assert.True(t, s.Set("b"))
	assert.False(t, s.Set("b"))
	assert.Equal(t, 1, calls)

	v, version := s.Snapshot()
	assert.Equal(t, "b", v)
	assert.Equal(t, uint64(1), version)
}

func TestSignal_Unsubscribe(t *testing.T) {
	s := NewSignal(0)
	calls := 0
	unsubscribe := s.Subscribe(func(int) { calls++ })

	s.Set(1)
	unsubscribe()
	unsubscribe()
	s.Set(2)

	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, s.Subscribers())
}

func TestSignal_Update(t *testing.T) {
	s := NewSignal(10)
	s.Update(func(v int) int { return v + 5 })
	assert.Equal(t, 15, s.Get())
}
