package notify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatchAndNotify(t *testing.T) {
	n := New[string]()

	var got []string
	reg := n.Watch([]string{"a", "b"}, func(payload string) {
		got = append(got, payload)
	})
	require.NotNil(t, reg)
	assert.ElementsMatch(t, []string{"a", "b"}, reg.WatchedKeys())

	n.Notify("a", "first")
	n.Notify("b", "second")
	n.Notify("c", "ignored")

	assert.Equal(t, []string{"first", "second"}, got)
}

func TestWatchDuplicateKeysCollapse(t *testing.T) {
	n := New[int]()

	calls := 0
	reg := n.Watch([]string{"a", "a", "a"}, func(int) { calls++ })

	n.Notify("a", 1)
	assert.Equal(t, 1, calls)
	assert.Equal(t, []string{"a"}, reg.WatchedKeys())
}

func TestUnwatchRemovesAllKeys(t *testing.T) {
	n := New[int]()

	calls := 0
	reg := n.Watch([]string{"a", "b"}, func(int) { calls++ })
	n.Unwatch(reg)

	n.Notify("a", 1)
	n.Notify("b", 2)
	assert.Equal(t, 0, calls)
	assert.False(t, n.HasWatchers("a"))
	assert.False(t, n.HasWatchers("b"))

	// Second removal is a no-op.
	n.Unwatch(reg)
}

func TestUnwatchLeavesOtherRegistrations(t *testing.T) {
	n := New[int]()

	first, second := 0, 0
	regFirst := n.Watch([]string{"a"}, func(int) { first++ })
	n.Watch([]string{"a"}, func(int) { second++ })

	n.Unwatch(regFirst)
	n.Notify("a", 1)

	assert.Equal(t, 0, first)
	assert.Equal(t, 1, second)
}

func TestActiveKeys(t *testing.T) {
	n := New[int]()
	assert.Empty(t, n.ActiveKeys())

	reg := n.Watch([]string{"a", "b"}, func(int) {})
	assert.ElementsMatch(t, []string{"a", "b"}, n.ActiveKeys())

	n.Unwatch(reg)
	assert.Empty(t, n.ActiveKeys())
}

func TestCallbacksAddedDuringNotifyDoNotFire(t *testing.T) {
	n := New[int]()

	late := 0
	n.Watch([]string{"a"}, func(int) {
		n.Watch([]string{"a"}, func(int) { late++ })
	})

	// The callback list is copied before firing, so the registration made
	// inside the callback only sees later notifications.
	n.Notify("a", 1)
	assert.Equal(t, 0, late)

	n.Notify("a", 2)
	assert.Equal(t, 1, late)
}
