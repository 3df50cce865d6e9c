package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocationVisibilitySetting(t *testing.T) {

	t.Run("defaults to all when never saved", func(t *testing.T) {
		f := NewStoreFixture(t)
		defer f.tearDown()

		v, err := f.settingsStore.LocationVisibility(f.ctx, "alice")
		require.Nil(t, err)
		assert.Equal(t, VisibilityAll, v)
	})

	t.Run("round-trips a saved preference", func(t *testing.T) {
		f := NewStoreFixture(t)
		defer f.tearDown()

		err := f.settingsStore.SetLocationVisibility(f.ctx, "alice", VisibilityFriends)
		require.Nil(t, err)

		v, err := f.settingsStore.LocationVisibility(f.ctx, "alice")
		require.Nil(t, err)
		assert.Equal(t, VisibilityFriends, v)
	})

	t.Run("second save overwrites", func(t *testing.T) {
		f := NewStoreFixture(t)
		defer f.tearDown()

		require.Nil(t, f.settingsStore.SetLocationVisibility(f.ctx, "alice", VisibilityNone))
		require.Nil(t, f.settingsStore.SetLocationVisibility(f.ctx, "alice", VisibilityAll))

		v, err := f.settingsStore.LocationVisibility(f.ctx, "alice")
		require.Nil(t, err)
		assert.Equal(t, VisibilityAll, v)
	})

	t.Run("rejects unknown visibility", func(t *testing.T) {
		f := NewStoreFixture(t)
		defer f.tearDown()

		err := f.settingsStore.SetLocationVisibility(f.ctx, "alice", Visibility("everyone"))
		require.NotNil(t, err)
	})
}
