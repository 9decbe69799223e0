package monitor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rockwatch/internal/bridge"
	"rockwatch/internal/state"
)

func TestViewMirrorsCameraState(t *testing.T) {
	b := bridge.New()
	st := state.NewStore()
	v := New(b, st)
	defer v.Close()

	_, ok := st.Monitoring()
	assert.False(t, ok, "no notice has been received yet")

	b.Publish(true)
	m, ok := st.Monitoring()
	require.True(t, ok)
	assert.True(t, m.CameraActive)
	assert.False(t, m.ChangedAt.IsZero())

	b.Publish(false)
	m, _ = st.Monitoring()
	assert.False(t, m.CameraActive)
	assert.Equal(t, uint64(2), v.Received())
}

func TestCloseStopsUpdates(t *testing.T) {
	b := bridge.New()
	st := state.NewStore()
	v := New(b, st)

	b.Publish(true)
	require.NoError(t, v.Close())
	assert.Equal(t, 0, b.SubscriberCount())

	b.Publish(false)
	m, _ := st.Monitoring()
	assert.True(t, m.CameraActive)
	assert.Equal(t, uint64(1), v.Received())
}

func TestViewMountedAfterPublishSeesNothing(t *testing.T) {
	b := bridge.New()
	st := state.NewStore()

	b.Publish(true)
	v := New(b, st)
	defer v.Close()

	_, ok := st.Monitoring()
	assert.False(t, ok)
}
