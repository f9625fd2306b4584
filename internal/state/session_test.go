package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AbdelilahOu/dbroute/internal/database"
)

func TestStore_GetOrCreateUsesDefaults(t *testing.T) {
	s := NewStore("primary", database.ModeDual)

	sess := s.GetOrCreate(DefaultSessionID)

	assert.Equal(t, DefaultSessionID, sess.ID)
	assert.Equal(t, "primary", sess.Connection)
	assert.Equal(t, database.ModeDual, sess.Mode)
	assert.Equal(t, sess, s.GetOrCreate(DefaultSessionID))
	assert.Equal(t, 1, s.Len())
}

func TestStore_EmptyIDGetsRandomID(t *testing.T) {
	s := NewStore("primary", database.ModeRead)

	a := s.GetOrCreate("")
	b := s.GetOrCreate("")

	require.NotEmpty(t, a.ID)
	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, 2, s.Len())
}

func TestStore_SwitchAndClose(t *testing.T) {
	s := NewStore("primary", database.ModeRead)

	sess := s.Switch(DefaultSessionID, "analytics")
	assert.Equal(t, "analytics", sess.Connection)
	assert.Equal(t, "analytics", s.GetOrCreate(DefaultSessionID).Connection)

	s.Close(DefaultSessionID)
	assert.Equal(t, "primary", s.GetOrCreate(DefaultSessionID).Connection)
}
