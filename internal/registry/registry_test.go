package registry

import (
	"testing"

	"github.com/google/uuid"
	"github.com/kestrelio/ipcbridge/internal/objectid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeInterfaceIDDeterministic(t *testing.T) {
	guid := uuid.MustParse("12345678-1234-5678-90ab-cdef01234567")
	a := ComputeInterfaceID(guid)
	b := ComputeInterfaceID(guid)
	assert.Equal(t, a, b)
	assert.NotZero(t, a)
}

func TestRegisterAndLookupByAllThreeIndices(t *testing.T) {
	r := New()
	guid := uuid.New()
	id := objectid.ID{SessionID: 1, Generation: 1, LocalID: 1}

	info, err := r.Register(id, guid, 1, "TestObject", 1, RegisterOptions{})
	require.NoError(t, err)
	assert.NotZero(t, info.InterfaceID)

	byName, ok := r.LookupByName("TestObject")
	require.True(t, ok)
	assert.Equal(t, id, byName.ObjectID)

	byID, ok := r.GetInfo(id)
	require.True(t, ok)
	assert.Equal(t, "TestObject", byID.Name)

	byIface := r.LookupByInterface(info.InterfaceID)
	require.Len(t, byIface, 1)
	assert.Equal(t, id, byIface[0].ObjectID)
}

func TestRegisterRejectsDuplicateObjectID(t *testing.T) {
	r := New()
	guid := uuid.New()
	id := objectid.ID{SessionID: 1, Generation: 1, LocalID: 1}
	_, err := r.Register(id, guid, 1, "A", 1, RegisterOptions{})
	require.NoError(t, err)

	_, err = r.Register(id, guid, 1, "B", 1, RegisterOptions{})
	assert.ErrorIs(t, err, ErrDuplicateElement)
}

func TestRegisterRejectsDuplicateName(t *testing.T) {
	r := New()
	guid := uuid.New()
	id1 := objectid.ID{SessionID: 1, Generation: 1, LocalID: 1}
	id2 := objectid.ID{SessionID: 1, Generation: 1, LocalID: 2}
	_, err := r.Register(id1, guid, 1, "same", 1, RegisterOptions{})
	require.NoError(t, err)

	_, err = r.Register(id2, guid, 1, "same", 1, RegisterOptions{})
	assert.ErrorIs(t, err, ErrDuplicateElement)
}

func TestRegisterRejectsEmptyName(t *testing.T) {
	r := New()
	id := objectid.ID{SessionID: 1, Generation: 1, LocalID: 1}
	_, err := r.Register(id, uuid.New(), 1, "", 1, RegisterOptions{})
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestUnregisterAllFromSession(t *testing.T) {
	r := New()
	guid := uuid.New()
	for i := uint32(1); i <= 3; i++ {
		id := objectid.ID{SessionID: 5, Generation: 1, LocalID: i}
		_, err := r.Register(id, guid, 5, "obj"+string(rune('A'+i)), 1, RegisterOptions{})
		require.NoError(t, err)
	}
	otherID := objectid.ID{SessionID: 6, Generation: 1, LocalID: 1}
	_, err := r.Register(otherID, guid, 6, "other", 1, RegisterOptions{})
	require.NoError(t, err)

	removed := r.UnregisterAllFromSession(5)
	assert.Equal(t, 3, removed)
	assert.Equal(t, 1, r.Count())
	assert.True(t, r.ObjectExists(otherID))
}

func TestThreeIndicesStayConsistentAfterUnregister(t *testing.T) {
	r := New()
	guid := uuid.New()
	id := objectid.ID{SessionID: 1, Generation: 1, LocalID: 1}
	info, err := r.Register(id, guid, 1, "X", 1, RegisterOptions{})
	require.NoError(t, err)

	require.NoError(t, r.Unregister(id))
	_, ok := r.LookupByName("X")
	assert.False(t, ok)
	_, ok = r.GetInfo(id)
	assert.False(t, ok)
	assert.Empty(t, r.LookupByInterface(info.InterfaceID))
}
