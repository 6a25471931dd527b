package roster

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdmitAndList_OrderedByJoinTime(t *testing.T) {
	clock := clockwork.NewFakeClock()
	r := NewRegistry(clock)

	require.NotNil(t, r.Admit("s2", "Blake", "c2"))
	clock.Advance(time.Second)
	require.NotNil(t, r.Admit("s1", "Alex", "c1"))
	clock.Advance(time.Second)
	require.NotNil(t, r.Admit("s3", "Casey", "c3"))

	list := r.List()
	require.Len(t, list, 3)
	assert.Equal(t, []string{"s2", "s1", "s3"}, []string{list[0].StudentID, list[1].StudentID, list[2].StudentID})
	assert.Equal(t, 3, r.ActiveCount())
}

func TestIsNameTaken_TrimmedCaseInsensitive(t *testing.T) {
	r := NewRegistry(clockwork.NewFakeClock())
	r.Admit("s1", "Alex", "c1")

	assert.True(t, r.IsNameTaken("alex", "s2"))
	assert.True(t, r.IsNameTaken("  ALEX ", "s2"))
	assert.False(t, r.IsNameTaken("Alex", "s1"), "own name must not collide with itself")
	assert.False(t, r.IsNameTaken("Alexa", "s2"))
}

func TestKick_IsPermanent(t *testing.T) {
	r := NewRegistry(clockwork.NewFakeClock())
	r.Admit("s1", "Alex", "c1")

	evicted := r.Kick("s1")
	require.NotNil(t, evicted)
	assert.Equal(t, "c1", evicted.ConnectionID)
	assert.Equal(t, 0, r.ActiveCount())
	assert.True(t, r.IsKicked("s1"))

	assert.Nil(t, r.Admit("s1", "Alex", "c9"))
	assert.Nil(t, r.Admit("s1", "Someone Else", "c10"))
	assert.Equal(t, 0, r.ActiveCount())
}

func TestKick_AbsentStudentStillBanned(t *testing.T) {
	r := NewRegistry(clockwork.NewFakeClock())
	assert.Nil(t, r.Kick("ghost"))
	assert.Nil(t, r.Admit("ghost", "Ghost", "c1"))
}

func TestRemoveByConnection(t *testing.T) {
	r := NewRegistry(clockwork.NewFakeClock())
	r.Admit("s1", "Alex", "c1")

	removed := r.RemoveByConnection("c1")
	require.NotNil(t, removed)
	assert.Equal(t, "s1", removed.StudentID)
	assert.Equal(t, 0, r.ActiveCount())
	assert.Nil(t, r.RemoveByConnection("c1"))

	// Not kicked, so the student may come back.
	assert.NotNil(t, r.Admit("s1", "Alex", "c2"))
}

func TestRejoinOnNewConnection_OldDisconnectDoesNotEvict(t *testing.T) {
	r := NewRegistry(clockwork.NewFakeClock())
	r.Admit("s1", "Alex", "c1")
	r.Admit("s1", "Alex", "c2")

	assert.Equal(t, 1, r.ActiveCount())
	assert.Nil(t, r.RemoveByConnection("c1"))
	require.NotNil(t, r.Get("s1"))
	assert.Equal(t, "c2", r.Get("s1").ConnectionID)

	assert.NotNil(t, r.RemoveByConnection("c2"))
	assert.Equal(t, 0, r.ActiveCount())
}
