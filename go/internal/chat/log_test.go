package chat

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/mcdev12/livepoll/go/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppend_EvictsOldestPastCapacity(t *testing.T) {
	l := NewLog(DefaultCapacity)
	for i := 0; i < 201; i++ {
		l.Append(models.ChatMessage{ID: fmt.Sprintf("m%d", i)})
	}

	snap := l.Snapshot()
	require.Len(t, snap, 200)
	assert.Equal(t, "m1", snap[0].ID)
	assert.Equal(t, "m200", snap[199].ID)
	for i := range snap {
		assert.Equal(t, fmt.Sprintf("m%d", i+1), snap[i].ID)
	}
}

func TestSnapshot_IsACopy(t *testing.T) {
	l := NewLog(3)
	l.Append(models.ChatMessage{ID: "a", Text: "hi"})
	snap := l.Snapshot()
	snap[0].Text = "changed"
	assert.Equal(t, "hi", l.Snapshot()[0].Text)
}

func TestNewMessage_Validation(t *testing.T) {
	now := time.Now()

	msg, err := NewMessage("s1", "Alex", models.RoleAttendee, "  hello  ", now)
	require.NoError(t, err)
	assert.Equal(t, "hello", msg.Text)
	assert.NotEmpty(t, msg.ID)
	assert.Equal(t, models.RoleAttendee, msg.SenderRole)

	_, err = NewMessage("s1", "Alex", models.RoleAttendee, "   ", now)
	assert.ErrorIs(t, err, ErrInvalidText)

	_, err = NewMessage("s1", "Alex", models.RoleAttendee, strings.Repeat("x", 301), now)
	assert.ErrorIs(t, err, ErrInvalidText)

	_, err = NewMessage("s1", "Alex", models.RoleAttendee, strings.Repeat("é", 300), now)
	assert.NoError(t, err)
}
