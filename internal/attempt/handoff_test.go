package attempt

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-portal/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResultSlot_FirstDeliveryWins(t *testing.T) {
	slot := NewResultSlot()
	_, ok := slot.Result()
	assert.False(t, ok)

	first := model.Result{AttemptID: uuid.New(), Score: 8}
	slot.Deliver(first)
	slot.Deliver(model.Result{AttemptID: uuid.New(), Score: 1})

	select {
	case <-slot.Ready():
	default:
		t.Fatal("slot not ready after delivery")
	}
	got, ok := slot.Result()
	require.True(t, ok)
	assert.Equal(t, first, got)
}

func TestHandoffFunc(t *testing.T) {
	var got []model.Result
	var h ResultHandoff = HandoffFunc(func(r model.Result) { got = append(got, r) })

	h.Deliver(model.Result{Score: 3})
	require.Len(t, got, 1)
	assert.Equal(t, 3, got[0].Score)
}
