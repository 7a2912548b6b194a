package control

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewDataCollectedMessageShape(t *testing.T) {
	msg := NewDataCollectedMessage("P")
	require.NotEmpty(t, msg.ID)
	require.Equal(t, RuntimeMasterMessageListenerID, msg.ListenerID)
	require.Equal(t, ExecutorDataCollected, msg.Type)
	require.Equal(t, "P", msg.Payload.Data)
}

func TestNewDataCollectedMessageFreshIDsPerCall(t *testing.T) {
	m1 := NewDataCollectedMessage("a")
	m2 := NewDataCollectedMessage("a")
	require.NotEqual(t, m1.ID, m2.ID)
}
