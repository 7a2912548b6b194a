package control

import "github.com/google/uuid"

// RuntimeMasterMessageListenerID is the fixed listener id every
// ExecutorDataCollected control message targets (spec §6).
const RuntimeMasterMessageListenerID = "RUNTIME_MASTER_MESSAGE_LISTENER_ID"

// MessageType enumerates the control message kinds the master
// understands. Only ExecutorDataCollected is produced by this core.
type MessageType string

// ExecutorDataCollected is the control message type the DynOpt hand-off
// sends (spec §4.3, §6).
const ExecutorDataCollected MessageType = "ExecutorDataCollected"

// DataCollectMessage is the DynOpt payload wrapper, bit-exact to maintain
// wire compatibility with the master.
type DataCollectMessage struct {
	Data string `json:"data"`
}

// Message is the control-message envelope sent to the master.
type Message struct {
	ID         string              `json:"id"`
	ListenerID string              `json:"listenerId"`
	Type       MessageType         `json:"type"`
	Payload    DataCollectMessage  `json:"payload"`
}

// NewDataCollectedMessage builds the ExecutorDataCollected message for a
// DynOpt hand-off, with a fresh message id.
func NewDataCollectedMessage(data string) Message {
	return Message{
		ID:         uuid.NewString(),
		ListenerID: RuntimeMasterMessageListenerID,
		Type:       ExecutorDataCollected,
		Payload:    DataCollectMessage{Data: data},
	}
}
