package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"assistant-console-go/pkg/events"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingHandler struct {
	got []events.AssistantEvent
	err error
}

func (h *recordingHandler) HandleAssistantEvent(_ context.Context, e events.AssistantEvent) error {
	h.got = append(h.got, e)
	return h.err
}

func message(t *testing.T, e events.AssistantEvent) kafka.Message {
	t.Helper()
	b, err := json.Marshal(e)
	require.NoError(t, err)
	return kafka.Message{Key: []byte(e.AssistantID), Value: b}
}

func TestDispatch_DeliversRemoteEvents(t *testing.T) {
	h := &recordingHandler{}
	e := events.AssistantEvent{Type: events.AssistantDeleted, AssistantID: "1", Source: "instance-b", OccurredAt: time.Now().UTC()}

	require.NoError(t, dispatch(context.Background(), message(t, e), "instance-a", h))
	require.Len(t, h.got, 1)
	assert.Equal(t, events.AssistantDeleted, h.got[0].Type)
	assert.Equal(t, "1", h.got[0].AssistantID)
}

func TestDispatch_SkipsOwnEvents(t *testing.T) {
	h := &recordingHandler{}
	e := events.AssistantEvent{Type: events.AssistantCreated, AssistantID: "1", Source: "instance-a"}

	require.NoError(t, dispatch(context.Background(), message(t, e), "instance-a", h))
	assert.Empty(t, h.got)
}

func TestDispatch_SkipsMalformedMessages(t *testing.T) {
	h := &recordingHandler{}

	require.NoError(t, dispatch(context.Background(), kafka.Message{Value: []byte("{not json")}, "instance-a", h))
	assert.Empty(t, h.got)
}

func TestDispatch_WrapsHandlerError(t *testing.T) {
	boom := errors.New("refresh failed")
	h := &recordingHandler{err: boom}
	e := events.AssistantEvent{Type: events.AssistantUpdated, AssistantID: "2", Source: "instance-b"}

	err := dispatch(context.Background(), message(t, e), "instance-a", h)
	assert.ErrorIs(t, err, boom)
}
