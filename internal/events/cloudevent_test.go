package events

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCloudEvent_Envelope(t *testing.T) {
	id := uuid.New()
	ce, err := NewCloudEvent("service-delivery", RouteFailed, RouteFailedEvent{DeliveryID: id, Reason: "no route found"})
	require.NoError(t, err)
	ce.WithSubject(id.String())

	raw, err := json.Marshal(ce)
	require.NoError(t, err)

	parsed, err := ParseCloudEvent(raw)
	require.NoError(t, err)
	assert.Equal(t, "1.0", parsed.SpecVersion)
	assert.Equal(t, RouteFailed, parsed.Type)
	assert.Equal(t, id.String(), parsed.Subject)

	var evt RouteFailedEvent
	require.NoError(t, parsed.ParseData(&evt))
	assert.Equal(t, id, evt.DeliveryID)
	assert.Equal(t, "no route found", evt.Reason)
}

func TestParseCloudEvent_Rejects(t *testing.T) {
	_, err := ParseCloudEvent([]byte("{not json"))
	assert.Error(t, err)

	_, err = ParseCloudEvent([]byte(`{"specversion":"1.0","source":"x"}`))
	assert.Error(t, err)

	ce := &CloudEvent{ID: "1", Type: "t"}
	assert.Error(t, ce.ParseData(&struct{}{}))
}
