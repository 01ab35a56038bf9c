package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fullFlag exercises every optional field.
const fullFlag = `{
  "variations": {
    "enabled": true,
    "disabled": false,
    "partial": {"limit": 10}
  },
  "defaultRule": {
    "percentage": {"enabled": 50, "disabled": 50}
  },
  "targeting": [
    {
      "name": "beta users",
      "query": "beta eq true",
      "variation": "enabled"
    },
    {
      "query": "internal eq true",
      "percentage": {"enabled": 100},
      "disable": true
    }
  ],
  "scheduledRollout": [
    {
      "date": "2024-06-01T00:00:00Z",
      "defaultRule": {"variation": "enabled"}
    }
  ],
  "experimentation": {
    "start": "2024-05-01T00:00:00Z",
    "end": "2024-05-15T00:00:00Z"
  },
  "trackEvents": false,
  "disable": false,
  "version": "1.2.0",
  "metadata": {"owner": "payments"},
  "bucketingKey": "teamId"
}`

func TestFlagConfigRoundTrip(t *testing.T) {
	var flag FlagConfig
	require.NoError(t, json.Unmarshal([]byte(fullFlag), &flag))

	raw, err := json.Marshal(&flag)
	require.NoError(t, err)

	var again FlagConfig
	require.NoError(t, json.Unmarshal(raw, &again))

	assert.Equal(t, flag, again)
	assert.Len(t, again.Variations, 3)
	assert.Len(t, again.Targeting, 2)
	require.NotNil(t, again.Experimentation)
	assert.Equal(t, "teamId", again.BucketingKey)
	assert.False(t, again.IsTrackEvents())
}

func TestFlagConfigDefaults(t *testing.T) {
	var flag FlagConfig
	require.NoError(t, json.Unmarshal([]byte(`{"variations": {"on": true, "off": false}}`), &flag))

	// missing trackEvents reads back as true, missing disable as false
	assert.True(t, flag.IsTrackEvents())
	assert.False(t, flag.IsDisable())
	assert.Nil(t, flag.TrackEvents)
	assert.Nil(t, flag.Disable)
}
