package pipeline

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storyloom/storyloom/internal/models"
)

func TestMessageRoundTrip(t *testing.T) {
	cases := []Body{
		ParseFile{FileID: "f1"},
		AnalyzeContent{ContentID: "c1"},
		AnalyzeProject{},
		CurateProject{},
		WriteNarrative{ContentID: "c2"},
		WriteProject{},
		BuildAndPublish{},
	}

	for _, body := range cases {
		t.Run(string(body.Kind()), func(t *testing.T) {
			msg := NewMessage("p1", 3, body)

			data, err := json.Marshal(msg)
			require.NoError(t, err)

			var got Message
			require.NoError(t, json.Unmarshal(data, &got))

			assert.Equal(t, msg.ID, got.ID)
			assert.Equal(t, "p1", got.ProjectID)
			assert.Equal(t, uint64(3), got.Generation)
			assert.Equal(t, body, got.Body)
		})
	}
}

func TestMessageEnvelopeCarriesKind(t *testing.T) {
	msg := NewMessage("p1", 1, ParseFile{FileID: "f1"})

	data, err := json.Marshal(msg)
	require.NoError(t, err)

	var envelope map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &envelope))
	assert.JSONEq(t, `"pipeline:parse_file"`, string(envelope["kind"]))
}

func TestMessageUnknownKind(t *testing.T) {
	var msg Message
	err := json.Unmarshal([]byte(`{"id":"x","kind":"pipeline:bogus","projectId":"p1"}`), &msg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown message kind")
}

func TestMessageWithoutBodyFailsToMarshal(t *testing.T) {
	_, err := json.Marshal(Message{ID: "x"})
	require.Error(t, err)
}

func TestBodyStages(t *testing.T) {
	assert.Equal(t, models.StageParse, ParseFile{}.Stage())
	assert.Equal(t, models.StageAnalyze, AnalyzeProject{}.Stage())
	assert.Equal(t, models.StageAnalyze, AnalyzeContent{}.Stage())
	assert.Equal(t, models.StageCurate, CurateProject{}.Stage())
	assert.Equal(t, models.StageWrite, WriteNarrative{}.Stage())
	assert.Equal(t, models.StageWrite, WriteProject{}.Stage())
	assert.Equal(t, models.StageBuild, BuildAndPublish{}.Stage())
}
