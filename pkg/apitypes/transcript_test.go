package apitypes

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeTranscript(t *testing.T) {
	t0 := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	msgs := []Message{
		{ID: "b", Type: MessageTypeAssistant, Content: "respuesta", Timestamp: t0},
		{ID: "a", Type: MessageTypeUser, Content: "pregunta", Timestamp: t0},
		{ID: "c", Type: MessageTypeUser, Content: "otra", Timestamp: t0.Add(time.Second)},
		{ID: "a", Type: MessageTypeUser, Content: "pregunta (servidor)", Timestamp: t0},
	}

	got := NormalizeTranscript(msgs)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{got[0].ID, got[1].ID, got[2].ID})
	assert.Equal(t, "pregunta (servidor)", got[0].Content)

	for i := 1; i < len(got); i++ {
		prev, cur := got[i-1], got[i]
		if prev.Timestamp.Equal(cur.Timestamp) {
			assert.False(t, prev.Type == MessageTypeAssistant && cur.Type == MessageTypeUser,
				"assistant %s placed before user %s at the same timestamp", prev.ID, cur.ID)
		}
	}
}

func TestConnectionRequestMissingFields(t *testing.T) {
	req := ConnectionRequest{Name: "prod", Engine: "postgresql", DatabaseName: "ventas"}
	assert.Equal(t, []string{"host", "port", "username"}, req.MissingFields())

	lite := ConnectionRequest{Name: "local", Engine: "sqlite", DatabaseName: "/tmp/app.db"}
	assert.Empty(t, lite.MissingFields())
}
