package httputil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRespondJSONWrapsData(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondJSON(rec, http.StatusCreated, map[string]string{"id": "42"})

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.JSONEq(t, `{"id":"42"}`, string(body["data"]))
	assert.Equal(t, "null", string(body["error"]))
}

func TestRespondCodedError(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondCodedError(rec, http.StatusForbidden, "CONNECTION_LIMIT_REACHED", "connection limit reached")

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.JSONEq(t,
		`{"data":null,"error":"connection limit reached","code":"CONNECTION_LIMIT_REACHED"}`,
		rec.Body.String())
}
