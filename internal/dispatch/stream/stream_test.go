package stream

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandler_StreamsEventsUntilFinal(t *testing.T) {
	h := NewHandler(nil)
	events := make(chan ProgressEvent, 4)

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		h.ServeProgress(w, r, events)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	events <- ProgressEvent{Responded: 1, Total: 4, Docs: 10, Active: 10}
	events <- ProgressEvent{Responded: 4, Total: 4, Docs: 40, Active: 40, Final: true}

	var last ProgressEvent
	for i := 0; i < 2; i++ {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		require.NoError(t, conn.ReadJSON(&last))
	}
	assert.True(t, last.Final)
	assert.Equal(t, 40, last.Docs)
}

func TestMarshalForLog_ProducesExpectedFields(t *testing.T) {
	data, err := marshalForLog(ProgressEvent{Responded: 2, Total: 4, Final: false})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"responded":2`)
	assert.Contains(t, string(data), `"total":4`)
}
