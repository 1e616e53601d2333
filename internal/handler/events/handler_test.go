package events

import (
	"bufio"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/person-api/backend/internal/model/person"
	"github.com/zhouzirui/person-api/backend/internal/service/events"
)

func setupServer(t *testing.T) (*httptest.Server, *events.Broker) {
	t.Helper()
	broker := events.NewBroker(8, zerolog.Nop())
	r := chi.NewRouter()
	New(broker, zerolog.Nop()).RegisterRoutes(r)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, broker
}

func TestSSEStreamsPublishedEvents(t *testing.T) {
	srv, broker := setupServer(t)

	resp, err := http.Get(srv.URL + "/events")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	require.Equal(t, 1, broker.Subscribers())

	broker.Publish(events.NewEvent(events.Added, person.Person{ID: 2, Name: "Sam"}))

	reader := bufio.NewReader(resp.Body)
	eventLine, err := reader.ReadString('\n')
	require.NoError(t, err)
	dataLine, err := reader.ReadString('\n')
	require.NoError(t, err)

	assert.Equal(t, "event: added\n", eventLine)
	assert.True(t, strings.HasPrefix(dataLine, "data: "))
	assert.Contains(t, dataLine, `"person":{"id":2,"name":"Sam"}`)
}

func TestWebSocketStreamsPublishedEvents(t *testing.T) {
	srv, broker := setupServer(t)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/events/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return broker.Subscribers() == 1 }, time.Second, 10*time.Millisecond)

	sent := events.NewEvent(events.Updated, person.Person{ID: 1, Name: "Y"})
	broker.Publish(sent)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got events.Event
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, sent.ID, got.ID)
	assert.Equal(t, events.Updated, got.Type)
	assert.Equal(t, sent.Person, got.Person)
}

func TestWebSocketUnsubscribesOnClose(t *testing.T) {
	srv, broker := setupServer(t)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/events/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return broker.Subscribers() == 1 }, time.Second, 10*time.Millisecond)

	conn.Close()
	assert.Eventually(t, func() bool { return broker.Subscribers() == 0 }, 2*time.Second, 10*time.Millisecond)
}
