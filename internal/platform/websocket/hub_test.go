package websocket

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/clinicdesk/clinicdesk/internal/platform/store"
)

func newTestHub() *Hub {
	return NewHub(zerolog.Nop())
}

func newTestClient(id string, collections ...string) *Client {
	return &Client{
		ID:          id,
		Collections: collections,
		Send:        make(chan []byte, 256),
	}
}

func TestHub_RegisterClient(t *testing.T) {
	hub := newTestHub()
	client := newTestClient("client-1", "patients")

	hub.Register(client)

	if hub.ClientCount() != 1 {
		t.Fatalf("expected 1 client, got %d", hub.ClientCount())
	}
	if hub.CollectionCount("patients") != 1 {
		t.Fatalf("expected 1 client on patients, got %d", hub.CollectionCount("patients"))
	}
}

func TestHub_UnregisterClient(t *testing.T) {
	hub := newTestHub()
	client := newTestClient("client-2", "queue")

	hub.Register(client)
	hub.Unregister(client)

	if hub.ClientCount() != 0 {
		t.Fatalf("expected 0 clients, got %d", hub.ClientCount())
	}
	if hub.CollectionCount("queue") != 0 {
		t.Fatalf("expected 0 clients on queue, got %d", hub.CollectionCount("queue"))
	}

	// Reading from a closed channel returns immediately.
	if _, ok := <-client.Send; ok {
		t.Fatal("expected Send channel to be closed after unregister")
	}
}

func TestHub_PublishReachesSubscribedClients(t *testing.T) {
	hub := newTestHub()

	subscriber := newTestClient("sub-1", "appointments")
	nonSubscriber := newTestClient("non-sub-1", "inventory")
	hub.Register(subscriber)
	hub.Register(nonSubscriber)

	hub.Publish(store.Change{
		Origin:     "origin-a",
		Collection: "appointments",
		Snapshot:   json.RawMessage(`[{"id":"a1"}]`),
	})

	select {
	case msg := <-subscriber.Send:
		var event Event
		if err := json.Unmarshal(msg, &event); err != nil {
			t.Fatalf("failed to unmarshal event: %v", err)
		}
		if event.Type != "change" || event.Collection != "appointments" {
			t.Fatalf("unexpected event: %+v", event)
		}
		if string(event.Snapshot) != `[{"id":"a1"}]` {
			t.Fatalf("unexpected snapshot: %s", event.Snapshot)
		}
	case <-time.After(time.Second):
		t.Fatal("subscriber did not receive event")
	}

	select {
	case <-nonSubscriber.Send:
		t.Fatal("non-subscriber should not have received event")
	default:
	}
}

func TestHub_PublishReachesInProcessListeners(t *testing.T) {
	hub := newTestHub()

	var seen []store.Change
	unsub := hub.Subscribe("patients", func(ch store.Change) { seen = append(seen, ch) })

	hub.Publish(store.Change{Origin: "o1", Collection: "patients", Snapshot: json.RawMessage(`[]`)})
	unsub()
	hub.Publish(store.Change{Origin: "o1", Collection: "patients", Snapshot: json.RawMessage(`[]`)})

	if len(seen) != 1 {
		t.Fatalf("listener saw %d changes, want 1", len(seen))
	}
	if seen[0].Origin != "o1" {
		t.Errorf("origin = %q", seen[0].Origin)
	}
}

func TestHub_InboundPublishSkipsSender(t *testing.T) {
	hub := newTestHub()

	sender := newTestClient("sender", "queue")
	other := newTestClient("other", "queue")
	hub.Register(sender)
	hub.Register(other)

	var listenerSeen int
	hub.Subscribe("queue", func(store.Change) { listenerSeen++ })

	hub.ProcessMessage(sender, ClientMessage{
		Action: "publish",
		Change: &store.Change{Origin: "tab-2", Collection: "queue", Snapshot: json.RawMessage(`[]`)},
	})

	select {
	case <-other.Send:
	case <-time.After(time.Second):
		t.Fatal("other client did not receive forwarded change")
	}
	select {
	case <-sender.Send:
		t.Fatal("publishing client must not receive its own change back")
	default:
	}
	if listenerSeen != 1 {
		t.Errorf("in-process listeners saw %d changes, want 1", listenerSeen)
	}
}

func TestHub_SubscribeAndUnsubscribeMessages(t *testing.T) {
	hub := newTestHub()
	client := newTestClient("process-1")
	hub.Register(client)

	hub.ProcessMessage(client, ClientMessage{Action: "subscribe", Collections: []string{"patients", "queue"}})

	if hub.CollectionCount("patients") != 1 || hub.CollectionCount("queue") != 1 {
		t.Fatal("subscribe message did not register collections")
	}
	if len(client.Collections) != 2 {
		t.Fatalf("expected 2 collections on client, got %d", len(client.Collections))
	}

	hub.ProcessMessage(client, ClientMessage{Action: "unsubscribe", Collections: []string{"patients"}})

	if hub.CollectionCount("patients") != 0 {
		t.Fatalf("expected 0 on patients, got %d", hub.CollectionCount("patients"))
	}
	if hub.CollectionCount("queue") != 1 {
		t.Fatalf("expected 1 on queue, got %d", hub.CollectionCount("queue"))
	}
	if len(client.Collections) != 1 || client.Collections[0] != "queue" {
		t.Fatalf("unexpected client collections: %v", client.Collections)
	}
}

func TestHub_PublishToEmptyCollection(t *testing.T) {
	hub := newTestHub()

	// Should not panic.
	hub.Publish(store.Change{Collection: "nobody", Snapshot: json.RawMessage(`[]`)})
}

func TestHub_ConcurrentRegisterUnregister(t *testing.T) {
	hub := newTestHub()
	const n = 100

	var wg sync.WaitGroup
	wg.Add(n * 2)

	clients := make([]*Client, n)
	for i := range clients {
		clients[i] = newTestClient("concurrent", "queue")
	}

	for i := 0; i < n; i++ {
		go func(idx int) {
			defer wg.Done()
			hub.Register(clients[idx])
		}(i)
	}
	for i := 0; i < n; i++ {
		go func(idx int) {
			defer wg.Done()
			hub.Unregister(clients[idx])
		}(i)
	}
	wg.Wait()

	if hub.ClientCount() < 0 {
		t.Fatalf("client count should not be negative, got %d", hub.ClientCount())
	}
}

func TestHub_ActsAsChangeBusForCollections(t *testing.T) {
	hub := newTestHub()
	var bus store.ChangeBus = hub

	var seen []store.Change
	bus.Subscribe("settings", func(ch store.Change) { seen = append(seen, ch) })
	bus.Publish(store.Change{Origin: "x", Collection: "settings", Snapshot: json.RawMessage(`[{}]`)})

	if len(seen) != 1 {
		t.Fatalf("expected 1 change through bus interface, got %d", len(seen))
	}
}

func TestHandler_RegisterRoutes(t *testing.T) {
	handler := NewHandler(newTestHub())

	e := echo.New()
	handler.RegisterRoutes(e.Group(""))

	found := false
	for _, r := range e.Routes() {
		if r.Path == "/ws" && r.Method == http.MethodGet {
			found = true
			break
		}
	}
	if !found {
		t.Fatal("expected GET /ws route to be registered")
	}
}

func TestHandler_RejectsPlainHTTP(t *testing.T) {
	handler := NewHandler(newTestHub())

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := handler.HandleConnect(c)
	if err == nil && rec.Code == http.StatusSwitchingProtocols {
		t.Fatal("expected upgrade to fail for non-websocket request")
	}
}

func TestHandler_FullUpgradeWithDialer(t *testing.T) {
	hub := newTestHub()
	handler := NewHandler(hub)

	e := echo.New()
	handler.RegisterRoutes(e.Group(""))

	server := httptest.NewServer(e)
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws?collections=patients"

	dialer := gorillawebsocket.Dialer{}
	conn, resp, err := dialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("failed to dial websocket: %v", err)
	}
	defer conn.Close()

	if resp.StatusCode != http.StatusSwitchingProtocols {
		t.Fatalf("expected 101, got %d", resp.StatusCode)
	}

	time.Sleep(50 * time.Millisecond)
	if hub.ClientCount() < 1 {
		t.Fatal("expected at least 1 client registered after connect")
	}
	if hub.CollectionCount("patients") != 1 {
		t.Fatalf("query-parameter subscription missing, got %d", hub.CollectionCount("patients"))
	}

	subMsg := ClientMessage{Action: "subscribe", Collections: []string{"queue"}}
	if err := conn.WriteJSON(subMsg); err != nil {
		t.Fatalf("failed to send subscribe: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	if hub.CollectionCount("queue") != 1 {
		t.Fatalf("expected 1 subscriber on queue, got %d", hub.CollectionCount("queue"))
	}

	hub.Publish(store.Change{
		Origin:     "server",
		Collection: "queue",
		Snapshot:   json.RawMessage(`[{"id":"q1"}]`),
	})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var received Event
	if err := conn.ReadJSON(&received); err != nil {
		t.Fatalf("failed to read event: %v", err)
	}
	if received.Type != "change" || received.Collection != "queue" {
		t.Fatalf("unexpected event: %+v", received)
	}
}
