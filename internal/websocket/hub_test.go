package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func newTestClient(hub *Hub, room string, buffer int) *Client {
	return &Client{
		ID:      "client-" + room,
		Subject: "tester",
		Room:    room,
		Send:    make(chan *Message, buffer),
		Hub:     hub,
	}
}

func TestHubRegisterAndUnregister(t *testing.T) {
	hub := NewHub()
	client := newTestClient(hub, "minecraft", 1)

	hub.registerClient(client)
	if hub.GetRoomSize("minecraft") != 1 {
		t.Fatalf("expected room size 1")
	}

	hub.unregisterClient(client)
	if hub.GetRoomSize("minecraft") != 0 {
		t.Fatalf("expected room to be empty")
	}
	if err := client.SendMessage(TypePong, nil); err == nil {
		t.Fatal("expected send on an unregistered client to fail")
	}
	// A second unregister must not close the channel twice.
	hub.unregisterClient(client)
}

func TestHubBroadcastOnlyReachesRoom(t *testing.T) {
	hub := NewHub()
	subscribed := newTestClient(hub, "minecraft", 1)
	other := newTestClient(hub, "creative", 1)
	hub.registerClient(subscribed)
	hub.registerClient(other)

	hub.broadcastToRoom(&BroadcastMessage{Room: "minecraft", Message: &Message{Type: TypeServerStatus}})

	select {
	case received := <-subscribed.Send:
		if received.Type != TypeServerStatus {
			t.Fatalf("expected server_status, got %s", received.Type)
		}
	default:
		t.Fatalf("expected message to be delivered")
	}
	select {
	case msg := <-other.Send:
		t.Fatalf("unexpected delivery to another room: %+v", msg)
	default:
	}
}

func TestHubDropsForSlowClient(t *testing.T) {
	hub := NewHub()
	client := newTestClient(hub, "minecraft", 1)
	hub.registerClient(client)

	hub.broadcastToRoom(&BroadcastMessage{Room: "minecraft", Message: &Message{Type: "first"}})
	hub.broadcastToRoom(&BroadcastMessage{Room: "minecraft", Message: &Message{Type: "second"}})

	if got := (<-client.Send).Type; got != "first" {
		t.Fatalf("expected first message to be kept, got %s", got)
	}
	if len(client.Send) != 0 {
		t.Fatal("expected the overflow message to be dropped")
	}
}

func TestPublishDoesNotBlockWithoutRun(t *testing.T) {
	hub := NewHub()
	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			hub.Publish("minecraft", TypeServerStatus, i)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a stalled hub")
	}
}

func TestHubEndToEnd(t *testing.T) {
	hub := NewHub()
	hub.OnConnect = func(c *Client) {
		c.SendMessage(TypeServerStatus, map[string]string{"state": "stopped"})
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		client := NewClient(hub, conn, "minecraft", "tester")
		hub.Register <- client
		go client.WritePump()
		go client.ReadPump()
	}))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var msg Message
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if msg.Type != TypeServerStatus {
		t.Fatalf("expected initial status, got %s", msg.Type)
	}

	if err := conn.WriteJSON(Message{Type: "ping"}); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if msg.Type != TypePong {
		t.Fatalf("expected pong, got %s", msg.Type)
	}

	hub.Publish("minecraft", TypeLifecycleEvent, map[string]string{"action": "start"})
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if msg.Type != TypeLifecycleEvent {
		t.Fatalf("expected lifecycle event, got %s", msg.Type)
	}
}
