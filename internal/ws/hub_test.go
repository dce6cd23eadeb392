package ws

import (
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"OmniHub/entity"
)

func newTestHub() *Hub {
	h := NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)))
	go h.Run()
	return h
}

func recv(t *testing.T, c *Client) []byte {
	t.Helper()
	select {
	case data := <-c.send:
		return data
	case <-time.After(time.Second):
		t.Fatal("no broadcast received")
		return nil
	}
}

func TestHubBroadcastsToRegisteredClients(t *testing.T) {
	h := newTestHub()
	client := &Client{hub: h, send: make(chan []byte, 4)}
	h.register <- client

	h.BroadcastStatus("msg-1", "wamid.1", entity.StatusDelivered)

	var event Event
	if err := json.Unmarshal(recv(t, client), &event); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if event.Type != "message.status" {
		t.Errorf("event type = %q, want message.status", event.Type)
	}
}

func TestHubEvictsSlowClient(t *testing.T) {
	h := newTestHub()
	slow := &Client{hub: h, send: make(chan []byte)}
	live := &Client{hub: h, send: make(chan []byte, 4)}
	h.register <- slow
	h.register <- live

	h.BroadcastMessage(entity.Message{MessageID: "msg-1"})
	recv(t, live)

	// The slow client's channel is closed on eviction.
	select {
	case _, ok := <-slow.send:
		if ok {
			t.Fatal("slow client received data despite a full buffer")
		}
	case <-time.After(time.Second):
		t.Fatal("slow client was not evicted")
	}

	h.BroadcastMessage(entity.Message{MessageID: "msg-2"})
	recv(t, live)
}

func TestHubUnregisterClosesSendChannel(t *testing.T) {
	h := newTestHub()
	client := &Client{hub: h, send: make(chan []byte, 4)}
	h.register <- client
	h.unregister <- client

	select {
	case _, ok := <-client.send:
		if ok {
			t.Fatal("unexpected data on unregistered client")
		}
	case <-time.After(time.Second):
		t.Fatal("send channel not closed on unregister")
	}
}
