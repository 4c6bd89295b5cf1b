package notify

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jyothsna-ssv/CrowdShield/pkg/logging"
)

func newTestHub(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	hub := NewHub(logging.NewLogger())
	go hub.Run()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		contentID := strings.TrimPrefix(r.URL.Path, "/ws/content/")
		hub.ServeWS(contentID, w, r)
	}))
	t.Cleanup(srv.Close)
	return hub, srv
}

func dial(t *testing.T, srv *httptest.Server, contentID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/content/" + contentID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var msg Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return msg
}

func waitForClients(t *testing.T, hub *Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.ConnectionCount() != want {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d clients, have %d", want, hub.ConnectionCount())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestProgressReachesWatcher(t *testing.T) {
	hub, srv := newTestHub(t)
	conn := dial(t, srv, "content-1")
	waitForClients(t, hub, 1)

	hub.SendProgress("content-1", StageQueued, ProgressQueued)

	msg := readMessage(t, conn)
	if msg.ContentID != "content-1" || msg.Stage != StageQueued || msg.Progress != 30 {
		t.Fatalf("unexpected message: %+v", msg)
	}
	if msg.Timestamp.IsZero() {
		t.Fatal("timestamp should be set")
	}
}

func TestMessagesAreScopedToContentID(t *testing.T) {
	hub, srv := newTestHub(t)
	watcher := dial(t, srv, "content-a")
	other := dial(t, srv, "content-b")
	waitForClients(t, hub, 2)

	hub.SendProgress("content-a", StageProcessing, ProgressProcessing)
	hub.SendCompleted("content-a", "SAFE")

	first := readMessage(t, watcher)
	if first.Stage != StageProcessing {
		t.Fatalf("expected PROCESSING, got %+v", first)
	}
	done := readMessage(t, watcher)
	if done.Stage != StageDone || done.Status != "SAFE" || done.Progress != 100 {
		t.Fatalf("expected DONE/SAFE/100, got %+v", done)
	}

	other.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	if _, _, err := other.ReadMessage(); err == nil {
		t.Fatal("client for another content id should not receive messages")
	}
}

func readRawMessage(t *testing.T, conn *websocket.Conn) map[string]json.RawMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return fields
}

func TestProgressMessageWireShape(t *testing.T) {
	hub, srv := newTestHub(t)
	conn := dial(t, srv, "content-1")
	waitForClients(t, hub, 1)

	hub.SendProgress("content-1", StagePending, ProgressPending)

	fields := readRawMessage(t, conn)
	if string(fields["contentId"]) != `"content-1"` {
		t.Fatalf("expected contentId key, got %v", fields)
	}
	if string(fields["progress"]) != "10" {
		t.Fatalf("expected progress 10, got %v", fields)
	}
	for _, absent := range []string{"status", "error", "content_id"} {
		if _, ok := fields[absent]; ok {
			t.Fatalf("progress message must not carry %q: %v", absent, fields)
		}
	}
}

func TestErrorMessageWireShape(t *testing.T) {
	hub, srv := newTestHub(t)
	conn := dial(t, srv, "content-1")
	waitForClients(t, hub, 1)

	hub.SendError("content-1", "boom")

	fields := readRawMessage(t, conn)
	if string(fields["contentId"]) != `"content-1"` {
		t.Fatalf("expected contentId key, got %v", fields)
	}
	if string(fields["error"]) != `"boom"` {
		t.Fatalf("expected error text, got %v", fields)
	}
	for _, absent := range []string{"progress", "status"} {
		if _, ok := fields[absent]; ok {
			t.Fatalf("error message must not carry %q: %v", absent, fields)
		}
	}
}

func TestSendErrorCarriesMessage(t *testing.T) {
	hub, srv := newTestHub(t)
	conn := dial(t, srv, "content-1")
	waitForClients(t, hub, 1)

	hub.SendError("content-1", "classification failed")

	msg := readMessage(t, conn)
	if msg.Stage != StageError || msg.Error != "classification failed" {
		t.Fatalf("unexpected message: %+v", msg)
	}
}

func TestSendWithoutWatchersDoesNotBlock(t *testing.T) {
	hub, _ := newTestHub(t)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 500; i++ {
			hub.SendProgress("nobody-watching", StagePending, ProgressPending)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publishing with no watchers must not block")
	}
}
