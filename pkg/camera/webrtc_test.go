package camera

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
)

func TestContainsNALType(t *testing.T) {
	sps := []byte{0, 0, 0, 1, 0x67, 0x42}
	idr := []byte{0, 0, 1, 0x65, 0x88}
	slice := []byte{0, 0, 1, 0x41, 0x9a}

	if !containsNALType(sps, 7) {
		t.Error("expected SPS")
	}
	if !containsNALType(append(append([]byte{}, slice...), idr...), 5) {
		t.Error("expected IDR after a slice")
	}
	if containsNALType(slice, 5) {
		t.Error("non-IDR slice reported as IDR")
	}
}

func TestLastJPEG(t *testing.T) {
	first := []byte{0xFF, 0xD8, 0xFF, 0xE0, 1, 2, 0xFF, 0xD9}
	second := []byte{0xFF, 0xD8, 0xFF, 0xE0, 3, 4, 0xFF, 0xD9}

	got := lastJPEG(append(append([]byte{}, first...), second...))
	if !bytes.Equal(got, second) {
		t.Errorf("lastJPEG() = %v, want %v", got, second)
	}
	if lastJPEG([]byte("not a jpeg")) != nil {
		t.Error("expected nil for non-JPEG data")
	}
}

func TestSignallingFindsProducer(t *testing.T) {
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		conn.WriteJSON(map[string]string{"type": "welcome", "peerId": "me-123"})

		var req map[string]string
		if err := conn.ReadJSON(&req); err != nil || req["type"] != "list" {
			t.Errorf("expected list request, got %v (%v)", req, err)
			return
		}
		conn.WriteJSON(map[string]interface{}{
			"type": "list",
			"producers": []map[string]interface{}{
				{"id": "p-1", "meta": map[string]string{"name": "doorbell"}},
				{"id": "p-2", "meta": map[string]string{"name": "wayfinder"}},
			},
		})

		if err := conn.ReadJSON(&req); err != nil || req["type"] != "startSession" || req["peerId"] != "p-2" {
			t.Errorf("expected startSession for p-2, got %v (%v)", req, err)
		}
	}))
	defer server.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	sig := &signalling{conn: conn}
	peerID, err := sig.welcome()
	if err != nil || peerID != "me-123" {
		t.Fatalf("welcome() = %q, %v", peerID, err)
	}
	producer, err := sig.findProducer("wayfinder")
	if err != nil || producer != "p-2" {
		t.Fatalf("findProducer() = %q, %v", producer, err)
	}
	if err := sig.startSession(producer); err != nil {
		t.Fatalf("startSession: %v", err)
	}
}
