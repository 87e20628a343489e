package hub

import (
	"context"
	"testing"
	"time"
)

func register(t *testing.T, h *Hub) *Client {
	t.Helper()
	c := newClient(h, nil)
	select {
	case h.register <- c:
	case <-time.After(time.Second):
		t.Fatal("register blocked")
	}
	return c
}

func waitClients(t *testing.T, h *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for h.ClientCount() != n {
		if time.Now().After(deadline) {
			t.Fatalf("ClientCount() = %d, want %d", h.ClientCount(), n)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestHub_BroadcastJSON(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := New("test", nil)
	go h.Run(ctx)

	a := register(t, h)
	b := register(t, h)
	waitClients(t, h, 2)

	if err := h.BroadcastJSON(map[string]string{"kind": "running"}); err != nil {
		t.Fatalf("BroadcastJSON() error: %v", err)
	}

	for _, c := range []*Client{a, b} {
		select {
		case msg := <-c.send:
			if string(msg.Data) != `{"kind":"running"}` {
				t.Errorf("message = %q", msg.Data)
			}
		case <-time.After(time.Second):
			t.Fatal("message not delivered")
		}
	}
}

func TestHub_Unregister(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := New("test", nil)
	go h.Run(ctx)

	c := register(t, h)
	waitClients(t, h, 1)
	h.unregister <- c
	waitClients(t, h, 0)

	if _, ok := <-c.send; ok {
		t.Error("send channel still open after unregister")
	}
}

func TestHub_DropsSlowClient(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := New("test", nil)
	go h.Run(ctx)

	register(t, h)
	waitClients(t, h, 1)

	// Nobody reads; the client buffer overflows.
	for i := 0; i < cap(newClient(h, nil).send)+1; i++ {
		if err := h.BroadcastJSON(i); err != nil {
			t.Fatal(err)
		}
		time.Sleep(time.Millisecond)
	}
	waitClients(t, h, 0)
}

func TestHub_RunStopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	h := New("test", nil)
	done := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(done)
	}()

	c := register(t, h)
	waitClients(t, h, 1)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return")
	}
	if h.IsRunning() {
		t.Error("IsRunning() after stop")
	}
	if _, ok := <-c.send; ok {
		t.Error("client channel not closed")
	}
	if NewClient(h, nil) != nil {
		t.Error("NewClient() on a stopped hub returned a client")
	}
}

func TestRelay(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := New("test", nil)
	go h.Run(ctx)
	c := register(t, h)
	waitClients(t, h, 1)

	ch := make(chan int, 1)
	go Relay(ctx, h, ch)
	ch <- 42

	select {
	case msg := <-c.send:
		if string(msg.Data) != "42" {
			t.Errorf("Data = %q, want 42", msg.Data)
		}
	case <-time.After(time.Second):
		t.Fatal("relayed value not delivered")
	}
	close(ch)
}
