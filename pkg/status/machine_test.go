package status

import (
	"encoding/json"
	"sync"
	"testing"
	"time"
)

func TestNext(t *testing.T) {
	running := Running("Nearby: chair (~2.0m). No text.", true)
	muted := Running("x", false)
	failed := Failed("boom", true)

	tests := []struct {
		name string
		cur  State
		ev   Event
		want State
	}{
		{"start from idle", Idle(), EventStart{}, Running(StatusStarting, true)},
		{"start from running keeps audio", muted, EventStart{}, Running(StatusStarting, false)},
		{"start from error", failed, EventStart{}, Running(StatusStarting, true)},
		{"stop from idle", Idle(), EventStop{}, Idle()},
		{"stop from running", running, EventStop{}, Idle()},
		{"stop from error", failed, EventStop{}, Idle()},
		{"analyzing while idle ignored", Idle(), EventAnalyzing{}, Idle()},
		{"analyzed while idle ignored", Idle(), EventAnalyzed{Status: "late"}, Idle()},
		{"failure while idle ignored", Idle(), EventFailed{Message: "late"}, Idle()},
		{"analyzing", running, EventAnalyzing{}, Running(StatusAnalyzing, true)},
		{"analyzing keeps muted", muted, EventAnalyzing{}, Running(StatusAnalyzing, false)},
		{"analyzing recovers from error", failed, EventAnalyzing{}, Running(StatusAnalyzing, true)},
		{"analyzed", Running(StatusAnalyzing, true), EventAnalyzed{Status: "done"}, Running("done", true)},
		{"failed", running, EventFailed{Message: "No internet connection", Recoverable: true}, Failed("No internet connection", true)},
		{"failed again", failed, EventFailed{Message: "key", Recoverable: false}, Failed("key", false)},
		{"audio off in running", running, EventAudio{Enabled: false}, Running(running.Status, false)},
		{"audio ignored in idle", Idle(), EventAudio{Enabled: false}, Idle()},
		{"audio ignored in error", failed, EventAudio{Enabled: false}, failed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Next(tt.cur, tt.ev); got != tt.want {
				t.Errorf("Next(%v, %T) = %v, want %v", tt.cur, tt.ev, got, tt.want)
			}
		})
	}
}

func TestMachineRemembersAudioPreference(t *testing.T) {
	m := NewMachine(nil)

	m.Dispatch(EventAudio{Enabled: false})
	if !m.State().IsIdle() {
		t.Fatalf("audio toggle must not leave Idle, got %v", m.State())
	}

	got := m.Dispatch(EventStart{})
	if !got.IsRunning() || got.AudioEnabled {
		t.Errorf("expected muted Running after start, got %v", got)
	}

	m.Dispatch(EventFailed{Message: "x", Recoverable: true})
	m.Dispatch(EventAudio{Enabled: true})
	got = m.Dispatch(EventAnalyzing{})
	if !got.AudioEnabled {
		t.Errorf("expected preference set during Error to apply on re-entry, got %v", got)
	}
}

func TestMachineSubscribe(t *testing.T) {
	m := NewMachine(nil)
	ch, cancel := m.Subscribe(4)
	defer cancel()

	m.Dispatch(EventStart{})
	m.Dispatch(EventStop{})
	m.Dispatch(EventStop{}) // no change, no notification

	for _, want := range []Kind{KindRunning, KindIdle} {
		select {
		case c := <-ch:
			if c.To.Kind != want {
				t.Errorf("expected change to %v, got %v", want, c.To)
			}
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for change")
		}
	}

	select {
	case c := <-ch:
		t.Errorf("unexpected change %v", c)
	default:
	}
}

func TestMachineSubscribeCancel(t *testing.T) {
	m := NewMachine(nil)
	ch, cancel := m.Subscribe(1)
	cancel()
	cancel()

	m.Dispatch(EventStart{})
	if _, ok := <-ch; ok {
		t.Error("expected closed channel after cancel")
	}
}

func TestMachineConcurrentReadsNeverTorn(t *testing.T) {
	m := NewMachine(nil)
	m.Dispatch(EventStart{})

	var wg sync.WaitGroup
	stop := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			if i%2 == 0 {
				m.Dispatch(EventFailed{Message: "boom", Recoverable: true})
			} else {
				m.Dispatch(EventAnalyzed{Status: "ok"})
			}
		}
		close(stop)
	}()

	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				s := m.State()
				switch s.Kind {
				case KindError:
					if s.Message != "boom" || s.Status != "" {
						t.Errorf("torn error state: %+v", s)
						return
					}
				case KindRunning:
					if s.Status != "ok" && s.Status != StatusStarting || s.Message != "" {
						t.Errorf("torn running state: %+v", s)
						return
					}
				}
			}
		}()
	}
	wg.Wait()
}

func TestStateJSON(t *testing.T) {
	for _, s := range []State{Idle(), Running("ok", false), Failed("boom", true)} {
		data, err := json.Marshal(s)
		if err != nil {
			t.Fatalf("Marshal(%v): %v", s, err)
		}
		var got State
		if err := json.Unmarshal(data, &got); err != nil {
			t.Fatalf("Unmarshal(%s): %v", data, err)
		}
		if got != s {
			t.Errorf("round trip %s = %v, want %v", data, got, s)
		}
	}

	var k Kind
	if err := k.UnmarshalText([]byte("paused")); err == nil {
		t.Error("UnmarshalText accepted an unknown kind")
	}
}
