package pipeline

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/teslashibe/go-wayfinder/pkg/camera"
	"github.com/teslashibe/go-wayfinder/pkg/framegate"
	"github.com/teslashibe/go-wayfinder/pkg/netcheck"
	"github.com/teslashibe/go-wayfinder/pkg/status"
	"github.com/teslashibe/go-wayfinder/pkg/vision"
)

type spoken struct {
	Text   string
	Audio  bool
	Window time.Duration
}

// recordingSpeaker records every SpeakIfAllowed call.
type recordingSpeaker struct {
	mu    sync.Mutex
	calls []spoken
}

func (s *recordingSpeaker) SpeakIfAllowed(text string, audioEnabled bool, window time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, spoken{Text: text, Audio: audioEnabled, Window: window})
	return audioEnabled
}

func (s *recordingSpeaker) Calls() []spoken {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]spoken(nil), s.calls...)
}

// switchable is a connectivity checker tests can flip.
type switchable struct {
	online atomic.Bool
}

func (s *switchable) HasInternet() bool { return s.online.Load() }

func testFrame() camera.Frame {
	return camera.Frame{
		Data:       []byte{0xFF, 0xD8, 0xFF, 0xD9},
		MIME:       camera.MIMEJPEG,
		CapturedAt: time.Now(),
	}
}

func newTestCoordinator(t *testing.T, analyzer vision.Analyzer, network netcheck.Checker) (*Coordinator, *recordingSpeaker) {
	t.Helper()
	sp := &recordingSpeaker{}
	c, err := New(DefaultConfig(), Deps{
		Analyzer: analyzer,
		Network:  network,
		Speaker:  sp,
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return c, sp
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

var chairAndExit = vision.Result{
	Objects: []vision.DetectedObject{
		{Name: "car", EstimatedDistanceM: 12},
		{Name: "chair", EstimatedDistanceM: 2},
	},
	Text: []string{"EXIT"},
}

func TestNew_RequiresAnalyzer(t *testing.T) {
	_, err := New(DefaultConfig(), Deps{})
	if !errors.Is(err, ErrNoAnalyzer) {
		t.Errorf("New() error = %v, want ErrNoAnalyzer", err)
	}
}

func TestStart_EntersRunningWithoutAnalyzing(t *testing.T) {
	mock := vision.NewMock(chairAndExit)
	c, _ := newTestCoordinator(t, mock, netcheck.Static(true))

	c.Start()

	got := c.State()
	if !got.IsRunning() || got.Status != status.StatusStarting {
		t.Errorf("State() = %v, want Running{%q}", got, status.StatusStarting)
	}
	if mock.CallCount() != 0 {
		t.Errorf("Start() made %d analysis calls", mock.CallCount())
	}
}

func TestOnFrame_IgnoredWhenIdle(t *testing.T) {
	mock := vision.NewMock(chairAndExit)
	c, _ := newTestCoordinator(t, mock, netcheck.Static(true))

	if c.OnFrame(testFrame()) {
		t.Error("OnFrame() accepted a frame while idle")
	}
	c.Wait()
	if mock.CallCount() != 0 {
		t.Errorf("CallCount() = %d, want 0", mock.CallCount())
	}
	if m := c.Metrics(); m.DroppedStopped != 1 {
		t.Errorf("DroppedStopped = %d, want 1", m.DroppedStopped)
	}
}

func TestOnFrame_SuccessSpeaksAndSummarizes(t *testing.T) {
	mock := vision.NewMock(chairAndExit)
	c, sp := newTestCoordinator(t, mock, netcheck.Static(true))
	c.Start()

	if !c.OnFrame(testFrame()) {
		t.Fatal("OnFrame() rejected the first frame")
	}
	c.Wait()

	got := c.State()
	want := status.Running("Nearby: chair (~2.0m) Text detected.", true)
	if got != want {
		t.Errorf("State() = %v, want %v", got, want)
	}

	calls := sp.Calls()
	if len(calls) != 1 {
		t.Fatalf("speaker calls = %d, want 1", len(calls))
	}
	if calls[0].Text != "chair ahead. Text reads: EXIT" {
		t.Errorf("spoken text = %q", calls[0].Text)
	}
	if !calls[0].Audio {
		t.Error("spoken with audio disabled")
	}

	m := c.Metrics()
	if m.AnalysesStarted != 1 || m.AnalysesSucceeded != 1 || m.UtterancesSpoken != 1 {
		t.Errorf("metrics = %+v", m)
	}
	if c.Busy() {
		t.Error("Busy() after completion")
	}

	calls2 := mock.Calls()
	if len(calls2) != 1 || calls2[0].MIMEType != vision.MIMEJPEG || calls2[0].Bytes != 4 {
		t.Errorf("analyzer calls = %+v", calls2)
	}
}

func TestOnFrame_NothingToSay(t *testing.T) {
	mock := vision.NewMock(vision.Result{
		Objects: []vision.DetectedObject{{Name: "tree", EstimatedDistanceM: 20}},
		Text:    []string{},
	})
	c, sp := newTestCoordinator(t, mock, netcheck.Static(true))
	c.Start()
	c.OnFrame(testFrame())
	c.Wait()

	if n := len(sp.Calls()); n != 0 {
		t.Errorf("speaker calls = %d, want 0", n)
	}
	if got := c.State().Status; got != "No nearby objects (≤5m). No text." {
		t.Errorf("Status = %q", got)
	}
}

func TestOnFrame_SingleFlight(t *testing.T) {
	release := make(chan struct{})
	mock := vision.Blocking(release, chairAndExit)
	c, _ := newTestCoordinator(t, mock, netcheck.Static(true))
	c.Start()

	var accepted atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if c.OnFrame(testFrame()) {
				accepted.Add(1)
			}
		}()
	}
	wg.Wait()

	if got := accepted.Load(); got != 1 {
		t.Fatalf("accepted = %d, want 1", got)
	}
	if got := c.State(); got.Status != status.StatusAnalyzing {
		t.Errorf("State() while busy = %v", got)
	}

	// Still busy: more frames are dropped.
	if c.OnFrame(testFrame()) {
		t.Error("OnFrame() accepted while busy")
	}

	close(release)
	c.Wait()

	if got := mock.CallCount(); got != 1 {
		t.Errorf("CallCount() = %d, want 1", got)
	}
	if m := c.Metrics(); m.DroppedBusy != 50 {
		t.Errorf("DroppedBusy = %d, want 50", m.DroppedBusy)
	}

	// The slot is free again.
	if !c.OnFrame(testFrame()) {
		t.Error("OnFrame() rejected after completion")
	}
	c.Wait()
}

func TestStop_CancelsInFlight(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	var sawCancel atomic.Bool
	mock := &vision.Mock{
		AnalyzeFunc: func(ctx context.Context, _ []byte, _ string) (*vision.Result, error) {
			select {
			case <-release:
				return &chairAndExit, nil
			case <-ctx.Done():
				sawCancel.Store(true)
				return nil, ctx.Err()
			}
		},
	}
	c, sp := newTestCoordinator(t, mock, netcheck.Static(true))
	c.Start()

	if !c.OnFrame(testFrame()) {
		t.Fatal("OnFrame() rejected")
	}
	waitFor(t, func() bool { return mock.CallCount() == 1 })

	c.Stop()
	c.Wait()

	if !sawCancel.Load() {
		t.Error("analysis context was not cancelled")
	}
	if got := c.State(); !got.IsIdle() {
		t.Errorf("State() = %v, want Idle", got)
	}
	if n := len(sp.Calls()); n != 0 {
		t.Errorf("speaker calls = %d, want 0", n)
	}
	if m := c.Metrics(); m.AnalysesCancelled != 1 || m.AnalysesFailed != 0 {
		t.Errorf("metrics = %+v", m)
	}
	if c.Busy() {
		t.Error("Busy() after Stop")
	}
}

func TestStop_LateResultDiscarded(t *testing.T) {
	release := make(chan struct{})
	// Ignores cancellation so the result arrives after Stop.
	mock := &vision.Mock{
		AnalyzeFunc: func(ctx context.Context, _ []byte, _ string) (*vision.Result, error) {
			<-release
			return &chairAndExit, nil
		},
	}
	c, sp := newTestCoordinator(t, mock, netcheck.Static(true))
	c.Start()
	c.OnFrame(testFrame())
	waitFor(t, func() bool { return mock.CallCount() == 1 })

	c.Stop()
	close(release)
	c.Wait()

	if got := c.State(); !got.IsIdle() {
		t.Errorf("State() = %v, want Idle", got)
	}
	if n := len(sp.Calls()); n != 0 {
		t.Errorf("speaker calls = %d, want 0", n)
	}
}

// stateSpeaker records the machine state seen by each speak request.
type stateSpeaker struct {
	machine *status.Machine
	mu      sync.Mutex
	seen    []status.State
}

func (s *stateSpeaker) SpeakIfAllowed(string, bool, time.Duration) bool {
	st := s.machine.State()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen = append(s.seen, st)
	return true
}

func TestStop_NothingSpokenOnceStopped(t *testing.T) {
	machine := status.NewMachine(nil)
	sp := &stateSpeaker{machine: machine}
	c, err := New(DefaultConfig(), Deps{
		Analyzer: vision.NewMock(chairAndExit),
		Network:  netcheck.Static(true),
		Speaker:  sp,
		Status:   machine,
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	for i := 0; i < 200; i++ {
		c.Start()
		c.OnFrame(testFrame())
		c.Stop()
	}
	c.Wait()

	sp.mu.Lock()
	defer sp.mu.Unlock()
	for i, st := range sp.seen {
		if !st.IsRunning() {
			t.Fatalf("speak request %d issued in state %v", i, st)
		}
	}
}

func TestStart_SupersedesInFlight(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	mock := vision.Blocking(release, chairAndExit)
	c, _ := newTestCoordinator(t, mock, netcheck.Static(true))
	c.Start()
	c.OnFrame(testFrame())
	waitFor(t, func() bool { return mock.CallCount() == 1 })

	c.Start()
	if c.Busy() {
		t.Error("Busy() after restart")
	}
	if !c.OnFrame(testFrame()) {
		t.Error("OnFrame() rejected after restart")
	}
	c.Stop()
	c.Wait()
}

func TestOnFrame_Offline(t *testing.T) {
	net := &switchable{}
	mock := vision.NewMock(chairAndExit)
	c, _ := newTestCoordinator(t, mock, net)
	c.Start()

	if c.OnFrame(testFrame()) {
		t.Fatal("OnFrame() accepted while offline")
	}
	want := status.Failed(MessageOffline, true)
	if got := c.State(); got != want {
		t.Errorf("State() = %v, want %v", got, want)
	}
	if mock.CallCount() != 0 {
		t.Errorf("CallCount() = %d, want 0", mock.CallCount())
	}

	// Recovers on the next frame once back online.
	net.online.Store(true)
	if !c.OnFrame(testFrame()) {
		t.Fatal("OnFrame() rejected after reconnect")
	}
	c.Wait()
	if got := c.State(); !got.IsRunning() {
		t.Errorf("State() = %v, want Running", got)
	}
}

func TestOnFrame_FailureIsRecoverable(t *testing.T) {
	apiErr := &vision.APIError{StatusCode: 503, Message: "overloaded", Provider: "gemini"}
	mock := vision.WithError(apiErr)
	c, sp := newTestCoordinator(t, mock, netcheck.Static(true))
	c.Start()

	c.OnFrame(testFrame())
	c.Wait()

	got := c.State()
	if !got.IsError() || !got.Recoverable || got.Message != apiErr.Error() {
		t.Errorf("State() = %+v, want recoverable error %q", got, apiErr.Error())
	}
	if len(sp.Calls()) != 0 {
		t.Error("spoke after failure")
	}

	// The next frame retries and a success clears the error.
	mock.AnalyzeFunc = func(context.Context, []byte, string) (*vision.Result, error) {
		return &chairAndExit, nil
	}
	if !c.OnFrame(testFrame()) {
		t.Fatal("OnFrame() rejected after failure")
	}
	c.Wait()
	if got := c.State(); !got.IsRunning() {
		t.Errorf("State() = %v, want Running", got)
	}
	if m := c.Metrics(); m.AnalysesFailed != 1 || m.AnalysesSucceeded != 1 {
		t.Errorf("metrics = %+v", m)
	}
}

func TestOnFrame_ShapeErrorIsRecoverable(t *testing.T) {
	mock := vision.WithError(&vision.ShapeError{Provider: "openai", Err: errors.New("no JSON object")})
	c, _ := newTestCoordinator(t, mock, netcheck.Static(true))
	c.Start()
	c.OnFrame(testFrame())
	c.Wait()

	if got := c.State(); !got.IsError() || !got.Recoverable {
		t.Errorf("State() = %+v, want recoverable error", got)
	}
}

func TestOnFrame_ConfigErrorLatches(t *testing.T) {
	mock := vision.WithError(vision.ErrNoAPIKey)
	c, _ := newTestCoordinator(t, mock, netcheck.Static(true))
	c.Start()

	c.OnFrame(testFrame())
	c.Wait()

	got := c.State()
	if !got.IsError() || got.Recoverable {
		t.Fatalf("State() = %+v, want non-recoverable error", got)
	}
	if c.OnFrame(testFrame()) {
		t.Error("OnFrame() accepted while latched")
	}
	if mock.CallCount() != 1 {
		t.Errorf("CallCount() = %d, want 1", mock.CallCount())
	}

	c.Start()
	if got := c.State(); !got.IsRunning() {
		t.Errorf("State() after Start = %v", got)
	}
	if !c.OnFrame(testFrame()) {
		t.Error("OnFrame() rejected after Start")
	}
	c.Wait()
}

func TestAudioDisabled_StatusStillUpdates(t *testing.T) {
	mock := vision.NewMock(chairAndExit)
	c, sp := newTestCoordinator(t, mock, netcheck.Static(true))

	c.SetAudioEnabled(false)
	c.Start()
	if got := c.State(); got.AudioEnabled {
		t.Errorf("State() = %v, want audio off", got)
	}

	c.OnFrame(testFrame())
	c.Wait()

	calls := sp.Calls()
	if len(calls) != 1 || calls[0].Audio {
		t.Errorf("speaker calls = %+v, want one call with audio off", calls)
	}
	if got := c.State(); got.Status != "Nearby: chair (~2.0m) Text detected." || got.AudioEnabled {
		t.Errorf("State() = %v", got)
	}
	if m := c.Metrics(); m.UtterancesSpoken != 0 {
		t.Errorf("UtterancesSpoken = %d, want 0", m.UtterancesSpoken)
	}
}

func TestAnalysisTimeout(t *testing.T) {
	mock := vision.Blocking(make(chan struct{}), chairAndExit)
	sp := &recordingSpeaker{}
	c, err := New(Config{AnalysisTimeout: 20 * time.Millisecond}, Deps{
		Analyzer: mock,
		Speaker:  sp,
	})
	if err != nil {
		t.Fatal(err)
	}
	c.Start()
	c.OnFrame(testFrame())
	c.Wait()

	got := c.State()
	if !got.IsError() || !got.Recoverable {
		t.Errorf("State() = %+v, want recoverable error", got)
	}
}

func TestFeed_GatesFrames(t *testing.T) {
	mock := vision.NewMock(chairAndExit)
	c, _ := newTestCoordinator(t, mock, netcheck.Static(true))
	gate := framegate.New(2)
	c.Start()

	h := Feed(context.Background(), gate, c)
	base := time.Now()
	for _, off := range []time.Duration{0, 100 * time.Millisecond, 400 * time.Millisecond} {
		f := testFrame()
		f.CapturedAt = base.Add(off)
		h(f)
		c.Wait()
	}

	if got := mock.CallCount(); got != 1 {
		t.Errorf("CallCount() = %d, want 1", got)
	}
	if s := gate.Stats(); s.Admitted != 1 || s.Dropped != 2 {
		t.Errorf("gate stats = %+v", s)
	}
}

func TestFeed_StopsWithContext(t *testing.T) {
	mock := vision.NewMock(chairAndExit)
	c, _ := newTestCoordinator(t, mock, netcheck.Static(true))
	c.Start()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	Feed(ctx, framegate.New(2), c)(testFrame())
	c.Wait()

	if mock.CallCount() != 0 {
		t.Errorf("CallCount() = %d, want 0", mock.CallCount())
	}
}

func TestStart_ResetsGate(t *testing.T) {
	gate := framegate.New(1)
	c, err := New(DefaultConfig(), Deps{Analyzer: vision.NewMock(chairAndExit), Gate: gate})
	if err != nil {
		t.Fatal(err)
	}
	now := time.Now()
	gate.Admit(now)
	c.Start()
	if !gate.Admit(now.Add(10 * time.Millisecond)) {
		t.Error("gate not reset by Start")
	}
}
