package status

// Event drives a transition.
type Event interface {
	event()
}

// EventStart arms the pipeline.
type EventStart struct{}

// EventStop returns to Idle from any state.
type EventStop struct{}

// EventAnalyzing marks a frame as accepted for analysis.
type EventAnalyzing struct{}

// EventAnalyzed reports a successful analysis with its summary.
type EventAnalyzed struct {
	Status string
}

// EventFailed reports a failure.
type EventFailed struct {
	Message     string
	Recoverable bool
}

// EventAudio toggles speech output.
type EventAudio struct {
	Enabled bool
}

func (EventStart) event()     {}
func (EventStop) event()      {}
func (EventAnalyzing) event() {}
func (EventAnalyzed) event()  {}
func (EventFailed) event()    {}
func (EventAudio) event()     {}

// Next returns the state that follows cur after ev.
//
// Stop always yields Idle and only Start leaves Idle. Audio toggles only
// touch Running. A state entering Running from another variant starts with
// audio enabled; Machine overrides that with its remembered preference.
func Next(cur State, ev Event) State {
	switch e := ev.(type) {
	case EventStop:
		return Idle()

	case EventStart:
		return Running(StatusStarting, audioOf(cur))

	case EventAudio:
		if cur.IsRunning() {
			return Running(cur.Status, e.Enabled)
		}
		return cur
	}

	if cur.IsIdle() {
		return cur
	}

	switch e := ev.(type) {
	case EventAnalyzing:
		return Running(StatusAnalyzing, audioOf(cur))
	case EventAnalyzed:
		return Running(e.Status, audioOf(cur))
	case EventFailed:
		return Failed(e.Message, e.Recoverable)
	}
	return cur
}

func audioOf(s State) bool {
	if s.IsRunning() {
		return s.AudioEnabled
	}
	return true
}
