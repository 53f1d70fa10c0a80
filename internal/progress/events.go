// Package progress defines the one-way, per-request server-push event
// stream emitted while a generation runs. Events are a closed union with a
// fixed vocabulary; a stream carries exactly one terminal event.
package progress

// Event is one element of the progress vocabulary.
type Event interface {
	EventName() string
}

// Progress announces that a step is underway.
type Progress struct {
	Step    int    `json:"step"`
	Message string `json:"message"`
}

// EventName returns the wire event name.
func (Progress) EventName() string { return "progress" }

// Artifact carries the reference of a finished step's output so clients can
// render partial results before later steps finish.
type Artifact struct {
	StepIndex int    `json:"stepIndex"`
	Ref       string `json:"ref"`
}

// EventName returns the wire event name.
func (Artifact) EventName() string { return "artifact" }

// Complete is the success terminal event.
type Complete struct {
	ArtifactURLs   []string `json:"artifactUrls"`
	CreditsCharged int64    `json:"creditsCharged"`
}

// EventName returns the wire event name.
func (Complete) EventName() string { return "complete" }

// Error is the failure terminal event. CreditsRefunded states explicitly
// whether the reservation was returned.
type Error struct {
	Message          string   `json:"message"`
	CreditsRefunded  bool     `json:"creditsRefunded"`
	PartialArtifacts []string `json:"partialArtifacts"`
}

// EventName returns the wire event name.
func (Error) EventName() string { return "error" }

// IsTerminal reports whether the event ends the stream.
func IsTerminal(event Event) bool {
	switch event.(type) {
	case Complete, Error:
		return true
	}
	return false
}

// Sink receives events for one generation request. Implementations must
// tolerate being written to after the client has gone away; delivery is
// best-effort and never influences the generation outcome.
type Sink interface {
	Send(event Event) error
}

// NopSink discards every event. Used when nobody is listening.
type NopSink struct{}

// Send discards the event.
func (NopSink) Send(Event) error { return nil }
