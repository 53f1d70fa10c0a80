package progress

import (
	"net/http/httptest"
	"strings"
	"testing"
)

func TestEncodeWritesSSEFrame(test *testing.T) {
	test.Parallel()
	var builder strings.Builder
	if err := Encode(&builder, Progress{Step: 1, Message: "Generating your portrait..."}); err != nil {
		test.Fatalf("encode: %v", err)
	}
	frame := builder.String()
	if !strings.HasPrefix(frame, "event: progress\ndata: ") {
		test.Fatalf("unexpected frame prefix: %q", frame)
	}
	if !strings.HasSuffix(frame, "\n\n") {
		test.Fatalf("frame must end with a blank line: %q", frame)
	}
	if !strings.Contains(frame, `"step":1`) || !strings.Contains(frame, `"message":"Generating your portrait..."`) {
		test.Fatalf("frame missing payload fields: %q", frame)
	}
}

func TestSSEWriterSetsStreamHeaders(test *testing.T) {
	test.Parallel()
	recorder := httptest.NewRecorder()
	if _, err := NewSSEWriter(recorder); err != nil {
		test.Fatalf("new sse writer: %v", err)
	}
	if got := recorder.Header().Get("Content-Type"); got != "text/event-stream" {
		test.Fatalf("unexpected content type %q", got)
	}
	if got := recorder.Header().Get("Cache-Control"); got != "no-cache" {
		test.Fatalf("unexpected cache control %q", got)
	}
}

func TestSSEWriterClosesAfterTerminalEvent(test *testing.T) {
	test.Parallel()
	recorder := httptest.NewRecorder()
	sse, err := NewSSEWriter(recorder)
	if err != nil {
		test.Fatalf("new sse writer: %v", err)
	}

	if err := sse.Send(Progress{Step: 0, Message: "starting"}); err != nil {
		test.Fatalf("send progress: %v", err)
	}
	if err := sse.Send(Complete{ArtifactURLs: []string{"/generated/a.png"}, CreditsCharged: 10}); err != nil {
		test.Fatalf("send complete: %v", err)
	}
	if !sse.Closed() {
		test.Fatalf("stream must close after terminal event")
	}

	// Writes after the terminal event are dropped.
	if err := sse.Send(Error{Message: "late"}); err != nil {
		test.Fatalf("send after close: %v", err)
	}
	body := recorder.Body.String()
	if strings.Count(body, "event: ") != 2 {
		test.Fatalf("expected exactly 2 frames, got body %q", body)
	}
	if strings.Contains(body, "late") {
		test.Fatalf("terminal stream accepted another event: %q", body)
	}
}

func TestIsTerminalVocabulary(test *testing.T) {
	test.Parallel()
	cases := []struct {
		event    Event
		terminal bool
	}{
		{Progress{}, false},
		{Artifact{}, false},
		{Complete{}, true},
		{Error{}, true},
	}
	for _, testCase := range cases {
		if got := IsTerminal(testCase.event); got != testCase.terminal {
			test.Fatalf("IsTerminal(%s) = %v, want %v", testCase.event.EventName(), got, testCase.terminal)
		}
	}
}
