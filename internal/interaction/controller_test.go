package interaction

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"

	"github.com/dohr-michael/lumi/internal/backend"
	"github.com/dohr-michael/lumi/internal/events"
	"github.com/dohr-michael/lumi/internal/transcript"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// --- fakes ---

type call struct {
	op      backend.Operation
	payload any
	reply   chan result
}

type result struct {
	resp backend.Response
	err  error
}

// fakeDispatcher hands every request to the test, which answers it.
type fakeDispatcher struct {
	calls chan *call
}

func newFakeDispatcher() *fakeDispatcher {
	return &fakeDispatcher{calls: make(chan *call, 8)}
}

func (d *fakeDispatcher) Dispatch(ctx context.Context, op backend.Operation, payload any) (backend.Response, error) {
	c := &call{op: op, payload: payload, reply: make(chan result, 1)}
	d.calls <- c
	select {
	case r := <-c.reply:
		return r.resp, r.err
	case <-ctx.Done():
		return backend.Response{}, &backend.Failure{Kind: backend.TransportFailure, Op: op, Message: backend.DefaultFailureMessage, Err: ctx.Err()}
	}
}

func (d *fakeDispatcher) next(t *testing.T) *call {
	t.Helper()
	select {
	case c := <-d.calls:
		return c
	case <-time.After(time.Second):
		t.Fatal("no request dispatched")
		return nil
	}
}

func (d *fakeDispatcher) assertNoCall(t *testing.T) {
	t.Helper()
	select {
	case c := <-d.calls:
		t.Fatalf("unexpected request %s", c.op)
	case <-time.After(20 * time.Millisecond):
	}
}

func (c *call) succeed(resp backend.Response) { c.reply <- result{resp: resp} }

func (c *call) fail(msg string) {
	c.reply <- result{err: &backend.Failure{Kind: backend.ServerFailure, Op: c.op, Status: 500, Message: msg}}
}

// manualClock fires AfterFunc callbacks only when told to.
type manualClock struct {
	mu      sync.Mutex
	pending []*manualTimer
}

type manualTimer struct {
	d       time.Duration
	f       func()
	stopped bool
}

func (t *manualTimer) Stop() bool {
	was := !t.stopped
	t.stopped = true
	return was
}

func (m *manualClock) Now() time.Time { return time.Unix(0, 0) }

func (m *manualClock) AfterFunc(d time.Duration, f func()) Timer {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := &manualTimer{d: d, f: f}
	m.pending = append(m.pending, t)
	return t
}

// Fire runs every pending timer, including stale ones.
func (m *manualClock) Fire() {
	m.mu.Lock()
	pending := m.pending
	m.pending = nil
	m.mu.Unlock()
	for _, t := range pending {
		t.f()
	}
}

func (m *manualClock) durations() []time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []time.Duration
	for _, t := range m.pending {
		out = append(out, t.d)
	}
	return out
}

// --- helpers ---

type entry struct {
	Author transcript.Author
	Text   string
}

func entries(s Snapshot) []entry {
	out := make([]entry, 0, len(s.Messages))
	for _, m := range s.Messages {
		out = append(out, entry{m.Author, m.Text})
	}
	return out
}

func newController(t *testing.T, opts Options) (*Controller, *fakeDispatcher, *manualClock) {
	t.Helper()
	d := newFakeDispatcher()
	clk := &manualClock{}
	opts.Dispatcher = d
	opts.Clock = clk
	c, err := New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(c.Close)
	return c, d, clk
}

func waitProcessing(t *testing.T, c *Controller, want Processing) Snapshot {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for {
		s := c.Snapshot()
		if s.Processing == want {
			return s
		}
		if time.Now().After(deadline) {
			t.Fatalf("processing = %s, want %s", s.Processing, want)
		}
		time.Sleep(time.Millisecond)
	}
}

func writeFile(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte("content"), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// loadDocument drives a successful upload and returns the controller in
// DocumentQA mode.
func loadDocument(t *testing.T, c *Controller, d *fakeDispatcher, name string) {
	t.Helper()
	if got := c.SelectFile(writeFile(t, name)); got != Accepted {
		t.Fatalf("SelectFile = %s", got)
	}
	d.next(t).succeed(backend.Response{Status: "success", Filename: name})
	waitProcessing(t, c, Idle)
}

// --- tests ---

func TestNewRequiresDispatcher(t *testing.T) {
	if _, err := New(Options{}); err == nil {
		t.Fatal("expected error without dispatcher")
	}
}

func TestInitialState(t *testing.T) {
	c, _, _ := newController(t, Options{SessionID: "sess_1", Welcome: true})

	s := c.Snapshot()
	if s.Mode != GeneralMode() || s.Processing != Idle {
		t.Fatalf("initial state = %+v/%s", s.Mode, s.Processing)
	}
	if len(s.Messages) != 0 {
		t.Fatalf("welcome must not be a message, got %v", s.Messages)
	}
	if !s.Welcome || !s.InputEnabled() || s.Highlight() {
		t.Fatalf("unexpected affordances %+v", s)
	}
	if s.SessionID != "sess_1" || s.ModeLabel != "General" {
		t.Fatalf("unexpected snapshot %+v", s)
	}
}

func TestSubmitTextGeneral(t *testing.T) {
	c, d, _ := newController(t, Options{Welcome: true})

	if got := c.SubmitText("hello"); got != Accepted {
		t.Fatalf("SubmitText = %s", got)
	}
	s := c.Snapshot()
	if s.Processing != Busy || s.InputEnabled() {
		t.Fatalf("processing = %s, want busy", s.Processing)
	}
	if s.Welcome {
		t.Fatal("welcome should be dismissed on first interaction")
	}

	req := d.next(t)
	if req.op != backend.OpTextCommand {
		t.Fatalf("op = %s, want text-command", req.op)
	}
	if diff := cmp.Diff(backend.TextInput{UserInput: "hello"}, req.payload); diff != "" {
		t.Fatalf("payload mismatch (-want +got):\n%s", diff)
	}
	req.succeed(backend.Response{FullText: "hi there"})

	s = waitProcessing(t, c, Idle)
	want := []entry{
		{transcript.AuthorUser, "hello"},
		{transcript.AuthorAssistant, "hi there"},
	}
	if diff := cmp.Diff(want, entries(s)); diff != "" {
		t.Fatalf("transcript mismatch (-want +got):\n%s", diff)
	}
}

func TestSubmitTextFailure(t *testing.T) {
	c, d, _ := newController(t, Options{})

	c.SubmitText("hello")
	d.next(t).fail("model overloaded")

	s := waitProcessing(t, c, Idle)
	want := []entry{
		{transcript.AuthorUser, "hello"},
		{transcript.AuthorError, "model overloaded"},
	}
	if diff := cmp.Diff(want, entries(s)); diff != "" {
		t.Fatalf("transcript mismatch (-want +got):\n%s", diff)
	}
}

func TestSubmitTextValidation(t *testing.T) {
	c, d, _ := newController(t, Options{Welcome: true})

	for _, text := range []string{"", "   ", "\n\t"} {
		if got := c.SubmitText(text); got != Ignored {
			t.Fatalf("SubmitText(%q) = %s, want ignored", text, got)
		}
	}
	d.assertNoCall(t)

	s := c.Snapshot()
	if len(s.Messages) != 0 || s.Processing != Idle || !s.Welcome {
		t.Fatalf("blank submissions must leave no trace, got %+v", s)
	}
}

func TestSubmitTextTrims(t *testing.T) {
	c, d, _ := newController(t, Options{})

	c.SubmitText("  hello  ")
	req := d.next(t)
	if got := req.payload.(backend.TextInput).UserInput; got != "hello" {
		t.Fatalf("user_input = %q", got)
	}
	req.succeed(backend.Response{FullText: "ok"})
	waitProcessing(t, c, Idle)
}

func TestSingleFlight(t *testing.T) {
	c, d, _ := newController(t, Options{})
	path := writeFile(t, "notes.txt")

	c.SubmitText("first")
	req := d.next(t)

	if got := c.SubmitText("second"); got != Ignored {
		t.Fatalf("SubmitText while busy = %s", got)
	}
	if got := c.ActivateOrb(); got != Ignored {
		t.Fatalf("ActivateOrb while busy = %s", got)
	}
	if got := c.SelectFile(path); got != Ignored {
		t.Fatalf("SelectFile while busy = %s", got)
	}
	d.assertNoCall(t)

	if n := len(c.Snapshot().Messages); n != 1 {
		t.Fatalf("rejected actions must not touch the transcript, got %d messages", n)
	}

	req.succeed(backend.Response{FullText: "done"})
	waitProcessing(t, c, Idle)

	if got := c.SubmitText("third"); got != Accepted {
		t.Fatalf("SubmitText after resolution = %s", got)
	}
	d.next(t).succeed(backend.Response{FullText: "ok"})
	waitProcessing(t, c, Idle)
}

func TestVoiceSuccessBeforeTimer(t *testing.T) {
	c, d, clk := newController(t, Options{})

	if got := c.ActivateOrb(); got != Accepted {
		t.Fatalf("ActivateOrb = %s", got)
	}
	s := c.Snapshot()
	if s.Processing != Listening || !s.Highlight() || s.InputEnabled() {
		t.Fatalf("unexpected state %+v", s)
	}
	if s.Placeholder == 0 {
		t.Fatal("placeholder should be exposed while listening")
	}
	if diff := cmp.Diff([]entry{{transcript.AuthorSystem, ListeningText}}, entries(s)); diff != "" {
		t.Fatalf("transcript mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]time.Duration{DefaultListenWindow}, clk.durations()); diff != "" {
		t.Fatalf("timer mismatch (-want +got):\n%s", diff)
	}

	req := d.next(t)
	if req.op != backend.OpVoiceCommand || req.payload != nil {
		t.Fatalf("unexpected request %s %v", req.op, req.payload)
	}
	req.succeed(backend.Response{UserText: "what time is it", FullText: "It is noon."})
	waitProcessing(t, c, Idle)

	// The late timer must not resurrect the placeholder.
	clk.Fire()

	s = c.Snapshot()
	want := []entry{
		{transcript.AuthorUser, "what time is it"},
		{transcript.AuthorAssistant, "It is noon."},
	}
	if diff := cmp.Diff(want, entries(s)); diff != "" {
		t.Fatalf("transcript mismatch (-want +got):\n%s", diff)
	}
	if s.Processing != Idle || s.Placeholder != 0 {
		t.Fatalf("unexpected state after late timer %+v", s)
	}
}

func TestVoiceTimerThenSuccess(t *testing.T) {
	c, d, clk := newController(t, Options{ListenWindow: 3 * time.Second})

	c.ActivateOrb()
	req := d.next(t)

	if diff := cmp.Diff([]time.Duration{3 * time.Second}, clk.durations()); diff != "" {
		t.Fatalf("timer mismatch (-want +got):\n%s", diff)
	}
	clk.Fire()

	s := c.Snapshot()
	if s.Processing != Thinking || !s.Highlight() {
		t.Fatalf("processing = %s, want thinking", s.Processing)
	}
	if diff := cmp.Diff([]entry{{transcript.AuthorSystem, ThinkingText}}, entries(s)); diff != "" {
		t.Fatalf("transcript mismatch (-want +got):\n%s", diff)
	}

	req.succeed(backend.Response{FullText: "Sure."})
	s = waitProcessing(t, c, Idle)

	if diff := cmp.Diff([]entry{{transcript.AuthorAssistant, "Sure."}}, entries(s)); diff != "" {
		t.Fatalf("transcript mismatch (-want +got):\n%s", diff)
	}
}

func TestVoiceFailureBeforeTimer(t *testing.T) {
	bus := events.NewBus(64)
	defer bus.Close()
	ch, unsub := bus.SubscribeChan(64, events.EventTranscriptUpdated, events.EventTranscriptRemoved)
	defer unsub()

	c, d, clk := newController(t, Options{Bus: bus})

	c.ActivateOrb()
	d.next(t).fail("No input detected")
	s := waitProcessing(t, c, Idle)
	clk.Fire()

	if diff := cmp.Diff([]entry{{transcript.AuthorError, "No input detected"}}, entries(c.Snapshot())); diff != "" {
		t.Fatalf("transcript mismatch (-want +got):\n%s", diff)
	}
	if s.Placeholder != 0 {
		t.Fatal("placeholder pointer should be cleared")
	}

	// Exactly one removal and no "Thinking…" update.
	select {
	case e := <-ch:
		if e.Type != events.EventTranscriptRemoved {
			t.Fatalf("first change = %s, want removal", e.Type)
		}
		p, _ := events.GetMessagePayload(e)
		if p.Text != ListeningText || !p.Placeholder {
			t.Fatalf("removed %+v", p)
		}
	case <-time.After(time.Second):
		t.Fatal("no removal observed")
	}
	select {
	case e := <-ch:
		t.Fatalf("unexpected change %s", e.Type)
	case <-time.After(30 * time.Millisecond):
	}
}

func TestOrbInDocumentModeAdvises(t *testing.T) {
	c, d, clk := newController(t, Options{})
	loadDocument(t, c, d, "report.pdf")
	before := c.Snapshot()

	if got := c.ActivateOrb(); got != Advised {
		t.Fatalf("ActivateOrb = %s, want advised", got)
	}
	d.assertNoCall(t)
	if len(clk.durations()) != 0 {
		t.Fatal("no listen timer should be armed")
	}

	s := c.Snapshot()
	if s.Mode != before.Mode || s.Processing != Idle {
		t.Fatalf("state changed: %+v/%s", s.Mode, s.Processing)
	}
	last := s.Messages[len(s.Messages)-1]
	if last.Author != transcript.AuthorSystem || last.Text != VoiceAdvisory {
		t.Fatalf("last message = %+v", last)
	}
}

func TestUploadSuccessSwitchesMode(t *testing.T) {
	c, d, _ := newController(t, Options{})
	path := writeFile(t, "report.pdf")

	c.SelectFile(path)
	s := c.Snapshot()
	if s.Processing != Busy {
		t.Fatalf("processing = %s, want busy", s.Processing)
	}

	req := d.next(t)
	if req.op != backend.OpUploadDocument {
		t.Fatalf("op = %s", req.op)
	}
	if diff := cmp.Diff(backend.FileUpload{Name: "report.pdf", Path: path}, req.payload); diff != "" {
		t.Fatalf("payload mismatch (-want +got):\n%s", diff)
	}
	req.succeed(backend.Response{Status: "success"})

	s = waitProcessing(t, c, Idle)
	if s.Mode != DocumentMode("report.pdf") || s.ModeLabel != "Document: report.pdf" {
		t.Fatalf("mode = %+v", s.Mode)
	}
	want := []entry{
		{transcript.AuthorSystem, "Uploading report.pdf…"},
		{transcript.AuthorAssistant, uploadedText("report.pdf")},
	}
	if diff := cmp.Diff(want, entries(s)); diff != "" {
		t.Fatalf("transcript mismatch (-want +got):\n%s", diff)
	}
}

func TestUploadFailureKeepsMode(t *testing.T) {
	c, d, _ := newController(t, Options{})

	c.SelectFile(writeFile(t, "report.pdf"))
	d.next(t).fail("unsupported format")

	s := waitProcessing(t, c, Idle)
	if s.Mode != GeneralMode() {
		t.Fatalf("mode = %+v, want general", s.Mode)
	}
	last := s.Messages[len(s.Messages)-1]
	if last.Author != transcript.AuthorError || last.Text != "unsupported format" {
		t.Fatalf("last message = %+v", last)
	}
}

func TestUploadReplacesDocument(t *testing.T) {
	c, d, _ := newController(t, Options{})
	loadDocument(t, c, d, "a.pdf")
	loadDocument(t, c, d, "b.pdf")

	if got := c.Snapshot().Mode; got != DocumentMode("b.pdf") {
		t.Fatalf("mode = %+v", got)
	}
}

func TestSelectFileValidation(t *testing.T) {
	c, d, _ := newController(t, Options{})

	for _, path := range []string{"", "  ", filepath.Join(t.TempDir(), "missing.pdf"), t.TempDir()} {
		if got := c.SelectFile(path); got != Ignored {
			t.Fatalf("SelectFile(%q) = %s, want ignored", path, got)
		}
	}
	d.assertNoCall(t)
	if n := len(c.Snapshot().Messages); n != 0 {
		t.Fatalf("validation failures must not be surfaced, got %d messages", n)
	}
}

func TestDocumentModeRoutesToAskDocument(t *testing.T) {
	c, d, _ := newController(t, Options{})
	loadDocument(t, c, d, "report.pdf")

	c.SubmitText("what is the total?")
	req := d.next(t)
	if req.op != backend.OpAskDocument {
		t.Fatalf("op = %s, want ask-document", req.op)
	}
	req.succeed(backend.Response{FullText: "42"})
	waitProcessing(t, c, Idle)
}

func TestEndpointFixedAtSubmission(t *testing.T) {
	c, d, _ := newController(t, Options{})
	loadDocument(t, c, d, "report.pdf")

	c.SubmitText("question")
	req := d.next(t)

	// Clearing mid-flight neither cancels the request nor retargets it.
	if got := c.ClearDocument(); got != Accepted {
		t.Fatalf("ClearDocument = %s", got)
	}
	s := c.Snapshot()
	if s.Mode != GeneralMode() || s.Processing != Busy {
		t.Fatalf("state after clear = %+v/%s", s.Mode, s.Processing)
	}
	if req.op != backend.OpAskDocument {
		t.Fatalf("op = %s", req.op)
	}
	req.succeed(backend.Response{FullText: "answer"})
	s = waitProcessing(t, c, Idle)

	last := s.Messages[len(s.Messages)-1]
	if last.Author != transcript.AuthorAssistant || last.Text != "answer" {
		t.Fatalf("resolution after clear = %+v", last)
	}

	c.SubmitText("next")
	req = d.next(t)
	if req.op != backend.OpTextCommand {
		t.Fatalf("op after clear = %s, want text-command", req.op)
	}
	req.succeed(backend.Response{FullText: "ok"})
	waitProcessing(t, c, Idle)
}

func TestClearDocument(t *testing.T) {
	c, d, _ := newController(t, Options{})

	if got := c.ClearDocument(); got != Ignored {
		t.Fatalf("ClearDocument in general mode = %s", got)
	}
	if n := len(c.Snapshot().Messages); n != 0 {
		t.Fatalf("no-op clear should not append, got %d", n)
	}

	loadDocument(t, c, d, "report.pdf")
	if got := c.ClearDocument(); got != Accepted {
		t.Fatalf("ClearDocument = %s", got)
	}
	d.assertNoCall(t)

	s := c.Snapshot()
	if s.Mode != GeneralMode() {
		t.Fatalf("mode = %+v", s.Mode)
	}
	last := s.Messages[len(s.Messages)-1]
	if last.Author != transcript.AuthorSystem || last.Text != ClearedMessage {
		t.Fatalf("last message = %+v", last)
	}
}

func TestCloseCancelsInFlight(t *testing.T) {
	d := newFakeDispatcher()
	c, err := New(Options{Dispatcher: d, Clock: &manualClock{}})
	if err != nil {
		t.Fatal(err)
	}

	c.SubmitText("hello")
	d.next(t)

	done := make(chan struct{})
	go func() {
		c.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Close did not return")
	}

	if got := c.SubmitText("again"); got != Ignored {
		t.Fatalf("SubmitText after Close = %s", got)
	}
	s := c.Snapshot()
	if s.Processing != Idle {
		t.Fatalf("processing after Close = %s", s.Processing)
	}
	if diff := cmp.Diff([]entry{{transcript.AuthorUser, "hello"}}, entries(s)); diff != "" {
		t.Errorf("cancelled request reached the transcript (-want +got):\n%s", diff)
	}
	c.Close()
}

func TestCloseDropsVoiceResolution(t *testing.T) {
	d := newFakeDispatcher()
	c, err := New(Options{Dispatcher: d, Clock: &manualClock{}})
	if err != nil {
		t.Fatal(err)
	}

	c.ActivateOrb()
	d.next(t)
	c.Close()

	for _, e := range entries(c.Snapshot()) {
		if e.Author == transcript.AuthorError {
			t.Fatalf("error appended after Close: %+v", entries(c.Snapshot()))
		}
	}
}

func TestBusEventsFollowMutations(t *testing.T) {
	bus := events.NewBus(256)
	defer bus.Close()
	ch, unsub := bus.SubscribeChan(256)
	defer unsub()

	c, d, _ := newController(t, Options{Bus: bus, SessionID: "sess_bus"})
	c.SubmitText("hello")
	d.next(t).succeed(backend.Response{FullText: "hi"})
	waitProcessing(t, c, Idle)

	var got []events.EventType
	var texts []string
	deadline := time.After(time.Second)
	for len(texts) < 2 {
		select {
		case e := <-ch:
			if e.SessionID != "sess_bus" {
				t.Fatalf("event %s without session id", e.Type)
			}
			got = append(got, e.Type)
			if e.Type == events.EventTranscriptAppended {
				p, _ := events.GetMessagePayload(e)
				texts = append(texts, p.Text)
			}
		case <-deadline:
			t.Fatalf("timeout, got %v", got)
		}
	}

	if diff := cmp.Diff([]string{"hello", "hi"}, texts); diff != "" {
		t.Fatalf("append order mismatch (-want +got):\n%s", diff)
	}
	want := []events.EventType{
		events.EventSessionCreated,
		events.EventSessionState,
		events.EventTranscriptAppended,
		events.EventRequestIssued,
		events.EventInput,
		events.EventSessionState,
		events.EventRequestResolved,
		events.EventTranscriptAppended,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("event order mismatch (-want +got):\n%s", diff)
	}
}

// Property: processing is Idle right before every accepted user request and
// never Idle between issuance and resolution.
func TestIdleInvariantAcrossSequences(t *testing.T) {
	c, d, clk := newController(t, Options{})
	path := writeFile(t, "doc.txt")

	actions := []func() Outcome{
		func() Outcome { return c.ActivateOrb() },
		func() Outcome { return c.SubmitText("q") },
		func() Outcome { return c.SelectFile(path) },
		func() Outcome { return c.ClearDocument() },
	}

	for round := 0; round < 3; round++ {
		for i, act := range actions {
			before := c.Snapshot().Processing
			outcome := act()
			if outcome != Accepted || i == 3 {
				continue
			}
			if before != Idle {
				t.Fatalf("round %d action %d accepted while %s", round, i, before)
			}

			req := d.next(t)
			if i == 0 {
				clk.Fire()
			}
			if p := c.Snapshot().Processing; p == Idle {
				t.Fatalf("round %d action %d: idle before resolution", round, i)
			}
			// A competing action in flight is always dropped.
			for _, other := range actions[:3] {
				if got := other(); got == Accepted {
					t.Fatalf("round %d: concurrent action accepted", round)
				}
			}
			req.succeed(backend.Response{FullText: "r", Filename: "doc.txt"})
			waitProcessing(t, c, Idle)
		}
	}
}
