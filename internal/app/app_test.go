package app

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/vesperd/vesper/internal/config"
	"github.com/vesperd/vesper/internal/transcript"
	"github.com/vesperd/vesper/pkg/audio"
	audiomock "github.com/vesperd/vesper/pkg/audio/mock"
	llmmock "github.com/vesperd/vesper/pkg/provider/llm/mock"
	"github.com/vesperd/vesper/pkg/provider/stt"
	sttmock "github.com/vesperd/vesper/pkg/provider/stt/mock"
	ttsmock "github.com/vesperd/vesper/pkg/provider/tts/mock"
)

// testConfig shrinks the segmentation timings so pipeline tests complete in
// milliseconds instead of seconds.
func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Listen.FrameDuration = config.Duration(10 * time.Millisecond)
	cfg.Listen.MinUtterance = config.Duration(20 * time.Millisecond)
	cfg.Listen.FlushInterval = config.Duration(time.Millisecond)
	cfg.Listen.FlushSlice = config.Duration(40 * time.Millisecond)
	cfg.Listen.MinSilence = config.Duration(50 * time.Millisecond)
	cfg.Listen.EnergyFloor = 0.0001
	return cfg
}

type testApp struct {
	app    *App
	device *audiomock.Device
	stt    *sttmock.Transcriber
	llm    *llmmock.Responder
	tts    *ttsmock.Synthesizer
}

func newTestApp(t *testing.T, cfg *config.Config) *testApp {
	t.Helper()
	ta := &testApp{
		device: &audiomock.Device{},
		stt:    &sttmock.Transcriber{},
		llm:    &llmmock.Responder{},
		tts:    &ttsmock.Synthesizer{},
	}
	a, err := New(cfg, Providers{
		Device:      ta.device,
		Transcriber: ta.stt,
		Responder:   ta.llm,
		Synthesizer: ta.tts,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ta.app = a
	return ta
}

// speechFrame returns d of loud constant-amplitude samples, well above both
// segmentation thresholds.
func speechFrame(d time.Duration) audio.Frame {
	samples := make([]float32, int(16000*d.Seconds()))
	for i := range samples {
		samples[i] = 0.5
	}
	return audio.Frame{Samples: samples, SampleRate: 16000, CapturedAt: time.Now()}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestNew_RequiresProviders(t *testing.T) {
	t.Parallel()

	full := Providers{
		Device:      &audiomock.Device{},
		Transcriber: &sttmock.Transcriber{},
		Responder:   &llmmock.Responder{},
		Synthesizer: &ttsmock.Synthesizer{},
	}
	tests := []struct {
		name  string
		strip func(*Providers)
	}{
		{"device", func(p *Providers) { p.Device = nil }},
		{"transcriber", func(p *Providers) { p.Transcriber = nil }},
		{"responder", func(p *Providers) { p.Responder = nil }},
		{"synthesizer", func(p *Providers) { p.Synthesizer = nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p := full
			tt.strip(&p)
			if _, err := New(config.Default(), p); err == nil {
				t.Errorf("New accepted a missing %s", tt.name)
			}
		})
	}
}

func TestApp_PipelineSpeaksReply(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	ta := newTestApp(t, cfg)
	ta.stt.Results = []stt.Result{{Text: "vesper what time is it"}}
	ta.llm.Replies = []string{"It is noon."}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runDone := make(chan error, 1)
	go func() { runDone <- ta.app.Run(ctx) }()

	waitFor(t, "capture to start", ta.device.Started)
	if !ta.app.Running() {
		t.Error("Running() = false while the pipeline is up")
	}

	// Keep feeding speech until a flush reaches the coordinator.
	go func() {
		for ta.device.Started() {
			ta.device.Emit(speechFrame(10 * time.Millisecond))
			time.Sleep(2 * time.Millisecond)
		}
	}()

	waitFor(t, "reply to be spoken", func() bool { return len(ta.tts.Spoken()) > 0 })

	spoken := ta.tts.Spoken()
	if spoken[0] != "It is noon." {
		t.Errorf("spoke %q, want the generated reply", spoken[0])
	}
	calls := ta.llm.Calls()
	if len(calls) == 0 || calls[0].Command != "what time is it" {
		t.Errorf("responder calls = %+v, want the stripped command", calls)
	}

	cancel()
	if err := <-runDone; !errors.Is(err, context.Canceled) {
		t.Errorf("Run returned %v, want context.Canceled", err)
	}
	if ta.device.StopCallCount == 0 {
		t.Error("capture not stopped after Run returned")
	}
}

func TestApp_HallucinationNeverReachesResponder(t *testing.T) {
	t.Parallel()

	ta := newTestApp(t, testConfig())
	ctx := context.Background()

	ta.app.handleTranscript(ctx, transcript.Transcript{Text: "Thank you."})
	ta.app.handleTranscript(ctx, transcript.Transcript{Text: "thanks for watching"})
	if got := ta.llm.Calls(); len(got) != 0 {
		t.Errorf("responder called %d times for hallucinated transcripts", len(got))
	}
	if got := ta.tts.Spoken(); len(got) != 0 {
		t.Errorf("synthesizer spoke %v for hallucinated transcripts", got)
	}
}

func TestApp_UnaddressedTranscriptIgnored(t *testing.T) {
	t.Parallel()

	ta := newTestApp(t, testConfig())
	ta.app.handleTranscript(context.Background(), transcript.Transcript{
		Text: "we should get groceries tomorrow morning",
	})
	if got := ta.llm.Calls(); len(got) != 0 {
		t.Errorf("responder called %d times without a wake word", len(got))
	}
}

func TestApp_WakeWordAloneAcknowledged(t *testing.T) {
	t.Parallel()

	ta := newTestApp(t, testConfig())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runDone := make(chan error, 1)
	go func() { runDone <- ta.app.Run(ctx) }()
	waitFor(t, "capture to start", ta.device.Started)

	ta.app.handleTranscript(ctx, transcript.Transcript{Text: "Vesper?"})
	waitFor(t, "acknowledgment", func() bool { return len(ta.tts.Spoken()) > 0 })

	spoken := ta.tts.Spoken()
	if spoken[0] != "Yes?" {
		t.Errorf("spoke %q, want the acknowledgment", spoken[0])
	}
	if got := ta.llm.Calls(); len(got) != 0 {
		t.Errorf("responder called %d times for a bare wake word", len(got))
	}
	cancel()
	<-runDone
}

func TestApp_StateReportsListening(t *testing.T) {
	t.Parallel()

	ta := newTestApp(t, testConfig())
	if got := ta.app.State(); got != "idle" {
		t.Errorf("State() = %q before Run, want idle", got)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runDone := make(chan error, 1)
	go func() { runDone <- ta.app.Run(ctx) }()

	waitFor(t, "listening state", func() bool { return ta.app.State() == "listening" })

	cancel()
	<-runDone
	waitFor(t, "idle state", func() bool { return ta.app.State() == "idle" })
}

func TestApp_ScheduleShutdownStopsRun(t *testing.T) {
	t.Parallel()

	ta := newTestApp(t, testConfig())
	runDone := make(chan error, 1)
	go func() { runDone <- ta.app.Run(context.Background()) }()
	waitFor(t, "capture to start", ta.device.Started)

	ta.app.ScheduleShutdown(10 * time.Millisecond)

	select {
	case err := <-runDone:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after the scheduled shutdown")
	}
}

func TestApp_LaterScheduleSupersedesEarlier(t *testing.T) {
	t.Parallel()

	ta := newTestApp(t, testConfig())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runDone := make(chan error, 1)
	go func() { runDone <- ta.app.Run(ctx) }()
	waitFor(t, "capture to start", ta.device.Started)

	ta.app.ScheduleShutdown(10 * time.Millisecond)
	ta.app.ScheduleShutdown(time.Hour)

	select {
	case <-runDone:
		t.Fatal("Run returned on the superseded timer")
	case <-time.After(300 * time.Millisecond):
	}
}

func TestApp_ShutdownClosesOnce(t *testing.T) {
	t.Parallel()

	ta := newTestApp(t, testConfig())
	if err := ta.app.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if err := ta.app.Shutdown(context.Background()); err != nil {
		t.Fatalf("second Shutdown: %v", err)
	}

	if ta.device.CloseCallCount != 1 {
		t.Errorf("device closed %d times, want 1", ta.device.CloseCallCount)
	}
	if ta.stt.CloseCallCount != 1 {
		t.Errorf("transcriber closed %d times, want 1", ta.stt.CloseCallCount)
	}
	if !ta.tts.Closed() {
		t.Error("synthesizer not closed")
	}
}

func TestApp_ShutdownInterruptsStuckSpeech(t *testing.T) {
	t.Parallel()

	ta := newTestApp(t, testConfig())
	ta.tts.SetBusy(true)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	// The busy flag is cleared by the Stop that the drain issues once the
	// context deadline passes, so Shutdown returns instead of hanging.
	err := ta.app.Shutdown(ctx)
	if err == nil || !strings.Contains(err.Error(), "interrupted") {
		t.Errorf("Shutdown = %v, want interruption error", err)
	}
	if ta.tts.StopCallCount() == 0 {
		t.Error("stuck utterance never interrupted")
	}
}

func TestApp_RunFailsWhenCaptureFails(t *testing.T) {
	t.Parallel()

	ta := newTestApp(t, testConfig())
	ta.device.StartErr = errors.New("no input device")

	if err := ta.app.Run(context.Background()); err == nil || !strings.Contains(err.Error(), "start capture") {
		t.Errorf("Run = %v, want capture start error", err)
	}
	if ta.app.Running() {
		t.Error("Running() = true after a failed start")
	}
}
