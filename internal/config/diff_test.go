package config

import (
	"slices"
	"testing"
)

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()

	if d := Diff(Default(), Default()); d.Changed() {
		t.Errorf("Diff of identical configs = %+v, want no changes", d)
	}
}

func TestDiff_LogLevel(t *testing.T) {
	t.Parallel()

	old, new := Default(), Default()
	new.Server.LogLevel = LogDebug

	d := Diff(old, new)
	if !d.LogLevelChanged || d.NewLogLevel != LogDebug {
		t.Errorf("Diff = %+v, want log level change to debug", d)
	}
	if len(d.RestartRequired) != 0 {
		t.Errorf("RestartRequired = %v for a log level change", d.RestartRequired)
	}
}

func TestDiff_RestartSections(t *testing.T) {
	t.Parallel()

	old, new := Default(), Default()
	new.Wake.Word = "aurora"
	new.Listen.PeakThreshold = 0.2
	new.Providers.LLM.Model = "gpt-4o"

	d := Diff(old, new)
	if !d.Changed() {
		t.Fatal("Changed = false")
	}
	for _, want := range []string{"wake", "listen", "providers"} {
		if !slices.Contains(d.RestartRequired, want) {
			t.Errorf("RestartRequired = %v, missing %q", d.RestartRequired, want)
		}
	}
	if slices.Contains(d.RestartRequired, "filter") {
		t.Errorf("RestartRequired = %v, filter did not change", d.RestartRequired)
	}
}
