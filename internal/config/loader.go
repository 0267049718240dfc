package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// validLLMNames lists known generation backends. Used by [Validate] to warn
// about likely typos.
var validLLMNames = []string{
	"openai", "anthropic", "gemini", "ollama", "deepseek",
	"mistral", "groq", "llamacpp", "llamafile",
}

// Load reads the YAML configuration file at path, overlays it on [Default],
// and returns the validated result.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r over the defaults and
// validates the result. Useful in tests where configs are constructed from
// string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values. It returns a
// joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Wake word
	if cfg.Wake.Word == "" {
		errs = append(errs, errors.New("wake.word is required"))
	}
	if cfg.Wake.PhoneticThreshold <= 0 {
		errs = append(errs, fmt.Errorf("wake.phonetic_threshold %.2f must be positive (use a value above 1 to disable phonetic matching)", cfg.Wake.PhoneticThreshold))
	}
	if cfg.Wake.FuzzyThreshold <= 0 || cfg.Wake.FuzzyThreshold > 1 {
		errs = append(errs, fmt.Errorf("wake.fuzzy_threshold %.2f is out of range (0, 1]", cfg.Wake.FuzzyThreshold))
	}

	// Listen thresholds. Peak is a per-sample maximum and RMS an average,
	// so a usable configuration has rms_threshold below peak_threshold.
	l := cfg.Listen
	if l.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("listen.sample_rate %d must be positive", l.SampleRate))
	}
	if l.PeakThreshold <= 0 || l.RMSThreshold <= 0 {
		errs = append(errs, errors.New("listen.peak_threshold and listen.rms_threshold must be positive"))
	} else if l.RMSThreshold > l.PeakThreshold {
		errs = append(errs, fmt.Errorf("listen.rms_threshold %.3f exceeds listen.peak_threshold %.3f; the RMS gate would never fire alone", l.RMSThreshold, l.PeakThreshold))
	}
	if l.EnergyFloor >= l.RMSThreshold && l.RMSThreshold > 0 {
		errs = append(errs, fmt.Errorf("listen.energy_floor %.4f must be below listen.rms_threshold %.3f", l.EnergyFloor, l.RMSThreshold))
	}
	if l.MaxWindowTail >= l.MaxWindow && l.MaxWindow > 0 {
		errs = append(errs, fmt.Errorf("listen.max_window_tail %v must be below listen.max_window %v", l.MaxWindowTail.Std(), l.MaxWindow.Std()))
	}
	if l.MinUtterance > l.MaxWindow && l.MaxWindow > 0 {
		errs = append(errs, fmt.Errorf("listen.min_utterance %v exceeds listen.max_window %v; flushes would never arm", l.MinUtterance.Std(), l.MaxWindow.Std()))
	}

	// LLM backends
	validateLLM(&errs, "providers.llm", cfg.Providers.LLM)
	for i, fb := range cfg.Providers.LLM.Fallbacks {
		if len(fb.Fallbacks) > 0 {
			errs = append(errs, fmt.Errorf("providers.llm.fallbacks[%d]: fallbacks cannot nest", i))
		}
		validateLLM(&errs, fmt.Sprintf("providers.llm.fallbacks[%d]", i), fb)
	}

	// TTS backend
	switch cfg.Providers.TTS.Name {
	case "", "command":
	case "coqui":
		if cfg.Providers.TTS.ServerURL == "" {
			errs = append(errs, errors.New("providers.tts.server_url is required for the coqui backend"))
		}
		if m := cfg.Providers.TTS.APIMode; m != "" && m != "standard" && m != "xtts" {
			errs = append(errs, fmt.Errorf("providers.tts.api_mode %q is invalid; valid values: standard, xtts", m))
		}
	default:
		errs = append(errs, fmt.Errorf("providers.tts.name %q is invalid; valid values: coqui, command", cfg.Providers.TTS.Name))
	}

	if cfg.History.PostgresDSN == "" {
		slog.Debug("history.postgres_dsn is empty; exchanges will not be persisted")
	}

	return errors.Join(errs...)
}

func validateLLM(errs *[]error, prefix string, c LLMConfig) {
	if c.Name == "" {
		*errs = append(*errs, fmt.Errorf("%s.name is required", prefix))
		return
	}
	if !slices.Contains(validLLMNames, c.Name) {
		slog.Warn("unknown llm backend name — may be a typo",
			"name", c.Name, "known", validLLMNames)
	}
	if c.Model == "" {
		*errs = append(*errs, fmt.Errorf("%s.model is required", prefix))
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		*errs = append(*errs, fmt.Errorf("%s.temperature %.2f is out of range [0, 2]", prefix, c.Temperature))
	}
	if c.MaxTokens < 0 {
		*errs = append(*errs, fmt.Errorf("%s.max_tokens %d must not be negative", prefix, c.MaxTokens))
	}
}
