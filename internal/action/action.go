// Package action detects actionable phrases in generated replies and
// executes the corresponding system actions.
package action

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/vesperd/vesper/internal/observe"
)

// Action names.
const (
	AskMusicApp      = "ask_music_app"
	OpenSpotify      = "open_spotify"
	OpenAppleMusic   = "open_apple_music"
	OpenBrowserMusic = "open_browser_music"
	GetWeather       = "get_weather"
	GetTime          = "get_time"
	ExitSystem       = "exit_system"
)

// Farewell is spoken when the exit action fires, before shutdown.
const Farewell = "Shutting down Vesper. Goodbye!"

// Rule pairs a reply phrase with the action it triggers. Detection scans
// rules in order and the first phrase found wins, so more specific phrases
// must precede generic ones.
type Rule struct {
	Phrase string
	Action string
}

// DefaultRules returns the built-in detection table.
func DefaultRules() []Rule {
	return []Rule{
		{"play music", AskMusicApp},
		{"open spotify", OpenSpotify},
		{"open apple music", OpenAppleMusic},
		{"play in browser", OpenBrowserMusic},
		{"weather", GetWeather},
		{"time", GetTime},
		{"exit", ExitSystem},
		{"quit", ExitSystem},
		{"shutdown", ExitSystem},
		{"close", ExitSystem},
	}
}

// defaultBrowserMusicURL is opened by the open_browser_music action.
const defaultBrowserMusicURL = "https://music.youtube.com"

// Launcher starts an external program without waiting for it to exit.
// The default implementation uses exec.Command(...).Start().
type Launcher func(name string, args ...string) error

// Option is a functional option for Dispatcher.
type Option func(*Dispatcher)

// WithRules replaces the default detection table.
func WithRules(rules []Rule) Option {
	return func(d *Dispatcher) {
		d.rules = rules
	}
}

// WithLauncher substitutes the program launcher, mainly for tests.
func WithLauncher(launch Launcher) Option {
	return func(d *Dispatcher) {
		d.launch = launch
	}
}

// WithBrowserMusicURL overrides the URL opened by open_browser_music.
func WithBrowserMusicURL(url string) Option {
	return func(d *Dispatcher) {
		d.browserMusicURL = url
	}
}

// WithClock substitutes the time source used by get_time, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) {
		d.now = now
	}
}

// WithLogger sets the dispatcher's logger.
func WithLogger(log *slog.Logger) Option {
	return func(d *Dispatcher) {
		d.log = log
	}
}

// WithMetrics sets the metrics sink for action executions.
func WithMetrics(m *observe.Metrics) Option {
	return func(d *Dispatcher) {
		d.metrics = m
	}
}

// Dispatcher maps reply text to actions and executes them.
type Dispatcher struct {
	rules           []Rule
	launch          Launcher
	browserMusicURL string
	now             func() time.Time
	log             *slog.Logger
	metrics         *observe.Metrics
}

// NewDispatcher creates a Dispatcher with the default rule table.
func NewDispatcher(opts ...Option) *Dispatcher {
	d := &Dispatcher{
		rules:           DefaultRules(),
		launch:          defaultLaunch,
		browserMusicURL: defaultBrowserMusicURL,
		now:             time.Now,
		log:             slog.Default(),
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

func defaultLaunch(name string, args ...string) error {
	return exec.Command(name, args...).Start()
}

// Detect scans reply for action phrases, case-insensitively, and returns the
// first matching rule's action. ok is false when no phrase matches.
func (d *Dispatcher) Detect(reply string) (action string, ok bool) {
	lower := strings.ToLower(reply)
	for _, r := range d.rules {
		if strings.Contains(lower, r.Phrase) {
			return r.Action, true
		}
	}
	return "", false
}

// Execute runs the named action and returns the text to speak in place of
// the generated reply. An empty result means the reply stands as-is.
func (d *Dispatcher) Execute(ctx context.Context, action string) string {
	d.log.Info("executing action", "action", action)
	if d.metrics != nil {
		d.metrics.RecordAction(ctx, action)
	}

	switch action {
	case AskMusicApp:
		return "Would you like me to play music in your browser or open your music app?"
	case OpenSpotify:
		return d.openApp("spotify")
	case OpenAppleMusic:
		return d.openApp("apple music")
	case OpenBrowserMusic:
		return d.openBrowser()
	case GetWeather:
		return "I can check the weather for you. Please specify your location or enable weather API integration."
	case GetTime:
		now := d.now()
		return fmt.Sprintf("The current time is %s on %s.",
			now.Format("3:04 PM"), now.Format("January 2, 2006"))
	case ExitSystem:
		return Farewell
	}
	return fmt.Sprintf("Command '%s' executed successfully.", action)
}

// openApp launches a desktop music application.
func (d *Dispatcher) openApp(app string) string {
	var err error
	switch runtime.GOOS {
	case "darwin":
		name := "Spotify"
		if app == "apple music" {
			name = "Music"
		}
		err = d.launch("open", "-a", name)
	default:
		if app == "apple music" {
			return d.openBrowser()
		}
		err = d.launch("spotify")
	}
	if err != nil {
		d.log.Error("failed to open app", "app", app, "error", err)
		return fmt.Sprintf("Error opening %s: %v", app, err)
	}
	return fmt.Sprintf("Opening %s...", app)
}

// openBrowser opens the configured music URL in the default browser.
func (d *Dispatcher) openBrowser() string {
	var err error
	switch runtime.GOOS {
	case "darwin":
		err = d.launch("open", d.browserMusicURL)
	case "windows":
		err = d.launch("rundll32", "url.dll,FileProtocolHandler", d.browserMusicURL)
	default:
		err = d.launch("xdg-open", d.browserMusicURL)
	}
	if err != nil {
		d.log.Error("failed to open browser", "error", err)
		return fmt.Sprintf("Error opening browser: %v", err)
	}
	return "Opening music in your browser..."
}
