package config

import "reflect"

// ConfigDiff describes what changed between two configs. The log level is
// the only setting applied without restart; every other changed section is
// listed in RestartRequired so the watcher can tell the operator.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// RestartRequired names the changed sections that only take effect
	// after a restart (e.g. "listen", "providers").
	RestartRequired []string
}

// Changed reports whether the two configs differ at all.
func (d ConfigDiff) Changed() bool {
	return d.LogLevelChanged || len(d.RestartRequired) > 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	if old.Server.ListenAddr != new.Server.ListenAddr {
		d.RestartRequired = append(d.RestartRequired, "server.listen_addr")
	}

	sections := []struct {
		name     string
		old, new any
	}{
		{"wake", old.Wake, new.Wake},
		{"listen", old.Listen, new.Listen},
		{"filter", old.Filter, new.Filter},
		{"providers", old.Providers, new.Providers},
		{"history", old.History, new.History},
	}
	for _, s := range sections {
		if !reflect.DeepEqual(s.old, s.new) {
			d.RestartRequired = append(d.RestartRequired, s.name)
		}
	}
	return d
}
