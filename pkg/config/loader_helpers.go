package config

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/odvcencio/uisync/pkg/errors"
)

// loadAndMerge loads a YAML file and merges it into the config.
func loadAndMerge(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var override Config
	if err := yaml.Unmarshal(data, &override); err != nil {
		return errors.Wrap(err, errors.ErrCodeConfigParse, "parsing YAML").WithContext("path", path)
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return errors.Wrap(err, errors.ErrCodeConfigParse, "parsing YAML").WithContext("path", path)
	}

	mergeConfigs(cfg, &override, raw)
	return nil
}

// mergeConfigs merges override into base. Strings and durations override
// when non-zero; booleans override only when the key is present, so a file
// can turn a default-on option off.
func mergeConfigs(base, override *Config, raw map[string]any) {
	if override == nil {
		return
	}

	if override.Events.Dir != "" {
		base.Events.Dir = override.Events.Dir
	}
	if override.Events.Prefix != "" {
		base.Events.Prefix = override.Events.Prefix
	}
	if override.Events.SocketMode != "" {
		base.Events.SocketMode = override.Events.SocketMode
	}
	if boolFieldSet(raw, "events", "watch") {
		base.Events.Watch = override.Events.Watch
	}
	if override.Events.DialTimeout != 0 {
		base.Events.DialTimeout = override.Events.DialTimeout
	}

	if override.Loop.MessageBuffer != 0 {
		base.Loop.MessageBuffer = override.Loop.MessageBuffer
	}
	if override.Loop.TickRate != 0 {
		base.Loop.TickRate = override.Loop.TickRate
	}

	if override.Logging.Level != "" {
		base.Logging.Level = override.Logging.Level
	}
	if override.Logging.Format != "" {
		base.Logging.Format = override.Logging.Format
	}

	if boolFieldSet(raw, "metrics", "enabled") {
		base.Metrics.Enabled = override.Metrics.Enabled
	}
	if override.Metrics.Listen != "" {
		base.Metrics.Listen = override.Metrics.Listen
	}

	if boolFieldSet(raw, "tracing", "enabled") {
		base.Tracing.Enabled = override.Tracing.Enabled
	}
	if override.Tracing.ServiceName != "" {
		base.Tracing.ServiceName = override.Tracing.ServiceName
	}

	if override.Relay.URL != "" {
		base.Relay.URL = override.Relay.URL
	}
	if override.Relay.SubjectPrefix != "" {
		base.Relay.SubjectPrefix = override.Relay.SubjectPrefix
	}
}

func boolFieldSet(raw map[string]any, path ...string) bool {
	if len(path) == 0 || raw == nil {
		return false
	}
	current := any(raw)
	for _, key := range path {
		m, ok := current.(map[string]any)
		if !ok {
			return false
		}
		val, ok := m[key]
		if !ok {
			return false
		}
		current = val
	}
	return true
}
