// Package featureflags evaluates per-viewer feature switches from config.
package featureflags

import (
	"hash/fnv"
	"strconv"
	"strings"
)

// Known flags.
const (
	// PersonalizedDiscovery gates behavior-tag ranking; viewers without it get trending.
	PersonalizedDiscovery = "personalized_discovery"
	// FeedSeedFallback lets the for-you feed show seed content after the load timeout.
	FeedSeedFallback = "feed_seed_fallback"
)

// Manager evaluates feature flags defined in a simple key=value list.
// Example: "personalized_discovery=on,feed_seed_fallback=25%"
type Manager struct {
	flags map[string]string
}

// NewManager creates a feature-flag manager from a comma-separated config string.
func NewManager(raw string) *Manager {
	out := make(map[string]string)

	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		parts := strings.SplitN(pair, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := normalize(parts[0])
		value := normalize(parts[1])
		if key == "" || value == "" {
			continue
		}
		out[key] = value
	}

	return &Manager{flags: out}
}

// Enabled returns whether a flag is enabled for a given viewer.
// Supported values:
// - on/true/1
// - off/false/0
// - N% (deterministic viewer rollout, e.g. 25%)
//
// Anonymous viewers (empty id) only see flags that are fully on.
func (m *Manager) Enabled(name, viewerID string) bool {
	if m == nil {
		return false
	}

	value, ok := m.flags[normalize(name)]
	if !ok {
		return false
	}

	switch value {
	case "on", "true", "1":
		return true
	case "off", "false", "0":
		return false
	}

	if strings.HasSuffix(value, "%") {
		pct, err := strconv.Atoi(strings.TrimSuffix(value, "%"))
		if err != nil || pct <= 0 {
			return false
		}
		if pct >= 100 {
			return true
		}
		if viewerID == "" {
			return false
		}
		return rolloutBucket(name, viewerID) < pct
	}

	return false
}

// Raw returns a copy of configured flags.
func (m *Manager) Raw() map[string]string {
	out := make(map[string]string, len(m.flags))
	for k, v := range m.flags {
		out[k] = v
	}
	return out
}

// Snapshot returns evaluated flag status for one viewer.
func (m *Manager) Snapshot(viewerID string) map[string]bool {
	out := make(map[string]bool, len(m.flags))
	for name := range m.flags {
		out[name] = m.Enabled(name, viewerID)
	}
	return out
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func rolloutBucket(name, viewerID string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(normalize(name) + ":" + viewerID))
	return int(h.Sum32() % 100)
}
