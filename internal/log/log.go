// Package applog is a small Loki-push structured logger. It prints locally
// via the standard log package and, when a Loki URL is configured, also
// ships the same line as a labeled stream entry. Both are best-effort:
// logging never fails a request. The Loki push is synchronous and waits at
// most the push client's 200ms timeout.
package applog

import (
	"bytes"
	"encoding/json"
	"flag"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

var (
	lokiURL    string
	lokiOnce   sync.Once
	lokiClient = &http.Client{Timeout: 200 * time.Millisecond}

	// Level toggles, overridable via configs/config.yaml's "logging" section.
	infoEnabled  = true
	debugEnabled = false
	errorEnabled = true
)

// Emit prints line locally (subject to level + test-binary suppression) and
// pushes it to Loki with level/app/labels attached.
func Emit(level, app string, labels map[string]string, line string) {
	lvl := strings.ToLower(level)
	if logEnabled() && levelEnabled(lvl) {
		log.Print(line)
	}
	pushLokiWithLevel(lvl, app, labels, line)
}

// logEnabled suppresses local printing inside test binaries, where the
// testing package itself registers these flags.
func logEnabled() bool {
	if flag.Lookup("test.v") != nil || flag.Lookup("test.run") != nil || flag.Lookup("test.bench") != nil {
		return false
	}
	return true
}

func levelEnabled(level string) bool {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return debugEnabled
	case "error":
		return errorEnabled
	default:
		return infoEnabled
	}
}

func pushLokiWithLevel(level, app string, labels map[string]string, line string) {
	lokiOnce.Do(initLoki)
	if lokiURL == "" || !levelEnabled(level) {
		return
	}

	streamLabels := map[string]string{
		"app":   app,
		"level": strings.ToLower(strings.TrimSpace(level)),
	}
	for k, v := range labels {
		if strings.TrimSpace(k) == "" {
			continue
		}
		streamLabels[k] = v
	}

	ts := strconv.FormatInt(time.Now().UnixNano(), 10)
	payload := struct {
		Streams []struct {
			Stream map[string]string `json:"stream"`
			Values [][2]string       `json:"values"`
		} `json:"streams"`
	}{
		Streams: []struct {
			Stream map[string]string `json:"stream"`
			Values [][2]string       `json:"values"`
		}{
			{Stream: streamLabels, Values: [][2]string{{ts, line}}},
		},
	}

	b, _ := json.Marshal(payload)
	req, err := http.NewRequest("POST", lokiURL, bytes.NewReader(b))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/json")
	_, _ = lokiClient.Do(req) // result ignored
}

// initLoki lazily reads configs/config.yaml|yml for the Loki push URL and
// the logging level toggles. Absent a config file, Loki push stays off and
// the default level toggles (INFO/ERROR on, DEBUG off) apply.
func initLoki() {
	lokiURL = ""

	configPath := ""
	for _, candidate := range []string{"configs/config.yaml", "configs/config.yml"} {
		if _, err := os.Stat(candidate); err == nil {
			configPath = candidate
			break
		}
	}
	if configPath == "" {
		return
	}

	var cfg struct {
		Metrics *struct {
			LokiURL string `yaml:"loki_url"`
		} `yaml:"metrics"`
		Logging *struct {
			InfoEnabled  *bool `yaml:"info_enabled"`
			DebugEnabled *bool `yaml:"debug_enabled"`
			ErrorEnabled *bool `yaml:"error_enabled"`
		} `yaml:"logging"`
	}
	b, err := os.ReadFile(configPath)
	if err != nil {
		return
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return
	}
	if cfg.Metrics != nil && strings.TrimSpace(cfg.Metrics.LokiURL) != "" {
		lokiURL = strings.TrimSpace(cfg.Metrics.LokiURL)
	}
	if cfg.Logging != nil {
		if cfg.Logging.InfoEnabled != nil {
			infoEnabled = *cfg.Logging.InfoEnabled
		}
		if cfg.Logging.DebugEnabled != nil {
			debugEnabled = *cfg.Logging.DebugEnabled
		}
		if cfg.Logging.ErrorEnabled != nil {
			errorEnabled = *cfg.Logging.ErrorEnabled
		}
	}
	if lokiURL != "" && !strings.Contains(lokiURL, "/loki/api/v1/push") {
		lokiURL = strings.TrimRight(lokiURL, "/") + "/loki/api/v1/push"
	}
}

// MustHostname returns the current hostname or "unknown" on error.
func MustHostname() string {
	h, err := os.Hostname()
	if err != nil || h == "" {
		return "unknown"
	}
	return h
}

// isMetricsScrape detects Prometheus/OpenMetrics scrapes so the request
// middleware can skip logging noise for them.
func isMetricsScrape(r *http.Request) bool {
	if r.URL != nil && r.URL.Path == "/metrics" {
		return true
	}
	if strings.Contains(r.Header.Get("User-Agent"), "Prometheus") {
		return true
	}
	if strings.Contains(r.Header.Get("Accept"), "openmetrics") {
		return true
	}
	return false
}
