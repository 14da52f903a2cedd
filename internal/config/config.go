package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"rrproxy/internal/proxy"
)

type Config struct {
	ListenAddr           string     // Example: ":8080"
	TargetURLs           []*url.URL // All targets (>=1)
	Queue                proxy.QueueConfig
	AllowedOrigins       []string // CORS allow-list for the stats/forwarding endpoints
	LoadBalancerStrategy string   // "rr" (default) or "least_conn"
	DockerHost           string   // Docker Engine API address for the container-stats sensor; "" disables it
}

type QueueConfig struct {
	MaxQueue        int
	MaxConcurrent   int
	EnqueueTimeout  time.Duration
	QueueWaitHeader bool
}

const (
	defaultListen              = ":8080"
	defaultQueueMax            = 1000
	defaultQueueMaxConcurrent  = 100
	defaultQueueEnqueueTimeout = 2 * time.Second
	defaultQueueWaitHeader     = true
)

// Load reads environment variables and returns a validated Config.
func Load() (*Config, error) {
	listen := getEnv("PROXY_LISTEN", defaultListen)

	rawTargets := strings.TrimSpace(os.Getenv("PROXY_TARGETS"))
	var targets []*url.URL

	if rawTargets != "" {
		parts := strings.Split(rawTargets, ",")
		for _, p := range parts {
			pt := strings.TrimSpace(p)
			if pt == "" {
				continue
			}
			u, err := url.Parse(pt)
			if err != nil || u.Scheme == "" || u.Host == "" {
				return nil, fmt.Errorf("invalid entry in PROXY_TARGETS: %q", pt)
			}
			targets = append(targets, u)
		}
		if len(targets) == 0 {
			return nil, errors.New("PROXY_TARGETS provided but no valid URLs parsed")
		}
	} else {
		// Fallback to single PROXY_TARGET (existing behavior)
		rawTarget := strings.TrimSpace(os.Getenv("PROXY_TARGET"))
		if rawTarget == "" {
			return nil, errors.New("PROXY_TARGET or PROXY_TARGETS must be defined (e.g., http://localhost:9000)")
		}
		u, err := url.Parse(rawTarget)
		if err != nil {
			return nil, fmt.Errorf("invalid PROXY_TARGET: %w", err)
		}
		if u.Scheme == "" || u.Host == "" {
			return nil, errors.New("PROXY_TARGET must include scheme and host (e.g., http://localhost:9000)")
		}
		targets = []*url.URL{u}
	}

	// Queue configuration
	q := proxy.QueueConfig{
		MaxQueue:        getEnvInt("RP_MAX_QUEUE", defaultQueueMax),
		MaxConcurrent:   getEnvInt("RP_MAX_CONCURRENT", defaultQueueMaxConcurrent),
		EnqueueTimeout:  getEnvDuration("RP_ENQUEUE_TIMEOUT", defaultQueueEnqueueTimeout),
		QueueWaitHeader: getEnvBool("RP_QUEUE_WAIT_HEADER", defaultQueueWaitHeader),
	}

	lbStrategy := strings.TrimSpace(os.Getenv("PROXY_LB_STRATEGY"))
	if lbStrategy == "" {
		lbStrategy = "rr"
	}

	origins := parseList(os.Getenv("PROXY_ALLOWED_ORIGINS"))
	dockerHost := strings.TrimSpace(os.Getenv("PROXY_DOCKER_HOST"))

	return &Config{
		ListenAddr:           listen,
		TargetURLs:           targets,
		Queue:                q,
		AllowedOrigins:       origins,
		LoadBalancerStrategy: lbStrategy,
		DockerHost:           dockerHost,
	}, nil
}

// Retrieves an environment variable or returns the default value.
func getEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

// Retrieves a boolean environment variable or returns the default value.
func getEnvBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return parsed
}

// Retrieves an integer environment variable or returns the default value.
func getEnvInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return parsed
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

// parseList splits a comma-separated environment value, trimming whitespace
// and dropping empty entries. Used for PROXY_ALLOWED_ORIGINS.
func parseList(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
