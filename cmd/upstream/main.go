/*
Demo backend used to stand behind the reverse-proxy pool in local
development: one process serves one or more listen addresses, giving the
pool something real to round-robin/least-conn across and to health-scan.

Typical usage:
- Start one or more instances and point PROXY_TARGETS at their addresses.
- Configuration is read only from YAML (configs/config-upstream.yaml or
  configs/config-upstream.yml).

Example YAML, single value (string, may be comma-separated):

	upstream:
	  listen: ":8000"

Or multiple values (list), one demo instance per address:

	upstream:
	  listen: [":9000", ":9001", ":9002"]

UPSTREAM_FAILURE_RATE (env, optional) sets the probability, in [0, 1), that
an instance answers a request with 500 instead of its normal response —
useful for manually driving the pool's health scanner.

Note: This is a simple demo app, not a production-ready server.
*/
package main

import (
	"log"
	"os"
	"strconv"
	"strings"
	"sync"

	"rrproxy/internal/upstream"

	"gopkg.in/yaml.v3"
)

// StringList allows YAML "listen" to be either a comma-separated string or a YAML sequence.
// It trims whitespace and ignores empty items so sample/demo configs are forgiving.
type StringList []string

func (s *StringList) UnmarshalYAML(n *yaml.Node) error {
	var raw []string
	if n.Kind == yaml.ScalarNode {
		raw = strings.Split(n.Value, ",")
	} else if err := n.Decode(&raw); err != nil {
		return err
	}
	*s = (*s)[:0]
	for _, v := range raw {
		if v = strings.TrimSpace(v); v != "" {
			*s = append(*s, v)
		}
	}
	return nil
}

func main() {
	// Resolve listen addresses strictly from YAML.
	listenAddrs := loadListenAddressesFromYAML()
	failureRate := loadFailureRateFromEnv()

	// Start one server per address (useful if you demo multiple ports).
	if len(listenAddrs) > 1 {
		var serversWG sync.WaitGroup
		for _, addr := range listenAddrs {
			addr = strings.TrimSpace(addr)
			if addr == "" {
				continue
			}
			serversWG.Add(1)
			go func(addr string) {
				defer serversWG.Done()
				log.Printf("starting upstream server on %s (failure_rate=%.2f)", addr, failureRate)
				if err := upstream.Start(addr, failureRate); err != nil {
					log.Printf("upstream server %s exited: %v", addr, err)
				}
			}(addr)
		}
		serversWG.Wait()
		return
	}

	// Single-address case: start the example server on the first address
	addr := strings.TrimSpace(listenAddrs[0])
	log.Printf("starting upstream server on %s (failure_rate=%.2f)", addr, failureRate)
	if err := upstream.Start(addr, failureRate); err != nil {
		log.Fatal(err)
	}
}

// loadFailureRateFromEnv reads UPSTREAM_FAILURE_RATE, defaulting to 0 (no
// simulated failures) on missing or unparseable values.
func loadFailureRateFromEnv() float64 {
	raw := strings.TrimSpace(os.Getenv("UPSTREAM_FAILURE_RATE"))
	if raw == "" {
		return 0
	}
	rate, err := strconv.ParseFloat(raw, 64)
	if err != nil || rate < 0 {
		return 0
	}
	return rate
}


// upstreamYAML mirrors only the part of the config we need for this example server.
type upstreamYAML struct {
	Upstream *struct {
		Listen StringList `yaml:"listen"`
	} `yaml:"upstream"`
}

// loadListenAddressesFromYAML returns the upstream listen addresses using only YAML configuration.
// Falls back to [":8000"] if no config is found or the YAML has no listen values.
func loadListenAddressesFromYAML() []string {
	// Default address when no YAML is present or listen list is empty.
	defaultAddresses := []string{":8000"}

	// Candidates in configs/ folder beside the binary during local demos.
	candidates := []string{
		"configs/config-upstream.yaml", "configs/config-upstream.yml",
	}

	// Pick the first candidate that exists.
	var configPath string
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			configPath = c
			break
		}
	}

	// If we found a config file, parse it and use upstream.listen if present.
	if configPath != "" {
		if b, err := os.ReadFile(configPath); err == nil {
			var cfg upstreamYAML
			if err := yaml.Unmarshal(b, &cfg); err == nil {
				if cfg.Upstream != nil && len(cfg.Upstream.Listen) > 0 {
					return cfg.Upstream.Listen
				}
			}
		}
	}

	// No YAML found or no valid listen entries; return default.
	return defaultAddresses
}



