package main

import (
	"log"
	"net/http"

	"rrproxy/internal/config"
	"rrproxy/internal/containerstats"
	applog "rrproxy/internal/log"
	"rrproxy/internal/proxy"
	"rrproxy/internal/store"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	// Load environment variables from the .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: Could not load .env file (%v), using system environment variables", err)
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	// Build the endpoint pool from every configured target.
	pool := store.New()
	for _, u := range cfg.TargetURLs {
		if _, err := pool.Add(u.String()); err != nil {
			log.Fatalf("failed to register endpoint %s: %v", u.String(), err)
		}
	}
	policy := store.ByName(cfg.LoadBalancerStrategy)

	sensor := containerStatsSensor(cfg.DockerHost)

	forwarder := proxy.NewForwarder(pool, policy, nil)
	statsHandler := proxy.NewStatsHandler(pool, sensor)

	// Queue gates only the forwarding path; /printstats and /healthz always
	// answer immediately regardless of backend load.
	queued := proxy.WithQueue(forwarder, cfg.Queue, pool.ActiveCount)

	mux := http.NewServeMux()
	mux.Handle("/printstats", proxy.WithCORS(cfg.AllowedOrigins, statsHandler))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/", proxy.WithCORS(cfg.AllowedOrigins, queued))

	log.Printf("Listening on %s, targets=%v, strategy=%s, queue max=%d, concurrent=%d",
		cfg.ListenAddr, cfg.TargetURLs, cfg.LoadBalancerStrategy, cfg.Queue.MaxQueue, cfg.Queue.MaxConcurrent)

	handler := applog.WithRequestID(applog.WithRequestLogging("proxy", withServerHeaders(mux)))
	if err := http.ListenAndServe(cfg.ListenAddr, handler); err != nil {
		log.Fatal(err)
	}
}

// containerStatsSensor builds a Docker-backed sensor when a Docker host is
// configured, degrading to a no-op sensor otherwise so /printstats keeps
// working in environments with no container runtime.
func containerStatsSensor(dockerHost string) containerstats.Sensor {
	if dockerHost == "" {
		return containerstats.NoopSensor{}
	}
	sensor, err := containerstats.NewDockerSensor(dockerHost)
	if err != nil {
		log.Printf("Warning: could not initialize Docker sensor (%v), container stats will be zero-valued", err)
		return containerstats.NoopSensor{}
	}
	return sensor
}

// Adds extra server headers to the response
func withServerHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Server", "go-rp/0.1")
		next.ServeHTTP(w, r)
	})
}
