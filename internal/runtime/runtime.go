// Package runtime assembles the engine from configuration: the audit
// database, telemetry chain, breaker registry, health monitor, and the
// default pipeline graph, wired per run.
package runtime

import (
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/forgeline/forgeline/internal/config"
	"github.com/forgeline/forgeline/internal/db"
	"github.com/forgeline/forgeline/internal/health"
	"github.com/forgeline/forgeline/internal/pipeline"
	"github.com/forgeline/forgeline/internal/telemetry"
)

// Runtime holds the process-wide pieces shared by every command: the
// run store, the audit database, the base telemetry chain, and the
// health monitor. Per-run wiring happens in NewRun and Resume.
type Runtime struct {
	cfg      *config.Config
	store    *pipeline.Store
	database *db.DB
	emitter  telemetry.Emitter
	metrics  *prometheus.Registry
	health   *health.Monitor
}

// New builds the shared runtime from configuration.
func New(cfg *config.Config) (*Runtime, error) {
	store := pipeline.NewStore(cfg.Pipeline.RunsDir)

	dbPath := cfg.Telemetry.DBPath
	if dbPath == "" {
		var err error
		dbPath, err = db.DefaultDBPath()
		if err != nil {
			return nil, err
		}
	}
	database, err := db.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open audit db: %w", err)
	}
	if err := database.Migrate(); err != nil {
		database.Close()
		return nil, fmt.Errorf("migrate audit db: %w", err)
	}

	var emitters []telemetry.Emitter
	if cfg.Telemetry.Log {
		emitters = append(emitters, telemetry.NewLogEmitter(os.Stderr))
	}
	var metrics *prometheus.Registry
	if cfg.Telemetry.Metrics {
		metrics = prometheus.NewRegistry()
		emitters = append(emitters, telemetry.NewMetricsEmitter(metrics))
	}

	rt := &Runtime{
		cfg:      cfg,
		store:    store,
		database: database,
		emitter:  telemetry.NewMultiEmitter(emitters...),
		metrics:  metrics,
		health:   health.NewMonitor(),
	}
	rt.registerHealthChecks()
	return rt, nil
}

// Close releases the audit database.
func (r *Runtime) Close() error {
	return r.database.Close()
}

// Store exposes the run store for status and resume commands.
func (r *Runtime) Store() *pipeline.Store {
	return r.store
}

// DB exposes the audit database for analytics queries.
func (r *Runtime) DB() *db.DB {
	return r.database
}

// Health exposes the health monitor.
func (r *Runtime) Health() *health.Monitor {
	return r.health
}

// Metrics returns the Prometheus registry, or nil when metrics are
// disabled.
func (r *Runtime) Metrics() *prometheus.Registry {
	return r.metrics
}

func (r *Runtime) registerHealthChecks() {
	r.health.Register("database", func() (bool, error) {
		if err := r.database.Conn().Ping(); err != nil {
			return false, err
		}
		return true, nil
	}, nil)

	r.health.Register("llm", func() (bool, error) {
		if os.Getenv(r.cfg.LLM.APIKeyEnv) == "" {
			return false, fmt.Errorf("environment variable %s not set", r.cfg.LLM.APIKeyEnv)
		}
		return true, nil
	}, nil)
}
