// Package config loads the task executor's runtime tunables from the
// environment (with a few sane defaults), the way divinesense's cmd binary
// layers viper over env vars instead of a mandatory config file.
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds everything the executor needs to run a single task: where to
// reach the master, where to push telemetry, where to keep the broadcast
// cache, and how fast the fetch loop polls.
type Config struct {
	// TaskID identifies the task this process executes.
	TaskID string

	// MasterAddr is the gRPC endpoint of PersistentConnectionToMaster.
	MasterAddr string

	// OTLPEndpoint is the collector endpoint for traces and metrics.
	OTLPEndpoint string

	// BroadcastCachePath is the BoltDB file backing BroadcastManagerWorker.
	BroadcastCachePath string

	// PollInterval is how often the fetch loop re-checks a pending fetcher
	// for availability (spec §4.4: 100ms).
	PollInterval time.Duration

	// PendingSweepInterval is loaded from the environment but not passed to
	// the executor: the fetch loop gates its pending sweep on PollInterval.
	PendingSweepInterval time.Duration

	// MetricFlushInterval is loaded from the environment but not read by
	// MetricMessageSender, which sends each metric immediately.
	MetricFlushInterval time.Duration

	// MasterDialTimeout is loaded from the environment but not passed to
	// DialMaster, which applies no dial timeout of its own.
	MasterDialTimeout time.Duration

	// RetryAttempts/RetryBaseDelay parameterize resilience.Retry for
	// master-bound control messages.
	RetryAttempts  int
	RetryBaseDelay time.Duration

	// JSONLog and LogLevel mirror the env vars pkg/logging reads directly;
	// kept here too so callers can log the effective config once at boot.
	JSONLog  bool
	LogLevel string
}

// Load reads configuration from the environment. taskID is supplied by the
// caller (cmd/taskexecutor resolves it from the -task-id flag, falling back
// to TASKEXEC_TASK_ID) rather than read here, and is always set on the
// returned Config.
func Load(taskID string) *Config {
	v := viper.New()
	v.SetEnvPrefix("taskexec")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	v.SetDefault("master_addr", "localhost:9090")
	v.SetDefault("otlp_endpoint", "localhost:4317")
	v.SetDefault("broadcast_cache_path", "./taskexecutor-broadcast.db")
	v.SetDefault("poll_interval_ms", 100)
	v.SetDefault("pending_sweep_interval_ms", 100)
	v.SetDefault("metric_flush_interval_s", 10)
	v.SetDefault("master_dial_timeout_s", 5)
	v.SetDefault("retry_attempts", 5)
	v.SetDefault("retry_base_delay_ms", 200)
	v.SetDefault("json_log", false)
	v.SetDefault("log_level", "info")

	return &Config{
		TaskID:               taskID,
		MasterAddr:           v.GetString("master_addr"),
		OTLPEndpoint:         v.GetString("otlp_endpoint"),
		BroadcastCachePath:   v.GetString("broadcast_cache_path"),
		PollInterval:         time.Duration(v.GetInt64("poll_interval_ms")) * time.Millisecond,
		PendingSweepInterval: time.Duration(v.GetInt64("pending_sweep_interval_ms")) * time.Millisecond,
		MetricFlushInterval:  time.Duration(v.GetInt64("metric_flush_interval_s")) * time.Second,
		MasterDialTimeout:    time.Duration(v.GetInt64("master_dial_timeout_s")) * time.Second,
		RetryAttempts:        v.GetInt("retry_attempts"),
		RetryBaseDelay:       v.GetDuration("retry_base_delay_ms") * time.Millisecond,
		JSONLog:              v.GetBool("json_log"),
		LogLevel:             v.GetString("log_level"),
	}
}
