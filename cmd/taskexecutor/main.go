// Command taskexecutor runs a single task: it loads a JSON task
// descriptor, builds the vertex harness graph, and executes it to
// completion, logging state transitions locally and reporting metrics
// and the DynOpt hand-off message to the master.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/swarmguard/taskexecutor/internal/control"
	"github.com/swarmguard/taskexecutor/internal/harness"
	"github.com/swarmguard/taskexecutor/internal/registry"
	"github.com/swarmguard/taskexecutor/internal/taskexec"
	"github.com/swarmguard/taskexecutor/internal/taskspec"
	"github.com/swarmguard/taskexecutor/internal/transfer"
	"github.com/swarmguard/taskexecutor/pkg/config"
	"github.com/swarmguard/taskexecutor/pkg/logging"
	"github.com/swarmguard/taskexecutor/pkg/otelinit"
)

func main() {
	taskID := flag.String("task-id", "", "task id (falls back to TASKEXEC_TASK_ID)")
	specPath := flag.String("spec", "", "path to the JSON task descriptor")
	natsURL := flag.String("nats-url", nats.DefaultURL, "NATS server URL for inter-task transfer")
	flag.Parse()

	if *taskID == "" {
		*taskID = os.Getenv("TASKEXEC_TASK_ID")
	}
	if *taskID == "" || *specPath == "" {
		fmt.Fprintln(os.Stderr, "usage: taskexecutor -task-id <id> -spec <path> [-nats-url <url>]")
		os.Exit(2)
	}

	cfg := config.Load(*taskID)
	logger := logging.Init(*taskID)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") == "" {
		os.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.OTLPEndpoint)
	}
	shutdownTrace := otelinit.InitTracer(ctx, *taskID)
	shutdownMetrics := otelinit.InitMetrics(ctx, *taskID)
	defer func() {
		ctxSd, cancelSd := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancelSd()
		otelinit.Flush(ctxSd, shutdownTrace)
		_ = shutdownMetrics(ctxSd)
	}()

	if err := run(ctx, cfg, *specPath, *natsURL, logger); err != nil {
		logger.Error("task executor exited with error", "error", err)
		os.Exit(1)
	}
	logger.Info("task executor exited cleanly")
}

func run(ctx context.Context, cfg *config.Config, specPath, natsURL string, logger *slog.Logger) error {
	f, err := os.Open(specPath)
	if err != nil {
		return fmt.Errorf("open task spec: %w", err)
	}
	defer f.Close()

	decoded, err := taskspec.Decode(f)
	if err != nil {
		return fmt.Errorf("decode task spec: %w", err)
	}

	reg := registry.New()
	task, dag, err := taskspec.Build(decoded, reg)
	if err != nil {
		return fmt.Errorf("build task spec: %w", err)
	}

	nc, err := nats.Connect(natsURL)
	if err != nil {
		return fmt.Errorf("connect to nats: %w", err)
	}
	defer nc.Close()
	factory := transfer.NewNATSDataTransferFactory(nc)

	broadcastMgr, err := control.NewBroadcastManagerWorker(cfg.BroadcastCachePath)
	if err != nil {
		return fmt.Errorf("open broadcast cache: %w", err)
	}
	defer broadcastMgr.Close()

	conn, err := control.DialMaster(cfg.MasterAddr, cfg.RetryAttempts, cfg.RetryBaseDelay)
	if err != nil {
		return fmt.Errorf("dial master: %w", err)
	}
	defer conn.Close()

	master := conn.MessageSender(control.RuntimeMasterMessageListenerID)
	metrics := control.NewMetricMessageSender(master)

	var exec *taskexec.TaskExecutor
	result, err := harness.BuildAll(ctx, task, dag, factory, broadcastMgr, broadcastMgr, func(vertexID string) {
		exec.OnVertexHold(vertexID)
	})
	if err != nil {
		return fmt.Errorf("build harness: %w", err)
	}

	recorder := &stateChangeLogger{logger: logger}
	stateMachine := control.NewStateMachine(cfg.TaskID, recorder)
	exec = taskexec.New(cfg.TaskID, result, stateMachine, metrics, master,
		taskexec.WithPollInterval(cfg.PollInterval),
		taskexec.WithLogger(logger))

	logger.Info("executing task", "vertex_count", len(result.ByID))
	return exec.Execute(ctx)
}

// stateChangeLogger logs task state transitions locally. It does not talk
// to the master connection: no per-transition state message is sent to the
// master, which receives only the metric messages and the DynOpt hand-off's
// ExecutorDataCollected control message (spec §6).
type stateChangeLogger struct {
	logger *slog.Logger
}

func (r *stateChangeLogger) OnTaskStateChanged(c control.StateChange) {
	r.logger.Info("task state changed",
		"state", c.State.String(),
		"vertex_on_hold", c.VertexOnHold,
		"failure_cause", c.FailureCause,
		"failure_detail", c.FailureDetail,
	)
}
