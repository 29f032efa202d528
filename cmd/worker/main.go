// Package main provides the worker application entry point.
// The worker consumes compile/verify jobs from the queue, runs them
// against the local toolchain, and publishes their artifacts.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"golang.org/x/sync/semaphore"

	blobs3 "github.com/NethermindEth/zksync-contract-worker/internal/adapter/blob/s3"
	"github.com/NethermindEth/zksync-contract-worker/internal/adapter/observability"
	kvdynamodb "github.com/NethermindEth/zksync-contract-worker/internal/adapter/kv/dynamodb"
	queuesqs "github.com/NethermindEth/zksync-contract-worker/internal/adapter/queue/sqs"
	"github.com/NethermindEth/zksync-contract-worker/internal/config"
	"github.com/NethermindEth/zksync-contract-worker/internal/engine"
	"github.com/NethermindEth/zksync-contract-worker/internal/purgatory"
	"github.com/NethermindEth/zksync-contract-worker/internal/retry"
)

// retryStatePollInterval paces how often reliable-client states are
// reflected onto the retry_engine_state gauge.
const retryStatePollInterval = 5 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)

	observability.InitMetrics()

	shutdownTracer, err := observability.SetupTracing(cfg)
	if err != nil {
		slog.Error("failed to setup tracing", slog.Any("error", err))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	slog.Info("starting worker", slog.String("env", cfg.AppEnv))

	bootCtx, bootCancel := context.WithTimeout(context.Background(), 30*time.Second)
	awsOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.AWSRegion)}
	if cfg.AWSProfile != "" {
		awsOpts = append(awsOpts, awsconfig.WithSharedConfigProfile(cfg.AWSProfile))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(bootCtx, awsOpts...)
	bootCancel()
	if err != nil {
		slog.Error("aws config load failed", slog.Any("error", err))
		os.Exit(1)
	}

	queueClient := queuesqs.New(sqs.NewFromConfig(awsCfg), cfg.QueueURL, logger)
	kvClient := kvdynamodb.New(dynamodb.NewFromConfig(awsCfg), cfg.TableName, logger)
	blobClient := blobs3.New(s3.NewFromConfig(awsCfg), cfg.Bucket, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	ph, err := purgatory.New(ctx, kvClient, blobClient, cfg.RetentionInterval, cfg.PurgatorySweepInterval, logger)
	if err != nil {
		slog.Error("purgatory bootstrap failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer ph.Close()

	sem := semaphore.NewWeighted(int64(cfg.SubprocessLimit))
	builder := engine.NewBuilder(queueClient, kvClient, blobClient, ph, sem, cfg.WorkspaceRoot, logger)
	running := builder.Start(ctx, cfg.WorkerCount)

	go func() {
		ticker := time.NewTicker(retryStatePollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				observability.RecordRetryEngineState("queue", queueClient.State() == retry.Reconnecting)
				observability.RecordRetryEngineState("kv", kvClient.State() == retry.Reconnecting)
				observability.RecordRetryEngineState("blob", blobClient.State() == retry.Reconnecting)
			}
		}
	}()

	readyCheck := func() error {
		for name, state := range map[string]retry.State{
			"queue": queueClient.State(),
			"kv":    kvClient.State(),
			"blob":  blobClient.State(),
		} {
			if state == retry.Reconnecting {
				return fmt.Errorf("%s client is reconnecting", name)
			}
		}
		return nil
	}

	go func() {
		mux := observability.Mux(readyCheck)
		addr := ":" + strconv.Itoa(cfg.MetricsPort)
		slog.Info("metrics server listening", slog.String("addr", addr))
		if err := http.ListenAndServe(addr, mux); err != nil && err != http.ErrServerClosed {
			slog.Error("metrics server error", slog.Any("error", err))
		}
	}()

	slog.Info("worker started successfully, waiting for shutdown signal",
		slog.Int("workers", cfg.WorkerCount),
		slog.Int("subprocess_limit", cfg.SubprocessLimit))

	<-ctx.Done()
	slog.Info("signal received, shutting down")

	running.Stop()
	done := make(chan struct{})
	go func() {
		running.Wait()
		close(done)
	}()
	select {
	case <-done:
		slog.Info("worker pool drained")
	case <-time.After(cfg.ShutdownTimeout):
		slog.Warn("shutdown timeout exceeded, exiting anyway")
	}

	slog.Info("worker stopped")
}
