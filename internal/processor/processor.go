// Package processor implements the per-job orchestrator: one call to
// ProcessMessage drives a single Compile or Verify request from its queue
// envelope through claim, run, publish, and cleanup.
package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/NethermindEth/zksync-contract-worker/internal/adapter/observability"
	"github.com/NethermindEth/zksync-contract-worker/internal/command/compile"
	"github.com/NethermindEth/zksync-contract-worker/internal/command/verify"
	"github.com/NethermindEth/zksync-contract-worker/internal/domain"
	"github.com/NethermindEth/zksync-contract-worker/internal/workspace"
)

// downloadURLExpiration is the presigned GET TTL minted for every published
// artifact.
const downloadURLExpiration = 5 * time.Hour

// Purgatory is the subset of the reaper's API the Processor depends on.
// Defined here, rather than imported from internal/purgatory, so this
// package stays the leaf of the dependency graph it actually needs.
type Purgatory interface {
	AddRecord(id domain.JobID, result domain.TaskResult)
}

// Processor wires one job-kind-agnostic orchestrator around the three
// reliable clients, the subprocess semaphore, and the shared purgatory.
type Processor struct {
	queue         domain.QueueClient
	kv            domain.KVClient
	blob          domain.BlobClient
	purgatory     Purgatory
	sem           *semaphore.Weighted
	workspaceRoot string
	log           *slog.Logger
}

// New builds a Processor. workspaceRoot is the directory under which every
// job gets its own scratch subdirectory (named by Job Identifier).
func New(queue domain.QueueClient, kv domain.KVClient, blob domain.BlobClient, purgatory Purgatory, sem *semaphore.Weighted, workspaceRoot string, log *slog.Logger) *Processor {
	if log == nil {
		log = slog.Default()
	}
	return &Processor{
		queue:         queue,
		kv:            kv,
		blob:          blob,
		purgatory:     purgatory,
		sem:           sem,
		workspaceRoot: workspaceRoot,
		log:           log,
	}
}

// ProcessMessage dispatches on the envelope's tag. Errors are logged, not
// returned: per the independence principle, a single job's failure must
// never block the worker loop from picking up the next message.
func (p *Processor) ProcessMessage(ctx context.Context, msg domain.QueueMessage, receiptHandle string) {
	switch msg.Type {
	case domain.MessageCompile:
		req, err := msg.AsCompileRequest()
		if err != nil {
			p.log.Error("malformed compile envelope", slog.Any("err", err))
			return
		}
		if err := p.processCompile(ctx, req, receiptHandle); err != nil {
			p.log.Error("process compile request", slog.String("job_id", req.ID.String()), slog.Any("err", err))
		}
	case domain.MessageVerify:
		req, err := msg.AsVerifyRequest()
		if err != nil {
			p.log.Error("malformed verify envelope", slog.Any("err", err))
			return
		}
		if err := p.processVerify(ctx, req, receiptHandle); err != nil {
			p.log.Error("process verify request", slog.String("job_id", req.ID.String()), slog.Any("err", err))
		}
	default:
		p.log.Error("unknown queue message type, acking as poison", slog.String("type", string(msg.Type)))
		if err := p.queue.Delete(ctx, receiptHandle); err != nil {
			p.log.Warn("delete poison message", slog.Any("err", err))
		}
	}
}

func (p *Processor) processCompile(ctx context.Context, req domain.CompileRequest, receiptHandle string) error {
	id := req.ID

	tracer := otel.Tracer("processor")
	ctx, span := tracer.Start(ctx, "processor.Compile")
	defer span.End()
	span.SetAttributes(attribute.String("job.id", id.String()))

	if err := p.runCompile(ctx, req, receiptHandle); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

func (p *Processor) runCompile(ctx context.Context, req domain.CompileRequest, receiptHandle string) error {
	id := req.ID

	if !containsString(compile.AllowedVersions, req.Config.Version) {
		p.abandonIndependently(id, receiptHandle)
		return fmt.Errorf("op=processor.validate_compile: %w", compile.ErrVersionNotSupported)
	}

	contracts, err := p.fetchSourceFiles(ctx, id)
	if err != nil {
		p.deleteMessageBestEffort(ctx, receiptHandle)
		return fmt.Errorf("op=processor.prepare_compile: %w", err)
	}

	claimed, err := p.claim(ctx, id, receiptHandle)
	if err != nil {
		return fmt.Errorf("op=processor.claim_compile: %w", err)
	}
	if !claimed {
		return nil
	}

	workspaceDir := filepath.Join(p.workspaceRoot, id.String())
	guard := workspace.NewCleanUp(p.log, workspaceDir)

	observability.StartProcessingJob(string(domain.MessageCompile))
	output, runErr := compile.Run(ctx, p.sem, compile.Input{
		WorkspaceRoot: workspaceDir,
		Config:        req.Config,
		Contracts:     contracts,
	})
	if runErr != nil {
		result := domain.NewFailure(classifyCompileError(runErr), runErr.Error())
		if err := p.kv.Complete(ctx, id, result); err != nil {
			guard.Close()
			return fmt.Errorf("op=processor.complete_compile_failure: %w", err)
		}
		observability.FailJob(string(domain.MessageCompile), string(result.Kind))
		p.purgatory.AddRecord(id, result)
		guard.Close()
		p.finishIndependently(id, receiptHandle)
		return nil
	}

	artifacts, err := p.publishArtifacts(ctx, id, output)
	if err != nil {
		guard.Close()
		return fmt.Errorf("op=processor.publish_compile_artifacts: %w", err)
	}

	result := domain.NewCompileSuccess(artifacts)
	if err := p.kv.Complete(ctx, id, result); err != nil {
		guard.Close()
		return fmt.Errorf("op=processor.complete_compile_success: %w", err)
	}
	observability.CompleteJob(string(domain.MessageCompile))
	p.purgatory.AddRecord(id, result)
	guard.Close()
	p.finishIndependently(id, receiptHandle)
	return nil
}

func (p *Processor) processVerify(ctx context.Context, req domain.VerifyRequest, receiptHandle string) error {
	id := req.ID

	tracer := otel.Tracer("processor")
	ctx, span := tracer.Start(ctx, "processor.Verify")
	defer span.End()
	span.SetAttributes(attribute.String("job.id", id.String()))

	if err := p.runVerify(ctx, req, receiptHandle); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

func (p *Processor) runVerify(ctx context.Context, req domain.VerifyRequest, receiptHandle string) error {
	id := req.ID

	if !containsString(verify.AllowedNetworks, req.Config.Network) {
		p.abandonIndependently(id, receiptHandle)
		return fmt.Errorf("op=processor.validate_verify: %w", verify.ErrUnknownNetwork)
	}

	contracts, err := p.fetchSourceFiles(ctx, id)
	if err != nil {
		p.deleteMessageBestEffort(ctx, receiptHandle)
		return fmt.Errorf("op=processor.prepare_verify: %w", err)
	}

	claimed, err := p.claim(ctx, id, receiptHandle)
	if err != nil {
		return fmt.Errorf("op=processor.claim_verify: %w", err)
	}
	if !claimed {
		return nil
	}

	workspaceDir := filepath.Join(p.workspaceRoot, id.String())
	guard := workspace.NewCleanUp(p.log, workspaceDir)

	observability.StartProcessingJob(string(domain.MessageVerify))
	message, runErr := verify.Run(ctx, p.sem, verify.Input{
		WorkspaceRoot: workspaceDir,
		Config:        req.Config,
		Contracts:     contracts,
	})

	var result domain.TaskResult
	if runErr != nil {
		result = domain.NewFailure(classifyVerifyError(runErr), runErr.Error())
	} else {
		result = domain.NewVerifySuccess(message)
	}

	if err := p.kv.Complete(ctx, id, result); err != nil {
		guard.Close()
		return fmt.Errorf("op=processor.complete_verify: %w", err)
	}
	if result.IsSuccess() {
		observability.CompleteJob(string(domain.MessageVerify))
	} else {
		observability.FailJob(string(domain.MessageVerify), string(result.Kind))
	}
	p.purgatory.AddRecord(id, result)
	guard.Close()
	p.finishIndependently(id, receiptHandle)
	return nil
}

// claim performs the sole cross-worker coordination point. It returns
// (true, nil) when this worker won the race and should proceed, (false,
// nil) when another worker (or a Purgatory reap) already claimed or
// completed the job and this one should quietly stand down, and a non-nil
// error for any other KV failure (in which case the caller must not ack,
// so the message is redelivered).
func (p *Processor) claim(ctx context.Context, id domain.JobID, receiptHandle string) (bool, error) {
	tracer := otel.Tracer("processor")
	ctx, span := tracer.Start(ctx, "processor.Claim")
	defer span.End()
	span.SetAttributes(attribute.String("job.id", id.String()))

	err := p.kv.UpdateStatusConditional(ctx, id, domain.StatusPending, domain.StatusInProgress)
	if err == nil {
		span.SetAttributes(attribute.Bool("processor.claimed", true))
		return true, nil
	}
	if errors.Is(err, domain.ErrConditionalCheckFailed) || errors.Is(err, domain.ErrNotFound) {
		span.SetAttributes(attribute.Bool("processor.claimed", false))
		p.deleteMessageBestEffort(ctx, receiptHandle)
		return false, nil
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return false, err
}

// fetchSourceFiles downloads every object under the job's input prefix.
func (p *Processor) fetchSourceFiles(ctx context.Context, id domain.JobID) ([]compile.SourceFile, error) {
	tracer := otel.Tracer("processor")
	ctx, span := tracer.Start(ctx, "processor.FetchSourceFiles")
	defer span.End()
	span.SetAttributes(attribute.String("job.id", id.String()))

	prefix := id.String() + "/"
	keys, err := p.blob.ListPrefix(ctx, prefix)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("list input prefix: %w", err)
	}
	files := make([]compile.SourceFile, 0, len(keys))
	for _, key := range keys {
		content, err := p.blob.GetObject(ctx, key)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, fmt.Errorf("get input object %s: %w", key, err)
		}
		files = append(files, compile.SourceFile{
			Path:    strings.TrimPrefix(key, prefix),
			Content: content,
		})
	}
	span.SetAttributes(attribute.Int("processor.source_files", len(files)))
	return files, nil
}

// publishArtifacts uploads every compiled artifact and mints its presigned
// download URL, substituting the empty-artifact sentinel when the compile
// produced nothing to publish.
func (p *Processor) publishArtifacts(ctx context.Context, id domain.JobID, output compile.Output) ([]domain.ArtifactInfo, error) {
	tracer := otel.Tracer("processor")
	ctx, span := tracer.Start(ctx, "processor.PublishArtifacts")
	defer span.End()
	span.SetAttributes(attribute.String("job.id", id.String()), attribute.Int("processor.artifacts", len(output.Artifacts)))

	if len(output.Artifacts) == 0 {
		return []domain.ArtifactInfo{{Kind: domain.ArtifactUnknown, Path: "", URL: ""}}, nil
	}

	infos := make([]domain.ArtifactInfo, 0, len(output.Artifacts))
	for _, artifact := range output.Artifacts {
		content, err := os.ReadFile(artifact.AbsolutePath)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, fmt.Errorf("read artifact %s: %w", artifact.RelativePath, err)
		}
		key := fmt.Sprintf("artifacts/%s/%s", id, artifact.RelativePath)
		if err := p.blob.PutObject(ctx, key, content); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, fmt.Errorf("upload artifact %s: %w", key, err)
		}
		url, err := p.blob.PresignGet(ctx, key, int64(downloadURLExpiration.Seconds()))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, fmt.Errorf("presign artifact %s: %w", key, err)
		}
		infos = append(infos, domain.ArtifactInfo{Kind: artifact.Kind, Path: artifact.RelativePath, URL: url})
	}
	return infos, nil
}

// finishIndependently deletes the input prefix and acks the queue message
// in the background: per the independence principle, terminal publication
// has already happened and these are best-effort cleanup only.
func (p *Processor) finishIndependently(id domain.JobID, receiptHandle string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := p.blob.DeletePrefix(ctx, id.String()+"/"); err != nil {
			p.log.Warn("delete input prefix", slog.String("job_id", id.String()), slog.Any("err", err))
		}
		if err := p.queue.Delete(ctx, receiptHandle); err != nil {
			p.log.Warn("delete queue message", slog.String("job_id", id.String()), slog.Any("err", err))
		}
	}()
}

// abandonIndependently is finishIndependently's twin for the pre-claim
// validation failure path: the job never reached InProgress, so there is
// no KV record to complete, only inputs and the message to clean up.
func (p *Processor) abandonIndependently(id domain.JobID, receiptHandle string) {
	p.finishIndependently(id, receiptHandle)
}

func (p *Processor) deleteMessageBestEffort(ctx context.Context, receiptHandle string) {
	if err := p.queue.Delete(ctx, receiptHandle); err != nil {
		p.log.Warn("delete queue message", slog.Any("err", err))
	}
}

func classifyCompileError(err error) domain.ErrorType {
	switch {
	case errors.Is(err, compile.ErrVersionNotSupported):
		return domain.ErrUnsupportedCompilerVersion
	case errors.Is(err, compile.ErrNothingToCompile):
		return domain.ErrNothingToCompile
	default:
		var failure *compile.CompilationFailure
		if errors.As(err, &failure) {
			return domain.ErrCompilationError
		}
		return domain.ErrInternalError
	}
}

func classifyVerifyError(err error) domain.ErrorType {
	switch {
	case errors.Is(err, verify.ErrUnknownNetwork):
		return domain.ErrUnknownNetworkError
	default:
		var failure *verify.VerificationFailure
		if errors.As(err, &failure) {
			return domain.ErrVerificationError
		}
		return domain.ErrInternalError
	}
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
