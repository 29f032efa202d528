// Package compile implements the Compile Command: materialize a workspace,
// render a toolchain config, run the zksolc/hardhat subprocess, and
// classify the resulting artifacts.
package compile

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"golang.org/x/sync/semaphore"

	"github.com/NethermindEth/zksync-contract-worker/internal/adapter/observability"
	"github.com/NethermindEth/zksync-contract-worker/internal/command/hardhatconfig"
	"github.com/NethermindEth/zksync-contract-worker/internal/domain"
)

// AllowedVersions is the fixed zksolc version allow-list.
var AllowedVersions = []string{"1.4.1", "1.4.0"}

// DefaultSolidityVersion is used when the wire format doesn't carry one.
const DefaultSolidityVersion = "0.8.24"

// ErrVersionNotSupported is returned when config.Version is not allow-listed.
var ErrVersionNotSupported = fmt.Errorf("compiler version not supported")

// ErrNothingToCompile is returned when every candidate file was filtered
// out (e.g. only *_test.sol files were supplied).
var ErrNothingToCompile = fmt.Errorf("nothing to compile")

// SourceFile is one input file relative to the workspace root.
type SourceFile struct {
	Path    string
	Content []byte
}

// Input is everything the Compile Command needs to run.
type Input struct {
	WorkspaceRoot string
	Config        domain.CompilationConfig
	Contracts     []SourceFile
}

// Artifact is one file produced under the workspace's artifacts-zk/ subtree.
type Artifact struct {
	RelativePath string
	Kind         domain.ArtifactKind
	AbsolutePath string
}

// Output is the Compile Command's result: the workspace directories (so the
// Processor's cleanup guard can remove them) and the classified artifacts.
// Artifact bytes remain on disk; the Processor streams them to Blob.
type Output struct {
	WorkspaceDir string
	ArtifactsDir string
	Artifacts    []Artifact
}

// CompilationFailure carries the subprocess's stderr on a non-zero exit.
type CompilationFailure struct {
	Stderr string
}

func (e *CompilationFailure) Error() string {
	return fmt.Sprintf("compilation failed: %s", e.Stderr)
}

// Run executes the Compile Command against a fresh semaphore permit. sem
// bounds process-wide subprocess fan-out (capacity 8 per SPEC_FULL.md §5).
func Run(ctx context.Context, sem *semaphore.Weighted, in Input) (Output, error) {
	if !contains(AllowedVersions, in.Config.Version) {
		return Output{}, ErrVersionNotSupported
	}

	contracts := filterTestFiles(in.Contracts)
	if len(contracts) == 0 {
		return Output{}, ErrNothingToCompile
	}

	workspaceDir := in.WorkspaceRoot
	artifactsDir := filepath.Join(workspaceDir, "artifacts-zk")
	configPath := filepath.Join(workspaceDir, "hardhat.config.ts")

	if err := os.MkdirAll(workspaceDir, 0o755); err != nil {
		return Output{}, fmt.Errorf("create workspace dir: %w", err)
	}
	if err := os.MkdirAll(artifactsDir, 0o755); err != nil {
		return Output{}, fmt.Errorf("create artifacts dir: %w", err)
	}

	solidityVersion := DefaultSolidityVersion
	builder := hardhatconfig.New().
		ZksolcVersion(in.Config.Version).
		SolidityVersion(solidityVersion).
		Libraries(in.Config.UserLibraries)
	if in.Config.TargetPath != "" {
		builder = builder.PathsSources(in.Config.TargetPath)
	}
	if err := os.WriteFile(configPath, []byte(builder.Render()), 0o644); err != nil {
		return Output{}, fmt.Errorf("write hardhat config: %w", err)
	}

	if err := writeSourceFiles(workspaceDir, contracts); err != nil {
		return Output{}, err
	}

	if err := sem.Acquire(ctx, 1); err != nil {
		return Output{}, fmt.Errorf("acquire subprocess permit: %w", err)
	}
	observability.SubprocessInflight.Inc()
	defer observability.SubprocessInflight.Dec()
	defer sem.Release(1)

	cmd := exec.CommandContext(ctx, "npx", "hardhat", "compile")
	cmd.Dir = workspaceDir
	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if _, ok := err.(*exec.ExitError); ok {
			return Output{}, &CompilationFailure{Stderr: stderr.String()}
		}
		return Output{}, fmt.Errorf("spawn compile subprocess: %w", err)
	}

	artifacts, err := collectArtifacts(artifactsDir)
	if err != nil {
		return Output{}, err
	}

	return Output{WorkspaceDir: workspaceDir, ArtifactsDir: artifactsDir, Artifacts: artifacts}, nil
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func filterTestFiles(files []SourceFile) []SourceFile {
	out := make([]SourceFile, 0, len(files))
	for _, f := range files {
		if strings.HasSuffix(f.Path, "_test.sol") {
			continue
		}
		out = append(out, f)
	}
	return out
}

func writeSourceFiles(workspaceDir string, files []SourceFile) error {
	for _, f := range files {
		dst := filepath.Join(workspaceDir, f.Path)
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return fmt.Errorf("create parent dir for %s: %w", f.Path, err)
		}
		if err := os.WriteFile(dst, f.Content, 0o644); err != nil {
			return fmt.Errorf("write source file %s: %w", f.Path, err)
		}
	}
	return nil
}

func collectArtifacts(artifactsDir string) ([]Artifact, error) {
	var artifacts []Artifact
	err := filepath.WalkDir(artifactsDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(artifactsDir, path)
		if err != nil {
			return err
		}
		artifacts = append(artifacts, Artifact{
			RelativePath: rel,
			Kind:         classify(rel),
			AbsolutePath: path,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("enumerate artifacts: %w", err)
	}
	return artifacts, nil
}

func classify(relPath string) domain.ArtifactKind {
	switch {
	case strings.HasSuffix(relPath, ".dbg.json"):
		return domain.ArtifactDbg
	case strings.HasSuffix(relPath, ".json"):
		return domain.ArtifactContract
	default:
		return domain.ArtifactUnknown
	}
}
