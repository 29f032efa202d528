// Package verify implements the Verify Command: materialize a workspace,
// render a toolchain config, and run the hardhat verify subprocess.
package verify

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"golang.org/x/sync/semaphore"

	"github.com/NethermindEth/zksync-contract-worker/internal/adapter/observability"
	"github.com/NethermindEth/zksync-contract-worker/internal/command/compile"
	"github.com/NethermindEth/zksync-contract-worker/internal/command/hardhatconfig"
	"github.com/NethermindEth/zksync-contract-worker/internal/domain"
)

// AllowedNetworks is the fixed network allow-list.
var AllowedNetworks = []string{"sepolia", "mainnet"}

// DefaultSolidityVersion mirrors the compile package's default, used when
// the wire format omits SolcVersion.
const DefaultSolidityVersion = compile.DefaultSolidityVersion

// ErrUnknownNetwork is returned when config.Network is not allow-listed.
var ErrUnknownNetwork = fmt.Errorf("unknown network")

// Input is everything the Verify Command needs to run.
type Input struct {
	WorkspaceRoot string
	Config        domain.VerificationConfig
	Contracts     []compile.SourceFile
}

// VerificationFailure carries the subprocess's stdout on a non-zero exit —
// hardhat-zksync-verify reports failures on stdout, not stderr.
type VerificationFailure struct {
	Stdout string
}

func (e *VerificationFailure) Error() string {
	return fmt.Sprintf("verification failed: %s", e.Stdout)
}

// Run executes the Verify Command against a fresh semaphore permit.
func Run(ctx context.Context, sem *semaphore.Weighted, in Input) (string, error) {
	if !contains(AllowedNetworks, in.Config.Network) {
		return "", ErrUnknownNetwork
	}

	solcVersion := in.Config.SolcVersion
	if solcVersion == "" {
		solcVersion = DefaultSolidityVersion
	}

	workspaceDir := in.WorkspaceRoot
	artifactsDir := filepath.Join(workspaceDir, "artifacts-zk")
	configPath := filepath.Join(workspaceDir, "hardhat.config.ts")

	if err := os.MkdirAll(workspaceDir, 0o755); err != nil {
		return "", fmt.Errorf("create workspace dir: %w", err)
	}
	if err := os.MkdirAll(artifactsDir, 0o755); err != nil {
		return "", fmt.Errorf("create artifacts dir: %w", err)
	}

	config := hardhatconfig.New().
		ZksolcVersion(in.Config.ZksolcVersion).
		SolidityVersion(solcVersion).
		Render()
	if err := os.WriteFile(configPath, []byte(config), 0o644); err != nil {
		return "", fmt.Errorf("write hardhat config: %w", err)
	}

	for _, f := range in.Contracts {
		dst := filepath.Join(workspaceDir, f.Path)
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return "", fmt.Errorf("create parent dir for %s: %w", f.Path, err)
		}
		if err := os.WriteFile(dst, f.Content, 0o644); err != nil {
			return "", fmt.Errorf("write source file %s: %w", f.Path, err)
		}
	}

	if err := sem.Acquire(ctx, 1); err != nil {
		return "", fmt.Errorf("acquire subprocess permit: %w", err)
	}
	observability.SubprocessInflight.Inc()
	defer observability.SubprocessInflight.Dec()
	defer sem.Release(1)

	args := extractArgs(in.Config)
	cmd := exec.CommandContext(ctx, "npx", args...)
	cmd.Dir = workspaceDir
	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	message := stdout.String()
	if err != nil {
		if _, ok := err.(*exec.ExitError); ok {
			return "", &VerificationFailure{Stdout: message}
		}
		return "", fmt.Errorf("spawn verify subprocess: %w", err)
	}
	return message, nil
}

func extractArgs(config domain.VerificationConfig) []string {
	args := []string{"hardhat", "verify", "--network"}
	if config.Network == "sepolia" {
		args = append(args, "zkSyncTestnet")
	} else {
		args = append(args, "zkSyncMainnet")
	}
	if config.TargetContract != "" {
		args = append(args, "--contract", config.TargetContract)
	}
	args = append(args, config.ContractAddress)
	args = append(args, config.Inputs...)
	return args
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
