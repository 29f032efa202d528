package compile

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/sync/semaphore"

	"github.com/NethermindEth/zksync-contract-worker/internal/domain"
)

func TestRunRejectsUnsupportedVersion(t *testing.T) {
	sem := semaphore.NewWeighted(1)
	_, err := Run(context.Background(), sem, Input{
		WorkspaceRoot: t.TempDir(),
		Config:        domain.CompilationConfig{Version: "0.0.0"},
		Contracts:     []SourceFile{{Path: "A.sol", Content: []byte("x")}},
	})
	assert.ErrorIs(t, err, ErrVersionNotSupported)
}

func TestRunRejectsWhenOnlyTestFilesSupplied(t *testing.T) {
	sem := semaphore.NewWeighted(1)
	_, err := Run(context.Background(), sem, Input{
		WorkspaceRoot: t.TempDir(),
		Config:        domain.CompilationConfig{Version: AllowedVersions[0]},
		Contracts:     []SourceFile{{Path: "A_test.sol", Content: []byte("x")}},
	})
	assert.ErrorIs(t, err, ErrNothingToCompile)
}

func TestClassifyArtifactKind(t *testing.T) {
	assert.Equal(t, domain.ArtifactDbg, classify("Foo.dbg.json"))
	assert.Equal(t, domain.ArtifactContract, classify("Foo.json"))
	assert.Equal(t, domain.ArtifactUnknown, classify("Foo.txt"))
}

func TestFilterTestFiles(t *testing.T) {
	in := []SourceFile{{Path: "A.sol"}, {Path: "A_test.sol"}, {Path: "nested/B_test.sol"}, {Path: "B.sol"}}
	out := filterTestFiles(in)
	assert.Len(t, out, 2)
}
