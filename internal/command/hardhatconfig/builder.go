// Package hardhatconfig renders the hardhat.config.ts content written into
// each workspace before a compile or verify subprocess runs.
package hardhatconfig

import (
	"fmt"
	"strings"
)

const defaultContractsLocation = "./contracts"

const configPrefix = `
import { HardhatUserConfig } from "hardhat/config";

import "@matterlabs/hardhat-zksync-solc";
import "@matterlabs/hardhat-zksync-verify";

export const zkSyncTestnet = process.env.NODE_ENV == "test"
? {
    url: "http://127.0.0.1:8011",
    ethNetwork: "http://127.0.0.1:8045",
    zksync: true,
  }
: {
    url: "https://sepolia.era.zksync.dev",
    ethNetwork: "sepolia",
    zksync: true,
    verifyURL: "https://explorer.sepolia.era.zksync.dev/contract_verification"
  };

export const zkSyncMainnet = {
    url: "https://mainnet.era.zksync.io",
    ethNetwork: "mainnet",
    zksync: true,
    verifyURL: "https://zksync2-mainnet-explorer.zksync.io/contract_verification"
  };
`

// Builder accumulates the settings needed to render hardhat.config.ts.
// Fluent setters mutate and return the same Builder, terminating in Render.
type Builder struct {
	zksolcVersion   string
	solidityVersion string
	pathsSources    string
	libraries       []string
}

// New starts a Builder whose sources path defaults to ./contracts. The
// zksolc and solidity versions start empty; set them with ZksolcVersion and
// SolidityVersion before calling Render.
func New() *Builder {
	return &Builder{
		pathsSources: defaultContractsLocation,
	}
}

// ZksolcVersion sets the zksolc compiler version.
func (b *Builder) ZksolcVersion(version string) *Builder {
	b.zksolcVersion = version
	return b
}

// SolidityVersion sets the solc compiler version.
func (b *Builder) SolidityVersion(version string) *Builder {
	b.solidityVersion = version
	return b
}

// PathsSources overrides the contracts source directory.
func (b *Builder) PathsSources(path string) *Builder {
	if path != "" {
		b.pathsSources = path
	}
	return b
}

// Libraries threads user-supplied npm package names into the rendered
// zksolc settings as additional library linkage entries — a field present
// on the wire (QueueMessage.config.user_libraries) but unused by the
// distilled Compile Command; wiring it here lets a compile actually link
// against externally-provided libraries.
func (b *Builder) Libraries(libraries []string) *Builder {
	b.libraries = libraries
	return b
}

// Render produces the full hardhat.config.ts file body.
func (b *Builder) Render() string {
	settings := "{}"
	if len(b.libraries) > 0 {
		entries := make([]string, 0, len(b.libraries))
		for _, lib := range b.libraries {
			entries = append(entries, fmt.Sprintf("        %q: {}", lib))
		}
		settings = fmt.Sprintf("{\n      libraries: {\n%s,\n      },\n    }", strings.Join(entries, ",\n"))
	}

	return fmt.Sprintf(`%s
const config: HardhatUserConfig = {
  zksolc: {
    version: %q,
    settings: %s,
  },
  defaultNetwork: "zkSyncTestnet",
  networks: {
    hardhat: {
      zksync: false,
    },
    zkSyncTestnet,
    zkSyncMainnet,
  },
  solidity: {
    version: %q,
  },
  paths: {
    sources: %q,
  },
};

export default config;
`, configPrefix, b.zksolcVersion, settings, b.solidityVersion, b.pathsSources)
}
