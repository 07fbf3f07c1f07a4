// Package config holds the settlement core's static configuration: the
// EIP-712 signing domain, the protocol-wide fee ceilings, the tick-spacing
// range accepted from the host AMM, and the PADE decode step budget.
package config

import (
	"math/big"
	"os"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
)

// Fee ceilings, in microbips (1e6 = 100%), enforced by
// configstore.Store.ConfigurePool/BatchUpdatePools on every pool-fee
// update.
const (
	MaxBundleFeeMicrobips   = 200_000 // 20%
	MaxUnlockedFeeMicrobips = 400_000 // 40%
	MicrobipsDenominator    = 1_000_000
)

// RAY is the fixed-point scale used for price-1-over-0.
var RAY = new(big.Int).Exp(big.NewInt(10), big.NewInt(27), nil)

// Domain is the EIP-712 domain separator inputs for order/attestation hashing.
type Domain struct {
	Name              string
	Version           string
	ChainID           *big.Int
	VerifyingContract common.Address
}

// DefaultDomain returns the protocol's canonical signing domain.
func DefaultDomain() Domain {
	return Domain{
		Name:              "Angstrom",
		Version:           "v1",
		ChainID:           big.NewInt(1),
		VerifyingContract: common.Address{},
	}
}

// Node holds tunables for the executing process itself, not the protocol.
type Node struct {
	// DecodeStepBudget bounds per-decode work: a malformed payload that
	// recursively encodes zero-length lists inside a padded region can
	// otherwise cause pathological loop depth.
	DecodeStepBudget uint64

	// TickSpacingMin/Max bound what configure-pool will accept. This is the
	// host AMM's allowed range, enforced here since we have no host to defer
	// validation to.
	TickSpacingMin uint16
	TickSpacingMax uint16

	DBPath  string
	ListenAddr string
}

type Config struct {
	Domain Domain
	Node   Node
}

func Default() Config {
	return Config{
		Domain: DefaultDomain(),
		Node: Node{
			DecodeStepBudget: 1_000_000,
			TickSpacingMin:   1,
			TickSpacingMax:   16384,
			DBPath:           "data/angstrom",
			ListenAddr:       ":8080",
		},
	}
}

// LoadFromEnv loads configuration from a .env file (if present) and
// environment variables, overlaying Default(). Priority: ENV > .env > defaults.
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	if v := os.Getenv("ANGSTROM_CHAIN_ID"); v != "" {
		if id, ok := new(big.Int).SetString(v, 10); ok {
			cfg.Domain.ChainID = id
		}
	}
	if v := os.Getenv("ANGSTROM_VERIFYING_CONTRACT"); v != "" {
		cfg.Domain.VerifyingContract = common.HexToAddress(v)
	}
	if v := os.Getenv("ANGSTROM_DECODE_STEP_BUDGET"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			cfg.Node.DecodeStepBudget = n
		}
	}
	if v := os.Getenv("ANGSTROM_TICK_SPACING_MIN"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 16); err == nil {
			cfg.Node.TickSpacingMin = uint16(n)
		}
	}
	if v := os.Getenv("ANGSTROM_TICK_SPACING_MAX"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 16); err == nil {
			cfg.Node.TickSpacingMax = uint16(n)
		}
	}
	if v := os.Getenv("ANGSTROM_DB_PATH"); v != "" {
		cfg.Node.DBPath = v
	}
	if v := os.Getenv("ANGSTROM_LISTEN_ADDR"); v != "" {
		cfg.Node.ListenAddr = v
	}

	return cfg
}
