package params

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Node struct {
	ChainID      int64 // chain this ledger settles as
	DBPath       string
	APIAddr      string
	Listen       string   // libp2p multiaddr
	Bootstrap    []string // peer multiaddrs
	JournalPath  string   // SQLite event journal; empty disables it
	RegistryFile string
	// AttestSeed makes this node a committee member signing attestations
	AttestSeed     string
	BitcoinNetwork string // mainnet, testnet, regtest, signet, simnet; empty skips address checks
}

type Domain struct {
	Name              string
	Version           string
	VerifyingContract string
}

type Log struct {
	File       string
	Verbose    bool
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

type Config struct {
	Node   Node
	Domain Domain
	Log    Log
}

func Default() Config {
	return Config{
		Node: Node{
			ChainID:      31337,
			DBPath:       "data/flash",
			APIAddr:      ":8080",
			Listen:       "/ip4/0.0.0.0/tcp/26656",
			JournalPath:  "data/journal.db",
			RegistryFile: "registry.yaml",
		},
		Domain: Domain{
			Name:              "Flash",
			Version:           "1",
			VerifyingContract: "0x0000000000000000000000000000000000000000",
		},
		Log: Log{
			File:       "logs/node.log",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

// LoadFromEnv loads configuration from .env file (if exists) and environment variables
// Priority: ENV > .env file > defaults
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	if id := os.Getenv("FLASH_CHAIN_ID"); id != "" {
		if n, err := strconv.ParseInt(id, 10, 64); err == nil {
			cfg.Node.ChainID = n
		}
	}
	cfg.Node.DBPath = getEnv("FLASH_DB_PATH", cfg.Node.DBPath)
	cfg.Node.APIAddr = getEnv("API_ADDR", cfg.Node.APIAddr)
	cfg.Node.Listen = getEnv("LISTEN", cfg.Node.Listen)
	if boot := os.Getenv("BOOTSTRAP"); boot != "" {
		cfg.Node.Bootstrap = splitList(boot)
	}
	if v, ok := os.LookupEnv("JOURNAL_PATH"); ok {
		cfg.Node.JournalPath = v
	}
	cfg.Node.RegistryFile = getEnv("REGISTRY_FILE", cfg.Node.RegistryFile)
	cfg.Node.AttestSeed = getEnv("ATTEST_SEED", cfg.Node.AttestSeed)
	cfg.Node.BitcoinNetwork = getEnv("BITCOIN_NETWORK", cfg.Node.BitcoinNetwork)

	cfg.Domain.Name = getEnv("DOMAIN_NAME", cfg.Domain.Name)
	cfg.Domain.Version = getEnv("DOMAIN_VERSION", cfg.Domain.Version)
	cfg.Domain.VerifyingContract = getEnv("DOMAIN_VERIFYING_CONTRACT", cfg.Domain.VerifyingContract)

	cfg.Log.File = getEnv("LOG_FILE", cfg.Log.File)
	if v := os.Getenv("VERBOSE"); v != "" {
		cfg.Log.Verbose = v == "true" || v == "1"
	}

	return cfg
}

// getEnv returns environment variable value or default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
