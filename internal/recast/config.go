package recast

import (
	"fmt"
	"strings"
	"time"

	"ncbot/pkg/config"
)

const (
	// DefaultSelfAccountID is the operator's own account address.
	DefaultSelfAccountID = "0x4E9c142eE16e45FFB32Ece493b8e00E8Eeb47260"
	// DefaultTestHandlePrefix marks internal test accounts.
	DefaultTestHandlePrefix = "__tt__"
	// DefaultVerificationPrefix opens the post every account publishes to prove ownership.
	DefaultVerificationPrefix = "Authenticating my Farcaster account"
)

// Config holds the engine constants. It is built once at startup and passed
// into the engine; nothing reads it from process globals.
type Config struct {
	// SelfAccountID is whose history the recast index is rebuilt from.
	SelfAccountID string
	// DiscoveryWindow bounds both account discovery and the recast index.
	DiscoveryWindow time.Duration
	// CastWindow is how fresh a post must be to be recast.
	CastWindow time.Duration
	// MaxRecastsPerAccount caps recasts per author inside DiscoveryWindow.
	MaxRecastsPerAccount int
	TestHandlePrefix     string
	SkipHandles          []string
	VerificationPrefix   string
}

// DefaultConfig returns the production constants: accounts are followed for
// three days, posts are recast up to an hour after publishing.
func DefaultConfig() Config {
	return Config{
		SelfAccountID:        DefaultSelfAccountID,
		DiscoveryWindow:      72 * time.Hour,
		CastWindow:           time.Hour,
		MaxRecastsPerAccount: 5,
		TestHandlePrefix:     DefaultTestHandlePrefix,
		VerificationPrefix:   DefaultVerificationPrefix,
	}
}

// ConfigFromEnv overlays operator overrides on DefaultConfig.
func ConfigFromEnv() Config {
	cfg := DefaultConfig()
	cfg.SelfAccountID = config.GetEnv("SELF_ACCOUNT_ID", cfg.SelfAccountID)
	cfg.DiscoveryWindow = time.Duration(config.GetEnvInt("RECAST_FOR_USER_HR", int(cfg.DiscoveryWindow/time.Hour))) * time.Hour
	cfg.CastWindow = time.Duration(config.GetEnvInt("RECAST_FOR_CAST_HR", int(cfg.CastWindow/time.Hour))) * time.Hour
	cfg.MaxRecastsPerAccount = config.GetEnvInt("MAX_RECAST_PER_ACCOUNT", cfg.MaxRecastsPerAccount)
	cfg.TestHandlePrefix = config.GetEnv("TEST_HANDLE_PREFIX", cfg.TestHandlePrefix)
	cfg.SkipHandles = config.GetEnvList("SKIP_HANDLES", cfg.SkipHandles)
	cfg.VerificationPrefix = config.GetEnv("VERIFICATION_PREFIX", cfg.VerificationPrefix)
	return cfg
}

// Validate rejects configurations the engine cannot run safely with.
func (c Config) Validate() error {
	if strings.TrimSpace(c.SelfAccountID) == "" {
		return fmt.Errorf("self account id is required")
	}
	if c.DiscoveryWindow <= 0 {
		return fmt.Errorf("discovery window must be positive, got %s", c.DiscoveryWindow)
	}
	if c.CastWindow <= 0 {
		return fmt.Errorf("cast window must be positive, got %s", c.CastWindow)
	}
	if c.MaxRecastsPerAccount < 0 {
		return fmt.Errorf("max recasts per account must not be negative, got %d", c.MaxRecastsPerAccount)
	}
	return nil
}

// normalizeHandle makes "@Alice" and "alice" compare equal.
func normalizeHandle(h string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(h), "@"))
}
