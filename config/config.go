// Package config loads the tunables the distilled specification treats
// as fixed constants, through github.com/spf13/viper, so they can be
// overridden by a config file or environment without a rebuild while
// still defaulting to the values the protocol was designed around.
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds every runtime-tunable parameter of a node. Zero-value
// Config is never used directly; Load always returns one seeded with
// defaults.
type Config struct {
	// Interval is the target seconds-per-block the retarget algorithm
	// aims for.
	Interval int64

	// RetargetWindow is the number of blocks between difficulty
	// retarget steps (N in core.Blockchain's retarget formula).
	RetargetWindow int64

	// RetargetMaxRatio bounds how much the target can move in a single
	// retarget step, in either direction (R in the retarget formula).
	RetargetMaxRatio int64

	// Ksize is the Kademlia bucket size used by the overlay.
	Ksize int

	// Alpha is the overlay lookup/broadcast fan-out.
	Alpha int

	// SyncTickPeriod is how often the node broadcasts
	// REQUEST_LATEST_BLOCK.
	SyncTickPeriod time.Duration

	// RefreshTickPeriod is how often the node refreshes its overlay
	// routing table.
	RefreshTickPeriod time.Duration

	// MineRetryBackoff is the sleep after a stale mined block before
	// mineLoop retries. It is a fixed duration, not derived from
	// Interval; the 3s default is at least half the default Interval.
	MineRetryBackoff time.Duration

	// MineWorkers is the number of goroutines the miner fans a search
	// out across.
	MineWorkers int

	// DefaultMempoolPayload is the block Data used when the mempool has
	// nothing queued.
	DefaultMempoolPayload string
}

// Defaults matches spec.md's named constants exactly: Interval=5,
// RetargetWindow=10, RetargetMaxRatio=4. Ksize/Alpha follow the
// teacher's Kademlia setup (bucket size 20, fan-out 3). SyncTickPeriod
// mirrors Interval; RefreshTickPeriod is the spec's fixed 10s.
func Defaults() Config {
	return Config{
		Interval:              5,
		RetargetWindow:        10,
		RetargetMaxRatio:      4,
		Ksize:                 20,
		Alpha:                 3,
		SyncTickPeriod:        5 * time.Second,
		RefreshTickPeriod:     10 * time.Second,
		MineRetryBackoff:      3 * time.Second,
		MineWorkers:           4,
		DefaultMempoolPayload: "Genesis Block",
	}
}

// Load builds a Config from defaults, overridden by a CHAIN_-prefixed
// environment variable per field and, if present, a "chainnode" config
// file found on viper's default search paths.
func Load() (Config, error) {
	cfg := Defaults()

	v := viper.New()
	v.SetEnvPrefix("chain")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("chainnode")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.chainnode")

	v.SetDefault("interval", cfg.Interval)
	v.SetDefault("retarget_window", cfg.RetargetWindow)
	v.SetDefault("retarget_max_ratio", cfg.RetargetMaxRatio)
	v.SetDefault("ksize", cfg.Ksize)
	v.SetDefault("alpha", cfg.Alpha)
	v.SetDefault("sync_tick_period", cfg.SyncTickPeriod)
	v.SetDefault("refresh_tick_period", cfg.RefreshTickPeriod)
	v.SetDefault("mine_retry_backoff", cfg.MineRetryBackoff)
	v.SetDefault("mine_workers", cfg.MineWorkers)
	v.SetDefault("default_mempool_payload", cfg.DefaultMempoolPayload)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return Config{}, err
		}
	}

	cfg.Interval = v.GetInt64("interval")
	cfg.RetargetWindow = v.GetInt64("retarget_window")
	cfg.RetargetMaxRatio = v.GetInt64("retarget_max_ratio")
	cfg.Ksize = v.GetInt("ksize")
	cfg.Alpha = v.GetInt("alpha")
	cfg.SyncTickPeriod = v.GetDuration("sync_tick_period")
	cfg.RefreshTickPeriod = v.GetDuration("refresh_tick_period")
	cfg.MineRetryBackoff = v.GetDuration("mine_retry_backoff")
	cfg.MineWorkers = v.GetInt("mine_workers")
	cfg.DefaultMempoolPayload = v.GetString("default_mempool_payload")

	return cfg, nil
}
