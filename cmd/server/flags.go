package main

import (
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/damacus/your-files/internal/config"
)

// FlagLoader provides methods for loading configuration values with CLI flag precedence.
// When a CLI flag is explicitly set, it takes precedence over config file and env vars.
// Otherwise, viper's standard priority applies: env > config file > default.
//
// Flag names are config keys with "_" replaced by "-".
type FlagLoader struct {
	cmd *cobra.Command
	v   *viper.Viper
}

// NewFlagLoader creates a FlagLoader for the given cobra command.
func NewFlagLoader(cmd *cobra.Command, v *viper.Viper) *FlagLoader {
	return &FlagLoader{cmd: cmd, v: v}
}

func flagName(key string) string {
	return strings.ReplaceAll(key, "_", "-")
}

func (f *FlagLoader) changed(key string) bool {
	fl := f.cmd.Flags().Lookup(flagName(key))
	return fl != nil && fl.Changed
}

// String returns CLI flag value if explicitly set, otherwise viper value.
func (f *FlagLoader) String(key string) string {
	if f.changed(key) {
		val, _ := f.cmd.Flags().GetString(flagName(key))
		return val
	}
	return f.v.GetString(key)
}

// Int returns CLI flag value if explicitly set, otherwise viper value.
func (f *FlagLoader) Int(key string) int {
	if f.changed(key) {
		val, _ := f.cmd.Flags().GetInt(flagName(key))
		return val
	}
	return f.v.GetInt(key)
}

// Float64 returns CLI flag value if explicitly set, otherwise viper value.
func (f *FlagLoader) Float64(key string) float64 {
	if f.changed(key) {
		val, _ := f.cmd.Flags().GetFloat64(flagName(key))
		return val
	}
	return f.v.GetFloat64(key)
}

// Bool returns CLI flag value if explicitly set, otherwise viper value.
func (f *FlagLoader) Bool(key string) bool {
	if f.changed(key) {
		val, _ := f.cmd.Flags().GetBool(flagName(key))
		return val
	}
	return f.v.GetBool(key)
}

// Duration returns CLI flag value if explicitly set, otherwise viper value.
func (f *FlagLoader) Duration(key string) time.Duration {
	if f.changed(key) {
		val, _ := f.cmd.Flags().GetDuration(flagName(key))
		return val
	}
	return f.v.GetDuration(key)
}

// StringSlice returns CLI flag value if explicitly set, otherwise viper value.
func (f *FlagLoader) StringSlice(key string) []string {
	if f.changed(key) {
		val, _ := f.cmd.Flags().GetStringSlice(flagName(key))
		return val
	}
	return f.v.GetStringSlice(key)
}

// Apply writes every explicitly set flag into viper so config.FromViper
// sees them above env, file and defaults.
func (f *FlagLoader) Apply() {
	for _, key := range []string{
		config.KeyBackend, config.KeyBucket, config.KeyRegion, config.KeyEndpoint,
		config.KeyRootPrefix, config.KeyBigDataPrefix, config.KeyCredentialsURL,
		config.KeyAccessKey, config.KeySecretKey, config.KeySessionToken,
		config.KeyCreateTableURL, config.KeyListenAddr, config.KeyLogLevel,
	} {
		if f.changed(key) {
			f.v.Set(key, f.String(key))
		}
	}
	for _, key := range []string{config.KeyPathStyle, config.KeyLogPretty, config.KeyCookieSecure} {
		if f.changed(key) {
			f.v.Set(key, f.Bool(key))
		}
	}
	if f.changed(config.KeySharedPrefixes) {
		f.v.Set(config.KeySharedPrefixes, f.StringSlice(config.KeySharedPrefixes))
	}
	if f.changed(config.KeyDownloadExpiry) {
		f.v.Set(config.KeyDownloadExpiry, f.Duration(config.KeyDownloadExpiry))
	}
	if f.changed(config.KeyDeleteRateLimit) {
		f.v.Set(config.KeyDeleteRateLimit, f.Float64(config.KeyDeleteRateLimit))
	}
	if f.changed(config.KeyDeleteBurst) {
		f.v.Set(config.KeyDeleteBurst, f.Int(config.KeyDeleteBurst))
	}
}
