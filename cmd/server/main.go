// Command yourfiles serves the Your Files bucket browser and exposes the same
// operations from the terminal.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/damacus/your-files/internal/config"
	"github.com/damacus/your-files/internal/logger"
	"github.com/damacus/your-files/internal/services"
	"github.com/damacus/your-files/internal/storage"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return newRootCmd(newApp()).ExecuteContext(ctx)
}

// app carries what every command needs once flags are parsed.
type app struct {
	v   *viper.Viper
	cfg *config.Config
	out io.Writer

	// openStore builds the object store for cfg.
	openStore func(ctx context.Context, cfg *config.Config) (storage.ObjectStore, error)
}

func newApp() *app {
	return &app{
		v:         config.NewViper(),
		out:       os.Stdout,
		openStore: openStore,
	}
}

func newRootCmd(a *app) *cobra.Command {
	var configFile, envFile string

	root := &cobra.Command{
		Use:           "yourfiles",
		Short:         "Browse, upload and delete your files in object storage",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := config.LoadDotEnv(envFile); err != nil {
				return fmt.Errorf("load env file: %w", err)
			}
			if err := config.ReadFile(a.v, configFile); err != nil {
				return fmt.Errorf("read config file: %w", err)
			}
			NewFlagLoader(cmd, a.v).Apply()

			cfg, err := config.FromViper(a.v)
			if err != nil {
				return err
			}
			a.cfg = cfg

			level, err := zerolog.ParseLevel(cfg.LogLevel)
			if err != nil {
				return &config.ConfigError{Field: config.KeyLogLevel, Message: err.Error()}
			}
			logger.SetLevel(level)
			if cfg.LogPretty {
				logger.SetOutput(os.Stderr, true)
			}
			return nil
		},
	}

	f := root.PersistentFlags()
	f.StringVar(&configFile, "config", "", "path to a YAML config file")
	f.StringVar(&envFile, "env-file", ".env", "path to a .env file (ignored when missing)")
	f.String(flagName(config.KeyBackend), config.BackendS3, `storage backend: "s3" or "minio"`)
	f.String(flagName(config.KeyBucket), "", "bucket name")
	f.String(flagName(config.KeyRegion), "", "bucket region")
	f.String(flagName(config.KeyEndpoint), "", "custom S3 or MinIO endpoint")
	f.Bool(flagName(config.KeyPathStyle), false, "use path-style addressing (s3 backend)")
	f.String(flagName(config.KeyRootPrefix), "", "prefix holding the user's files")
	f.String(flagName(config.KeyBigDataPrefix), "big-data", `big-data prefix, relative to the root unless it starts with "/"`)
	f.StringSlice(flagName(config.KeySharedPrefixes), nil, "shared folder prefixes")
	f.String(flagName(config.KeyCredentialsURL), "", "endpoint serving short-lived credentials")
	f.String(flagName(config.KeyAccessKey), "", "static access key")
	f.String(flagName(config.KeySecretKey), "", "static secret key")
	f.String(flagName(config.KeySessionToken), "", "static session token")
	f.String(flagName(config.KeyCreateTableURL), "", "create-table page linked from .csv files")
	f.Float64(flagName(config.KeyDeleteRateLimit), 0, "bulk delete and listing requests per second (0 = unlimited)")
	f.Int(flagName(config.KeyDeleteBurst), 1, "burst for the delete rate limit")
	f.String(flagName(config.KeyLogLevel), "info", "log level")
	f.Bool(flagName(config.KeyLogPretty), false, "human readable logs")

	root.AddCommand(
		newServeCmd(a),
		newLsCmd(a),
		newUploadCmd(a),
		newRmCmd(a),
		newMkdirCmd(a),
	)
	return root
}

// browser opens the store and wires the browser services for one command.
func (a *app) browser(ctx context.Context, opts services.BrowserOptions) (*services.Browser, error) {
	store, err := a.openStore(ctx, a.cfg)
	if err != nil {
		return nil, err
	}
	if opts.DownloadExpiry == 0 {
		opts.DownloadExpiry = a.cfg.DownloadExpiry
	}
	opts.DeleteOptions = append(opts.DeleteOptions,
		services.WithDeleteRateLimit(a.cfg.DeleteRateLimit, a.cfg.DeleteBurst))
	return services.NewBrowser(store, layoutFor(a.cfg), opts), nil
}

func layoutFor(cfg *config.Config) services.Layout {
	return services.Layout{
		RootPrefix:     cfg.RootPrefix,
		BigDataPrefix:  cfg.BigDataPrefix,
		SharedPrefixes: cfg.SharedPrefixes,
		CreateTableURL: cfg.CreateTableURL,
	}
}
