package cli

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/0x6d61/astra/internal/api"
	"github.com/0x6d61/astra/internal/config"
	"github.com/0x6d61/astra/internal/transport"
)

// Version information (set by build flags)
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// Execute runs the astra command tree.
func Execute() error {
	return NewRootCmd().Execute()
}

// NewRootCmd builds the command tree. Settings resolve from flags, then
// ASTRA_* environment variables, then the --config file.
func NewRootCmd() *cobra.Command {
	settings := config.NewViper()

	root := &cobra.Command{
		Use:   "astra",
		Short: "Terminal client for the ASTRA security operations console",
		Long: `astra - Terminal client for the ASTRA security operations console

Signs in to an ASTRA backend and drives its dashboard, scanner, vulnerability
reports, file upload, AI assistant and evaluation pages from the terminal.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.String(config.KeyConfig, "", "YAML config file")
	pf.StringP(config.KeyServer, "s", config.DefaultServer, "ASTRA backend URL")
	pf.Duration(config.KeyTimeout, 30*time.Second, "Request timeout")
	pf.String(config.KeyProxy, "", "Proxy URL (http://host:port or socks5://host:port)")
	pf.Bool(config.KeyInsecure, false, "Skip TLS certificate verification")
	pf.Float64(config.KeyMaxRPS, 0, "Maximum requests per second (0 = unlimited)")
	pf.Int(config.KeyUploadWorkers, 3, "Concurrent uploads per batch")
	pf.String(config.KeyJournal, "", "SQLite activity journal path")
	pf.IntP(config.KeyVerbose, "v", 1, "Verbosity level (0-3)")
	pf.StringP(config.KeyFormat, "f", "text", "Output format (text, json)")

	for _, key := range []string{
		config.KeyConfig, config.KeyServer, config.KeyTimeout, config.KeyProxy,
		config.KeyInsecure, config.KeyMaxRPS, config.KeyUploadWorkers,
		config.KeyJournal, config.KeyVerbose, config.KeyFormat,
	} {
		_ = settings.BindPFlag(key, pf.Lookup(key))
	}

	root.AddCommand(newVersionCmd())
	root.AddCommand(newConsoleCmd(settings))
	root.AddCommand(newJournalCmd(settings))
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "astra %s (commit: %s, built: %s)\n", version, commit, date)
		},
	}
}

func loadConfig(settings *viper.Viper) (*config.Config, error) {
	cfg, err := config.Resolve(settings)
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// newLogger maps verbosity 0-3 onto error, warn, info and debug.
func newLogger(verbose int, w io.Writer) *slog.Logger {
	level := slog.LevelError
	switch {
	case verbose >= 3:
		level = slog.LevelDebug
	case verbose >= 2:
		level = slog.LevelInfo
	case verbose >= 1:
		level = slog.LevelWarn
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func newBackend(cfg *config.Config) (*api.Client, transport.Client, error) {
	tc, err := transport.NewClient(transport.ClientOptions{
		Timeout:            cfg.Timeout,
		ProxyURL:           cfg.Proxy,
		InsecureSkipVerify: cfg.InsecureSkipVerify,
		MaxRPS:             cfg.MaxRPS,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create HTTP client: %w", err)
	}
	c, err := api.New(cfg.Server, tc)
	if err != nil {
		return nil, nil, err
	}
	return c, tc, nil
}
