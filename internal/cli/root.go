// Package cli implements the netvelocimeter command tree.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/bilal/netvelocimeter/internal/config"
	"github.com/bilal/netvelocimeter/internal/format"
	"github.com/bilal/netvelocimeter/internal/history"
	"github.com/bilal/netvelocimeter/internal/logger"
	"github.com/bilal/netvelocimeter/internal/sink"
	"github.com/bilal/netvelocimeter/pkg/binary"
	"github.com/bilal/netvelocimeter/pkg/ledger"
	"github.com/bilal/netvelocimeter/pkg/provider"
	"github.com/bilal/netvelocimeter/pkg/registry"
	"github.com/bilal/netvelocimeter/pkg/velocimeter"
)

// exitError ends the process with code. A nil err prints nothing.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

// app holds what every command shares.
type app struct {
	v        *viper.Viper
	cfg      *config.Config
	registry *registry.Registry
	runner   binary.Runner // nil runs real processes

	in     io.Reader
	out    io.Writer
	errOut io.Writer

	configFile string
	formatName string
	escapeWS   bool
	quiet      bool
	verbose    int

	closers []func() error
}

// Execute runs the command line and returns the process exit code.
func Execute(ctx context.Context) int {
	a := &app{
		registry: registry.NewDefault(),
		in:       os.Stdin,
		out:      os.Stdout,
		errOut:   os.Stderr,
	}
	return a.execute(ctx, os.Args[1:])
}

func (a *app) execute(ctx context.Context, args []string) int {
	root := a.newRootCmd()
	root.SetArgs(args)
	root.SetIn(a.in)
	root.SetOut(a.out)
	root.SetErr(a.errOut)

	err := root.ExecuteContext(ctx)
	a.close()
	if err == nil {
		return 0
	}

	var exit *exitError
	if errors.As(err, &exit) {
		if exit.err != nil {
			fmt.Fprintf(a.errOut, "Error: %v\n", exit.err)
		}
		return exit.code
	}
	fmt.Fprintf(a.errOut, "Error: %v\n", err)
	return 1
}

func (a *app) newRootCmd() *cobra.Command {
	a.v = config.New()

	root := &cobra.Command{
		Use:           "netvelocimeter",
		Short:         "Measure network performance through third-party providers",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup()
		},
	}

	flags := root.PersistentFlags()
	flags.StringP("provider", "p", velocimeter.DefaultProvider, "measurement provider")
	flags.String("bin-root", "", "directory holding provider binaries")
	flags.String("config-root", "", "directory holding configuration and the acceptance ledger")
	flags.StringVar(&a.configFile, "config", "", "config file (default <config-root>/"+config.FileName+")")
	flags.StringVarP(&a.formatName, "format", "f", string(format.Text), "output format: text, csv, tsv or json")
	flags.BoolVar(&a.escapeWS, "escape-ws", false, "escape whitespace in csv and tsv values")
	flags.BoolVarP(&a.quiet, "quiet", "q", false, "only log errors")
	flags.CountVarP(&a.verbose, "verbose", "v", "log more (repeat for debug)")

	a.v.BindPFlag("provider", flags.Lookup("provider"))
	a.v.BindPFlag("paths.bin_root", flags.Lookup("bin-root"))
	a.v.BindPFlag("paths.config_root", flags.Lookup("config-root"))

	root.AddCommand(
		a.newProviderCmd(),
		a.newLegalCmd(),
		a.newServerCmd(),
		a.newMeasureCmd(),
		a.newWatchCmd(),
		a.newVersionCmd(),
	)
	return root
}

// setup loads the configuration and initializes logging.
func (a *app) setup() error {
	if _, err := format.Parse(a.formatName); err != nil {
		return err
	}
	cfg, err := config.Load(a.v, a.configFile)
	if err != nil {
		return err
	}
	if level := logger.VerbosityLevel(a.quiet, a.verbose); level != "" {
		cfg.Logging.Level = level
	}
	logger.InitTo(a.errOut, cfg.Logging)
	a.cfg = cfg
	return nil
}

func (a *app) write(records []format.Record) error {
	f, err := format.Parse(a.formatName)
	if err != nil {
		return err
	}
	return format.Write(a.out, f, records, format.Options{EscapeWhitespace: a.escapeWS})
}

// open builds the configured provider, installing its binary if needed.
func (a *app) open(ctx context.Context) (*velocimeter.Velocimeter, error) {
	cfg := a.cfg
	store, err := a.ledgerStore()
	if err != nil {
		return nil, err
	}

	return velocimeter.New(ctx, velocimeter.Options{
		Provider:   cfg.Provider,
		BinRoot:    cfg.Paths.BinRoot,
		ConfigRoot: cfg.Paths.ConfigRoot,
		Registry:   a.registry,
		Store:      store,
		Logger:     &log.Logger,
		ProviderOptions: provider.Options{
			Runner:           a.runner,
			DownloadTimeout:  cfg.Timeouts.Download,
			DownloadAttempts: cfg.Binary.DownloadAttempts,
			VersionTimeout:   cfg.Timeouts.Version,
			MeasureTimeout:   cfg.Timeouts.Measure,
			TrustOnFirstUse:  cfg.Binary.TrustOnFirstUse,
			Checksums:        a.checksums(),
		},
	})
}

// checksums returns the pinned checksums of the selected provider. An alias
// uses its target's, overridden per platform by any pinned under the alias.
func (a *app) checksums() map[string]string {
	name := a.cfg.Provider
	entry, err := a.registry.Lookup(name)
	if err != nil || entry.Provider() == name {
		return a.cfg.Checksums(name)
	}
	out := make(map[string]string)
	for platform, sum := range a.cfg.Checksums(entry.Provider()) {
		out[platform] = sum
	}
	for platform, sum := range a.cfg.Checksums(name) {
		out[platform] = sum
	}
	return out
}

// ledgerStore returns the redis ledger when configured. A nil store makes
// velocimeter use the file ledger below the config root.
func (a *app) ledgerStore() (ledger.Store, error) {
	if a.cfg.Ledger.Backend != "redis" {
		return nil, nil
	}
	rc := a.cfg.Ledger.Redis
	client := redis.NewClient(&redis.Options{
		Addr:     rc.Addr,
		Password: rc.Password,
		DB:       rc.DB,
	})
	a.onClose(client.Close)
	return ledger.NewRedisStore(client, rc.Prefix, log.Logger), nil
}

func (a *app) openHistory() (*history.Store, error) {
	h, err := history.Open(a.cfg.History.Path)
	if err != nil {
		return nil, err
	}
	a.onClose(h.Close)
	return h, nil
}

// openSinks starts the configured exporters. They are flushed on exit.
func (a *app) openSinks() (sink.Multi, error) {
	sinks, err := sink.FromConfig(a.cfg.Sink)
	if err != nil {
		return nil, err
	}
	if len(sinks) > 0 {
		a.onClose(func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return sinks.Close(ctx)
		})
	}
	return sinks, nil
}

func (a *app) onClose(f func() error) {
	a.closers = append(a.closers, f)
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			log.Warn().Err(err).Msg("cleanup failed")
		}
	}
	a.closers = nil
}
