package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ledgerwatch/log/v3"
	"github.com/spf13/cobra"

	"github.com/Giulio2002/trashdb"
)

var (
	datadir   string // environment directory, overrides the config file
	engine    string // backend, overrides the config file
	config    string // optional TOML config file
	verbosity string
)

func init() {
	rootCmd.PersistentFlags().StringVar(&datadir, "datadir", "", "environment data directory")
	rootCmd.PersistentFlags().StringVar(&engine, "engine", "", "storage engine: mdbx or bolt")
	rootCmd.PersistentFlags().StringVar(&config, "config", "", "TOML file with environment options")
	rootCmd.PersistentFlags().StringVar(&verbosity, "verbosity", "info", "log level: crit, error, warn, info, debug, trace")
	must(rootCmd.MarkPersistentFlagDirname("datadir"))
	must(rootCmd.MarkPersistentFlagFilename("config", "toml"))
}

var rootCmd = &cobra.Command{
	Use:          "trashdb",
	Short:        "trashdb inspects and edits a trashdb environment",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		lvl, err := log.LvlFromString(verbosity)
		if err != nil {
			return err
		}
		log.Root().SetHandler(log.LvlFilterHandler(lvl, log.StderrHandler))
		return nil
	},
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}

func options() (trashdb.Options, error) {
	var opts trashdb.Options
	if config != "" {
		var err error
		if opts, err = trashdb.LoadOptions(config); err != nil {
			return opts, err
		}
	}
	if datadir != "" {
		opts.Path = datadir
	}
	if engine != "" {
		opts.Engine = engine
	}
	if opts.Path == "" {
		return opts, fmt.Errorf("no data directory: pass --datadir or set path in --config")
	}
	opts.Logger = log.Root()
	return opts, nil
}

// withEnv opens the environment, runs fn and closes the environment,
// waiting until every database is finalized.
func withEnv(fn func(env *trashdb.Env) error) error {
	opts, err := options()
	if err != nil {
		return err
	}
	env, err := trashdb.Open(opts)
	if err != nil {
		return err
	}
	defer func() {
		env.Close()
		<-env.Done()
	}()
	return fn(env)
}
