// ABOUTME: Cobra command tree for aaxion-discover
// ABOUTME: Loads configuration and logging once for every subcommand
package cli

import (
	"io"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/aaxion/aaxion-discovery/internal/app"
	"github.com/aaxion/aaxion-discovery/internal/config"
	"github.com/aaxion/aaxion-discovery/internal/logging"
)

// AppFactory builds the application for a command
type AppFactory func(cfg *config.Config, logger logrus.FieldLogger, o app.Options) *app.App

type globals struct {
	cfgFile  string
	logLevel string
	newApp   AppFactory
}

// env is what a command gets after setup
type env struct {
	cfg    *config.Config
	log    *logrus.Logger
	closer io.Closer
}

// setup loads configuration and builds the logger. TUI commands log to
// the configured file so the terminal stays clean.
func (g *globals) setup(tui bool) (*env, error) {
	cfg, err := config.Load(g.cfgFile)
	if err != nil {
		return nil, err
	}
	if g.logLevel != "" {
		cfg.Log.Level = g.logLevel
	}

	logCfg := cfg.Log
	if tui {
		logCfg = logging.ForTUI(logCfg)
	}
	logger, closer, err := logging.New(logCfg)
	if err != nil {
		return nil, err
	}
	return &env{cfg: cfg, log: logger, closer: closer}, nil
}

// NewRootCmd builds the aaxion-discover command tree
func NewRootCmd() *cobra.Command {
	return newRootCmd(app.FromConfig)
}

func newRootCmd(newApp AppFactory) *cobra.Command {
	g := &globals{newApp: newApp}

	scan := newScanCmd(g)
	root := &cobra.Command{
		Use:   "aaxion-discover",
		Short: "Find Aaxion servers on the local network",
		Long: `aaxion-discover browses the local network for Aaxion servers over mDNS
and remembers the one to use.

Examples:
  aaxion-discover                 scan and select a server
  aaxion-discover scan --json     machine-readable scan results
  aaxion-discover tui             pick a server interactively
  aaxion-discover url             print the selected server URL`,
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE:         scan.RunE,
	}

	root.PersistentFlags().StringVar(&g.cfgFile, "config", "", "config file (default: ./aaxion.yaml)")
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	root.Flags().AddFlagSet(scan.Flags())

	root.AddCommand(scan)
	root.AddCommand(newTUICmd(g))
	root.AddCommand(newURLCmd(g))
	root.AddCommand(newVersionCmd())
	return root
}
