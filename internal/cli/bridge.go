// ABOUTME: Cobra command for aaxion-bridge
// ABOUTME: Runs the local WebSocket discovery bridge until interrupted
package cli

import (
	"github.com/spf13/cobra"

	"github.com/aaxion/aaxion-discovery/internal/app"
	"github.com/aaxion/aaxion-discovery/internal/server"
)

// NewBridgeCmd builds the aaxion-bridge command
func NewBridgeCmd() *cobra.Command {
	return newBridgeCmd(app.FromConfig)
}

func newBridgeCmd(newApp AppFactory) *cobra.Command {
	g := &globals{newApp: newApp}
	var listen string
	var useTUI bool

	cmd := &cobra.Command{
		Use:          "aaxion-bridge",
		Short:        "Serve discovery scans to local UI shells over WebSocket",
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := g.setup(useTUI)
			if err != nil {
				return err
			}
			defer e.closer.Close()

			if cmd.Flags().Changed("listen") {
				e.cfg.Bridge.Listen = listen
			}

			a := newApp(e.cfg, e.log, app.Options{NoProbe: true, NoSave: true})
			srv := server.New(server.Config{Listen: e.cfg.Bridge.Listen, UseTUI: useTUI}, a, e.log)

			go func() {
				<-cmd.Context().Done()
				e.log.Info("Received shutdown signal, shutting down gracefully...")
				srv.Stop()
			}()

			return srv.Start()
		},
	}

	cmd.PersistentFlags().StringVar(&g.cfgFile, "config", "", "config file (default: ./aaxion.yaml)")
	cmd.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	cmd.Flags().StringVar(&listen, "listen", "127.0.0.1:8931", "address to serve on")
	cmd.Flags().BoolVar(&useTUI, "tui", false, "show a live status display")
	return cmd
}
