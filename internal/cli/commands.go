// ABOUTME: tui, url and version subcommands
// ABOUTME: Interactive selection and access to the persisted server URL
package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aaxion/aaxion-discovery/internal/app"
	"github.com/aaxion/aaxion-discovery/internal/ui"
	"github.com/aaxion/aaxion-discovery/internal/version"
	"github.com/aaxion/aaxion-discovery/pkg/discovery"
)

func newTUICmd(g *globals) *cobra.Command {
	var noProbe bool
	cmd := &cobra.Command{
		Use:   "tui",
		Short: "Pick a server interactively",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := g.setup(true)
			if err != nil {
				return err
			}
			defer e.closer.Close()

			ctx := cmd.Context()
			a := g.newApp(e.cfg, e.log, app.Options{NoProbe: noProbe})

			rec, err := ui.Run(func() ([]discovery.ServiceRecord, error) {
				return a.Scan(ctx)
			})
			if err != nil {
				return err
			}
			if rec == nil {
				return nil
			}

			url, err := a.Select(ctx, *rec)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), url)
			return nil
		},
	}
	cmd.Flags().BoolVar(&noProbe, "no-probe", false, "skip reachability probing")
	return cmd
}

func newURLCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "url",
		Short: "Print the selected server URL",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := g.setup(false)
			if err != nil {
				return err
			}
			defer e.closer.Close()

			url, err := g.newApp(e.cfg, e.log, app.Options{NoProbe: true}).SavedURL()
			if err != nil {
				return err
			}
			if url == "" {
				return fmt.Errorf("no server selected yet; run aaxion-discover scan")
			}
			fmt.Fprintln(cmd.OutOrStdout(), url)
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.String())
		},
	}
}
