// ABOUTME: scan subcommand
// ABOUTME: Runs one discovery scan and prints the servers as a table or JSON
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/aaxion/aaxion-discovery/internal/app"
	"github.com/aaxion/aaxion-discovery/pkg/discovery"
)

type scanOptions struct {
	json     bool
	duration time.Duration
	noProbe  bool
	noSave   bool
}

// scanOutput is the --json document
type scanOutput struct {
	Servers   []discovery.ServiceRecord `json:"servers"`
	Selected  *discovery.ServiceRecord  `json:"selected"`
	URL       string                    `json:"url,omitempty"`
	ElapsedMs int64                     `json:"elapsed_ms"`
}

func newScanCmd(g *globals) *cobra.Command {
	o := &scanOptions{}
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan once and select a server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := g.setup(false)
			if err != nil {
				return err
			}
			defer e.closer.Close()

			if cmd.Flags().Changed("duration") {
				if o.duration <= 0 {
					return fmt.Errorf("--duration must be positive")
				}
				e.cfg.Discovery.Duration = o.duration
			}

			a := g.newApp(e.cfg, e.log, app.Options{NoProbe: o.noProbe, NoSave: o.noSave})
			res, err := a.Discover(cmd.Context())
			if err != nil {
				return err
			}

			if o.json {
				return printJSON(cmd.OutOrStdout(), res)
			}
			printTable(cmd.OutOrStdout(), res)
			return nil
		},
	}

	cmd.Flags().BoolVar(&o.json, "json", false, "print results as JSON")
	cmd.Flags().DurationVar(&o.duration, "duration", discovery.DefaultScanDuration, "how long to listen")
	cmd.Flags().BoolVar(&o.noProbe, "no-probe", false, "skip reachability probing")
	cmd.Flags().BoolVar(&o.noSave, "no-save", false, "do not persist the selection")
	return cmd
}

func printJSON(w io.Writer, res *app.Result) error {
	out := scanOutput{
		Servers:   res.Servers,
		Selected:  res.Selected,
		URL:       res.URL,
		ElapsedMs: res.Elapsed.Milliseconds(),
	}
	if out.Servers == nil {
		out.Servers = []discovery.ServiceRecord{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

var headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
var cellStyle = lipgloss.NewStyle().Padding(0, 1)

func printTable(w io.Writer, res *app.Result) {
	if len(res.Servers) == 0 {
		fmt.Fprintln(w, "No servers found")
		return
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("", "HOST", "INSTANCE", "ADDRESSES", "PORT").
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
	for _, rec := range res.Servers {
		mark := ""
		if res.Selected != nil && rec.Fullname == res.Selected.Fullname {
			mark = "*"
		}
		t.Row(mark, rec.Hostname, rec.Fullname, strings.Join(rec.Addresses, ", "), strconv.Itoa(int(rec.Port)))
	}
	fmt.Fprintln(w, t.Render())

	if res.URL != "" {
		fmt.Fprintf(w, "Selected: %s\n", res.URL)
	}
}
