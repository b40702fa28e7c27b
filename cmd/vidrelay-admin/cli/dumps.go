package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/r9s-ai/vidrelay/internal/diagdump"
)

func newDumpsCmd(g *globalOptions) *cobra.Command {
	var dir string
	var limit int
	var failedOnly bool
	cmd := &cobra.Command{
		Use:   "dumps",
		Short: "List diagnostics dumps, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(dir) == "" {
				cfg, err := g.load(cmd)
				if err != nil {
					return err
				}
				dir = cfg.DiagDump.Dir
			}
			list, err := diagdump.ListSummaries(diagdump.ListOptions{Dir: dir, Limit: limit})
			if err != nil {
				return err
			}
			rows := make([][]string, 0, len(list))
			for _, d := range list {
				if failedOnly && d.Status < 400 && (d.ExitCode == nil || *d.ExitCode == 0) {
					continue
				}
				rows = append(rows, d.Row())
			}
			out := cmd.OutOrStdout()
			if len(rows) == 0 {
				_, err := fmt.Fprintln(out, faintStyle.Render("no dumps in "+dir))
				return err
			}
			_, err = fmt.Fprintln(out, renderTable(
				[]string{"TIME", "REQUEST ID", "PATH", "STATUS", "EXIT", "HEIGHT", "URL"}, rows))
			return err
		},
	}
	fs := cmd.Flags()
	fs.StringVar(&dir, "dir", "", "dump dir (default: diag_dump.dir from config)")
	fs.IntVar(&limit, "limit", 50, "max files to list")
	fs.BoolVar(&failedOnly, "failed", false, "only list failed requests")
	return cmd
}
