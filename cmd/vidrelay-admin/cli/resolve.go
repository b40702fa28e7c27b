package cli

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/r9s-ai/vidrelay/internal/formats"
	"github.com/r9s-ai/vidrelay/internal/resolver"
)

func newResolveCmd(g *globalOptions) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "resolve <url>",
		Short: "Run yt-dlp in metadata mode and print the curated formats",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, runner, err := g.runner(cmd)
			if err != nil {
				return err
			}
			r := &resolver.Resolver{Runner: runner}
			res, _, err := r.Resolve(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(res)
			}
			_, err = fmt.Fprintln(out, renderResult(res))
			return err
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the response body as JSON")
	return cmd
}

func renderResult(res formats.Result) string {
	head := titleStyle.Render(res.Title) + "\n" +
		faintStyle.Render("platform="+res.Platform.String()+" url="+res.OriginalURL)
	if len(res.Formats) == 0 {
		return head + "\n" + errStyle.Render("no downloadable formats")
	}
	rows := make([][]string, 0, len(res.Formats))
	for _, f := range res.Formats {
		rows = append(rows, []string{strconv.Itoa(f.Height), f.Label, f.Size, f.Ext})
	}
	return head + "\n" + renderTable([]string{"HEIGHT", "LABEL", "SIZE", "EXT"}, rows)
}
