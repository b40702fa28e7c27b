package cli

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/r9s-ai/vidrelay/internal/config"
	"github.com/r9s-ai/vidrelay/internal/ytdlp"
)

func newCheckCmd(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate config and report the yt-dlp binary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.load(cmd)
			if err != nil {
				return fmt.Errorf("config: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, okStyle.Render("ok: config"))
			fmt.Fprintln(out, renderTable([]string{"SETTING", "VALUE"}, configRows(cfg)))

			loc := ytdlp.NewLocator(cfg.YtDlp.BinDir, cfg.YtDlp.Path)
			ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
			defer cancel()
			v, err := loc.Version(ctx)
			if err != nil {
				fmt.Fprintln(out, errStyle.Render("fail: yt-dlp at "+loc.Configured()))
				return err
			}
			fmt.Fprintln(out, okStyle.Render(fmt.Sprintf("ok: yt-dlp %s (%s)", v, loc.Configured())))
			return nil
		},
	}
}

func configRows(cfg *config.Config) [][]string {
	return [][]string{
		{"server.listen", cfg.Server.Listen},
		{"ytdlp.bin_dir", cfg.YtDlp.BinDir},
		{"ytdlp.path", cfg.YtDlp.Path},
		{"ytdlp.metadata_timeout", cfg.MetadataTimeout().String()},
		{"ytdlp.stream_timeout", cfg.StreamTimeout().String()},
		{"ytdlp.max_concurrent_streams", strconv.Itoa(cfg.YtDlp.MaxConcurrentStreams)},
		{"ytdlp.watch", strconv.FormatBool(cfg.WatchBinDir())},
		{"rate_limit.client_key", cfg.RateLimit.ClientKey},
		{"diag_dump.enabled", strconv.FormatBool(cfg.DiagDump.Enabled)},
		{"diag_dump.dir", cfg.DiagDump.Dir},
		{"logging.access_log", strconv.FormatBool(cfg.AccessLogEnabled())},
	}
}
