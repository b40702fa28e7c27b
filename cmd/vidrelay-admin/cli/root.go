package cli

import (
	"context"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/r9s-ai/vidrelay/internal/config"
	"github.com/r9s-ai/vidrelay/internal/ytdlp"
)

const defaultConfigPath = "vidrelay.yaml"

func Run(args []string) error {
	root := newRootCmd()
	root.SetArgs(args)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	return root.ExecuteContext(ctx)
}

// globalOptions are shared by every subcommand.
type globalOptions struct {
	cfgPath string
	binDir  string
	binPath string
}

func (o *globalOptions) load(cmd *cobra.Command) (*config.Config, error) {
	missingOK := !cmd.Flags().Changed("config")
	cfg, err := config.LoadOrDefault(strings.TrimSpace(o.cfgPath), missingOK)
	if err != nil {
		return nil, err
	}
	if v := strings.TrimSpace(o.binDir); v != "" {
		cfg.YtDlp.BinDir = v
		cfg.YtDlp.Path = ""
	}
	if v := strings.TrimSpace(o.binPath); v != "" {
		cfg.YtDlp.Path = v
	}
	return cfg, nil
}

func (o *globalOptions) runner(cmd *cobra.Command) (*config.Config, *ytdlp.Runner, error) {
	cfg, err := o.load(cmd)
	if err != nil {
		return nil, nil, err
	}
	return cfg, &ytdlp.Runner{
		Locator:         ytdlp.NewLocator(cfg.YtDlp.BinDir, cfg.YtDlp.Path),
		MetadataTimeout: cfg.MetadataTimeout(),
		StreamTimeout:   cfg.StreamTimeout(),
	}, nil
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}
	cmd := &cobra.Command{
		Use:           "vidrelay-admin",
		Short:         "vidrelay admin CLI",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	fs := cmd.PersistentFlags()
	fs.StringVarP(&opts.cfgPath, "config", "c", defaultConfigPath, "config yaml path")
	fs.StringVar(&opts.binDir, "bin-dir", "", "directory holding yt-dlp (overrides config)")
	fs.StringVar(&opts.binPath, "bin", "", "full yt-dlp path (overrides config)")

	cmd.AddCommand(
		newResolveCmd(opts),
		newFetchCmd(opts),
		newCheckCmd(opts),
		newDumpsCmd(opts),
	)
	return cmd
}
