package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/r9s-ai/vidrelay/internal/platform"
	"github.com/r9s-ai/vidrelay/internal/relay"
	"github.com/r9s-ai/vidrelay/internal/resolver"
)

type fetchOptions struct {
	height   int
	platform string
	output   string
}

func newFetchCmd(g *globalOptions) *cobra.Command {
	opts := fetchOptions{}
	cmd := &cobra.Command{
		Use:   "fetch <url>",
		Short: "Stream a video through the relay into a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFetch(cmd, g, opts, args[0])
		},
	}
	fs := cmd.Flags()
	fs.IntVar(&opts.height, "height", 0, "target height, e.g. 720")
	fs.StringVar(&opts.platform, "platform", "", "platform tag (default: detect from url)")
	fs.StringVarP(&opts.output, "output", "o", "", "output file, directory or - for stdout (default: reported file name)")
	return cmd
}

func runFetch(cmd *cobra.Command, g *globalOptions, opts fetchOptions, rawURL string) error {
	rawURL = strings.TrimSpace(rawURL)
	if !resolver.ValidURL(rawURL) || opts.height <= 0 {
		return errors.New("a http(s) url and --height > 0 are required")
	}
	_, runner, err := g.runner(cmd)
	if err != nil {
		return err
	}

	var file *os.File
	var openErr error
	sink := relay.SinkFunc(func(name string) io.Writer {
		if opts.output == "-" {
			return cmd.OutOrStdout()
		}
		path := fetchTarget(opts.output, name)
		// #nosec G304 -- output path chosen by the operator.
		file, openErr = os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
		if openErr != nil {
			return errWriter{openErr}
		}
		return file
	})

	req := relay.Request{URL: rawURL, Height: opts.height, Platform: platform.Resolve(opts.platform, rawURL)}
	res, err := relay.New(runner, 1).Stream(cmd.Context(), req, sink)
	if file != nil {
		if cerr := file.Close(); err == nil {
			err = cerr
		}
	}
	if openErr != nil {
		return openErr
	}
	if err != nil {
		if res.Invocation != nil {
			if tail := strings.TrimSpace(res.Invocation.Stderr.String()); tail != "" {
				fmt.Fprintln(cmd.ErrOrStderr(), faintStyle.Render(tail))
			}
		}
		return err
	}
	if file != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), okStyle.Render(fmt.Sprintf("saved %s (%d bytes)", file.Name(), res.Bytes)))
	}
	return nil
}

// fetchTarget joins the reported name onto a directory output, or uses
// output verbatim when it names a file.
func fetchTarget(output, name string) string {
	output = strings.TrimSpace(output)
	if output == "" {
		return name
	}
	if st, err := os.Stat(output); err == nil && st.IsDir() {
		return filepath.Join(output, name)
	}
	return output
}

type errWriter struct{ err error }

func (w errWriter) Write([]byte) (int, error) { return 0, w.err }
