package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

func newTriggerCmd(g *globalFlags) *cobra.Command {
	var (
		addr    string
		wait    bool
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "trigger",
		Short: "Ask a running daemon to correct the focused field",
		Long: `trigger sends POST /trigger to a running typofix daemon. Without --wait
the daemon answers as soon as the cycle has started; with --wait the command
prints the outcome once the cycle has finished.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if addr == "" {
				cfg, err := g.load()
				if err != nil {
					return err
				}
				addr = cfg.Server.ListenAddr
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			return trigger(ctx, http.DefaultClient, addr, wait, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "daemon address (defaults to server.listen_addr)")
	cmd.Flags().BoolVar(&wait, "wait", false, "wait for the cycle and print its outcome")
	cmd.Flags().DurationVar(&timeout, "timeout", 40*time.Second, "how long to wait for the daemon")
	return cmd
}

// trigger posts to the daemon at addr and copies the response body to out. A
// busy daemon is reported as an error.
func trigger(ctx context.Context, client *http.Client, addr string, wait bool, out io.Writer) error {
	url := addr
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		url = "http://" + url
	}
	url += "/trigger"
	if wait {
		url += "?wait=1"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return fmt.Errorf("trigger: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("trigger: %w", err)
	}
	defer resp.Body.Close()

	if _, err := io.Copy(out, resp.Body); err != nil {
		return fmt.Errorf("trigger: read response: %w", err)
	}
	switch resp.StatusCode {
	case http.StatusOK, http.StatusAccepted:
		return nil
	case http.StatusConflict:
		return fmt.Errorf("trigger: daemon is busy with another correction")
	default:
		return fmt.Errorf("trigger: unexpected status %s", resp.Status)
	}
}
