// Command httpcored is an incidental CLI wrapper around httpcore, useful for
// smoke-testing a handler registry from the shell. It is not part of the
// embeddable core itself.
package main

import (
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kynetiq/httpcore"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "httpcored",
		Short: "Run an httpcore server serving a static file or a static blob",
	}
	root.AddCommand(newServeCmd())
	return root
}

func newServeCmd() *cobra.Command {
	var (
		listenURL string
		staticDir string
		indexBody string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Open a server and block until SIGINT/SIGTERM",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := url.Parse(listenURL); err != nil {
				return fmt.Errorf("invalid --listen URL: %w", err)
			}

			srv, err := httpcore.Open(listenURL)
			if err != nil {
				return fmt.Errorf("open: %w", err)
			}
			defer httpcore.Close(srv)

			// "/" normalizes to the empty path, which conflicts with every
			// other registration under the registry's prefix rule, so the
			// index and a file handler can never coexist; --file takes
			// precedence when both are given.
			switch {
			case staticDir != "":
				if _, err := srv.AddFile("", "", "/files", staticDir); err != nil {
					return fmt.Errorf("register file handler: %w", err)
				}
			case indexBody != "":
				if _, err := srv.AddStatic("", "text/plain; charset=utf-8", "/", []byte(indexBody)); err != nil {
					return fmt.Errorf("register index handler: %w", err)
				}
			}

			if err := srv.Start(); err != nil {
				return fmt.Errorf("start: %w", err)
			}
			defer srv.Stop()

			fmt.Printf("httpcored: serving %s\n", listenURL)

			sig := make(chan os.Signal, 1)
			signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
			<-sig
			return nil
		},
	}

	cmd.Flags().StringVar(&listenURL, "listen", "http://127.0.0.1:8080", "URL to open (scheme determines TLS requirement)")
	cmd.Flags().StringVar(&staticDir, "file", "", "local file path to serve at /files")
	cmd.Flags().StringVar(&indexBody, "index", "hello from httpcored", "body to serve at /")

	return cmd
}
