// Copyright © 2024 The ELPS authors

package cmd

import (
	"fmt"
	"os"

	"github.com/luthersystems/fragmenteval/dapserver"
	"github.com/spf13/cobra"
)

func newDAPCommand(c *cmdConfig) *cobra.Command {
	var (
		port  int
		stdio bool
	)
	cmd := &cobra.Command{
		Use:   "dap",
		Short: "Serve the debuggee over the Debug Adapter Protocol",
		Long: `Start a Debug Adapter Protocol server exposing the threads, frames and
variables of the debuggee and evaluating watch, hover and REPL expressions.

By default the server listens on TCP port 4711 and serves one client.  With
--stdio it speaks DAP over stdin and stdout, for editors launching the
adapter as a child process.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, snap, err := c.loadDebuggee()
			if err != nil {
				return err
			}
			eval, err := c.newEvaluator()
			if err != nil {
				return err
			}
			srv := dapserver.New(p, snap, eval, dapserver.WithLogger(c.log.WithField("component", "dap")))
			if stdio {
				return srv.ServeStdio(os.Stdin, os.Stdout)
			}
			return srv.ServeTCP(fmt.Sprintf("127.0.0.1:%d", port))
		},
	}
	cmd.Flags().IntVar(&port, "port", 4711, "TCP port to listen on")
	cmd.Flags().BoolVar(&stdio, "stdio", false, "Use stdin/stdout instead of TCP")
	return cmd
}
