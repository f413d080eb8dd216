// Copyright © 2018 The ELPS authors

package cmd

import (
	"io"

	"github.com/luthersystems/fragmenteval/repl"
	"github.com/spf13/cobra"
)

func newReplCommand(c *cmdConfig) *cobra.Command {
	var (
		prompt  string
		history string
		noHist  bool
	)
	cmd := &cobra.Command{
		Use:   "repl",
		Short: "Evaluate fragments interactively",
		Long: `Start an interactive session evaluating fragments in the frames of the
debuggee.  Type :help for the session commands.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			mode, err := c.colorMode()
			if err != nil {
				return err
			}
			p, snap, err := c.loadDebuggee()
			if err != nil {
				return err
			}
			eval, err := c.newEvaluator()
			if err != nil {
				return err
			}
			s := repl.NewSession(p, snap, eval)
			if c.v.IsSet("thread") || c.v.IsSet("frame") {
				thread, depth, err := c.selectedFrame(p)
				if err != nil {
					return err
				}
				if err := s.Select(thread, depth); err != nil {
					return err
				}
			}
			opts := []repl.Option{repl.WithColor(mode), repl.WithStdout(cmd.OutOrStdout())}
			if in, ok := cmd.InOrStdin().(io.ReadCloser); ok {
				opts = append(opts, repl.WithStdin(in))
			} else {
				opts = append(opts, repl.WithStdin(io.NopCloser(cmd.InOrStdin())))
			}
			switch {
			case noHist:
				opts = append(opts, repl.WithHistoryFile(""))
			case history != "":
				opts = append(opts, repl.WithHistoryFile(history))
			}
			return repl.Run(cmd.Context(), s, prompt, opts...)
		},
	}
	cmd.Flags().StringVar(&prompt, "prompt", "eval> ", "Prompt shown before each fragment")
	cmd.Flags().StringVar(&history, "history", "", "History file (default is $HOME/.fragmenteval_history)")
	cmd.Flags().BoolVar(&noHist, "no-history", false, "Do not keep a history file")
	return cmd
}
