// Copyright © 2024 The ELPS authors

package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/luthersystems/fragmenteval/evaluator"
	"github.com/luthersystems/fragmenteval/fragment"
	"github.com/luthersystems/fragmenteval/target"
	"github.com/spf13/cobra"
)

func newEvalCommand(c *cmdConfig) *cobra.Command {
	var (
		file      string
		rendering bool
		recompile bool
	)
	cmd := &cobra.Command{
		Use:   "eval [flags] FRAGMENT...",
		Short: "Evaluate a code fragment in a frame of the debuggee",
		Long: `Evaluate a code fragment in the selected frame of the debuggee and print
its value.  Arguments are joined with spaces to form the fragment.  Errors are
reported as diagnostics and cause a non-zero exit status.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args, " ")
			if file != "" {
				b, err := os.ReadFile(file)
				if err != nil {
					return err
				}
				text = string(b)
			}
			if strings.TrimSpace(text) == "" {
				return fmt.Errorf("no fragment given")
			}
			if _, err := c.colorMode(); err != nil {
				return err
			}
			p, snap, err := c.loadDebuggee()
			if err != nil {
				return err
			}
			thread, depth, err := c.selectedFrame(p)
			if err != nil {
				return err
			}
			eval, err := c.newEvaluator()
			if err != nil {
				return err
			}
			ec, err := snap.ExecutionContext(p, thread, depth)
			if err != nil {
				return err
			}
			t, _ := p.Thread(thread)
			f, _ := t.Frame(depth)
			frag := fragment.New(text, f.Scope())
			if file != "" {
				frag.File = file
			}
			frag.Rendering = rendering
			var opts []evaluator.CallOption
			if recompile {
				opts = append(opts, evaluator.Recompile())
			}
			v, err := eval.Evaluate(cmd.Context(), frag, f.Position(), ec, opts...)
			if err != nil {
				c.renderEvalError(cmd.ErrOrStderr(), frag, err)
				return errFailed
			}
			if out := p.Stdout(); out != "" {
				fmt.Fprint(cmd.OutOrStdout(), out)
			}
			if s, ok := v.(target.String); ok && rendering {
				fmt.Fprintln(cmd.OutOrStdout(), string(s))
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), p.Render(v))
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "Read the fragment from a file")
	cmd.Flags().BoolVar(&rendering, "render", false, "Print the toString() rendering of the value")
	cmd.Flags().BoolVar(&recompile, "recompile", false, "Ignore cached compilations")
	return cmd
}
