// Copyright © 2024 The ELPS authors

package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/luthersystems/fragmenteval/bytecode"
	"github.com/luthersystems/fragmenteval/fragment"
	"github.com/spf13/cobra"
)

func newCompileCommand(c *cmdConfig) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "compile [flags] FRAGMENT...",
		Short: "Print the code a fragment compiles to",
		Long: `Analyze and compile a code fragment against the scope of the selected
frame, then print its entry point, its parameters and a listing of each
compiled class.  Nothing is executed in the debuggee.`,
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
			p, _, err := c.loadDebuggee()
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
			t, _ := p.Thread(thread)
			f, _ := t.Frame(depth)
			frag := fragment.New(text, f.Scope())
			if file != "" {
				frag.File = file
			}
			data, err := eval.Compile(cmd.Context(), frag)
			if err != nil {
				c.renderEvalError(cmd.ErrOrStderr(), frag, err)
				return errFailed
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "entry %s.%s(%s): %s\n", data.MainClass, data.MainMethod, strings.Join(data.Signature, ", "), data.ResultType)
			for _, param := range data.Parameters {
				fmt.Fprintf(w, "  param %s\n", param)
			}
			if len(data.CrossingBoundary) > 0 {
				fmt.Fprintf(w, "  crossing %s\n", strings.Join(data.CrossingBoundary, ", "))
			}
			for _, u := range data.Units {
				if err := bytecode.Disassemble(w, u); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "Read the fragment from a file")
	return cmd
}
