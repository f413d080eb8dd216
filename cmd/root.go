// Copyright © 2018 The ELPS authors

// Package cmd implements the fragmenteval command line.
package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// envPrefix prefixes the environment variables overriding configuration,
// for example FRAGMENTEVAL_SNAPSHOT.
const envPrefix = "FRAGMENTEVAL"

// errFailed is returned by commands that already reported their failure.
var errFailed = errors.New("evaluation failed")

// NewRootCommand returns the fragmenteval command with all subcommands.
func NewRootCommand(opts ...Option) *cobra.Command {
	c := newCmdConfig(opts...)
	root := &cobra.Command{
		Use:   "fragmenteval",
		Short: "Evaluate code fragments in a suspended debuggee",
		Long: `fragmenteval evaluates code fragments in the frames of a suspended
debuggee, the way a debugger evaluates watch expressions.  The debuggee is
described by a snapshot file listing its classes, heap objects and threads.

Getting started:
  fragmenteval eval --snapshot app.yaml 'n * 2'      Evaluate a fragment
  fragmenteval compile --snapshot app.yaml 'n += 1'  Show compiled code
  fragmenteval repl --snapshot app.yaml              Start an interactive REPL
  fragmenteval dap --snapshot app.yaml --port 4711   Serve DAP clients

Settings are read from flags, FRAGMENTEVAL_* environment variables and the
config file $HOME/.fragmenteval.yaml, in that order of precedence.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.initConfig()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&c.cfgFile, "config", "", "config file (default is $HOME/.fragmenteval.yaml)")
	flags.String("color", "auto", `Control colored output: "auto", "always", or "never".`)
	flags.String("log-level", "warning", "Log level (trace, debug, info, warning, error)")
	flags.String("log-format", "text", `Log format: "text" or "json".`)
	flags.String("snapshot", "", "Snapshot file describing the debuggee")
	flags.Int("thread", 0, "Thread to evaluate in (default: first suspended thread)")
	flags.Int("frame", 0, "Frame depth to evaluate in, 0 is the innermost frame")
	flags.Bool("injection", true, "Run compiled fragments by defining classes in the debuggee when possible")
	flags.Int("step-limit", 0, "Instruction limit of interpreted fragments (0 is unlimited)")
	flags.Int("cache-size", 0, "Number of compiled fragments to keep (0 keeps all)")
	flags.Bool("census", false, "Record evaluation statistics with OpenCensus")
	for _, name := range []string{"color", "log-level", "log-format", "snapshot", "thread", "frame", "injection", "step-limit", "cache-size", "census"} {
		_ = c.v.BindPFlag(name, flags.Lookup(name))
	}

	root.AddCommand(
		newEvalCommand(c),
		newCompileCommand(c),
		newReplCommand(c),
		newDAPCommand(c),
	)
	return root
}

// Execute runs the fragmenteval command.  This is called by main.main().
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		if !errors.Is(err, errFailed) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(1)
	}
}

// initConfig reads in config file and ENV variables if set.
func (c *cmdConfig) initConfig() error {
	if c.cfgFile != "" {
		c.v.SetConfigFile(c.cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			c.v.AddConfigPath(home)
		}
		c.v.SetConfigName(".fragmenteval")
		c.v.SetConfigType("yaml")
	}
	c.v.SetEnvPrefix(envPrefix)
	c.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	c.v.AutomaticEnv()

	if err := c.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if c.cfgFile != "" || !errors.As(err, &notFound) {
			return fmt.Errorf("config: %w", err)
		}
	}
	if err := c.setupLogging(); err != nil {
		return err
	}
	if used := c.v.ConfigFileUsed(); used != "" {
		c.log.WithField("file", used).Debug("using config file")
	}
	return nil
}
