// Copyright © 2024 The ELPS authors

package cmd

import (
	"fmt"

	"github.com/luthersystems/fragmenteval/compiler"
	"github.com/luthersystems/fragmenteval/evaluator"
	"github.com/luthersystems/fragmenteval/status"
	"github.com/luthersystems/fragmenteval/target/sim"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// Option configures the command returned by NewRootCommand.
type Option func(*cmdConfig)

type cmdConfig struct {
	v        *viper.Viper
	cfgFile  string
	logger   *logrus.Logger
	log      *logrus.Entry
	evalOpts []evaluator.Option
}

func newCmdConfig(opts ...Option) *cmdConfig {
	c := &cmdConfig{v: viper.New()}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = logrus.New()
	}
	c.log = logrus.NewEntry(c.logger)
	return c
}

// WithLogger sets the logger commands log to.  Its level and format are
// overridden by the log settings.
func WithLogger(logger *logrus.Logger) Option {
	return func(c *cmdConfig) { c.logger = logger }
}

// WithEvaluatorOptions adds options to the evaluators commands create.
// They are applied after the options derived from the settings.
func WithEvaluatorOptions(opts ...evaluator.Option) Option {
	return func(c *cmdConfig) { c.evalOpts = append(c.evalOpts, opts...) }
}

func (c *cmdConfig) setupLogging() error {
	level, err := logrus.ParseLevel(c.v.GetString("log-level"))
	if err != nil {
		return err
	}
	c.logger.SetLevel(level)
	switch format := c.v.GetString("log-format"); format {
	case "", "text":
		c.logger.SetFormatter(&logrus.TextFormatter{})
	case "json":
		c.logger.SetFormatter(&logrus.JSONFormatter{})
	default:
		return fmt.Errorf("invalid log format %q", format)
	}
	return nil
}

// newEvaluator returns an evaluator configured from the settings.
func (c *cmdConfig) newEvaluator() (*evaluator.Evaluator, error) {
	reporters := status.Reporters{&status.LogReporter{Log: c.log}, status.TraceReporter{}}
	if c.v.GetBool("census") {
		census, err := status.NewCensusReporter()
		if err != nil {
			return nil, err
		}
		reporters = append(reporters, census)
	}
	opts := []evaluator.Option{
		evaluator.WithLogger(c.log),
		evaluator.WithReporter(reporters),
		evaluator.WithInjection(c.v.GetBool("injection")),
		evaluator.WithStepLimit(c.v.GetInt("step-limit")),
	}
	if size := c.v.GetInt("cache-size"); size > 0 {
		cache, err := compiler.NewLRUCache(size)
		if err != nil {
			return nil, err
		}
		opts = append(opts, evaluator.WithCache(cache))
	}
	return evaluator.New(append(opts, c.evalOpts...)...), nil
}

// loadDebuggee builds the debuggee described by the snapshot setting.
func (c *cmdConfig) loadDebuggee() (*sim.Process, *sim.Snapshot, error) {
	path := c.v.GetString("snapshot")
	if path == "" {
		return nil, nil, fmt.Errorf("no snapshot given (use --snapshot or %s_SNAPSHOT)", envPrefix)
	}
	return sim.LoadFile(path, sim.WithLogger(c.log.WithField("snapshot", path)), sim.WithStepLimit(c.v.GetInt("step-limit")))
}

// selectedFrame returns the thread and frame depth evaluations run in.
func (c *cmdConfig) selectedFrame(p *sim.Process) (thread int, depth int, err error) {
	thread, depth = c.v.GetInt("thread"), c.v.GetInt("frame")
	if thread == 0 {
		for _, t := range p.Threads() {
			if t.Suspended() {
				thread = t.ID()
				break
			}
		}
	}
	if thread == 0 {
		return 0, 0, fmt.Errorf("no suspended thread in %s", p.Name())
	}
	t, ok := p.Thread(thread)
	if !ok {
		return 0, 0, fmt.Errorf("no thread %d", thread)
	}
	if _, ok := t.Frame(depth); !ok {
		return 0, 0, fmt.Errorf("thread %d has no frame %d", thread, depth)
	}
	return thread, depth, nil
}
