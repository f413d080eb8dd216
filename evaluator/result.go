// Copyright © 2018 The ELPS authors

package evaluator

import (
	"context"

	"github.com/luthersystems/fragmenteval/binder"
	"github.com/luthersystems/fragmenteval/compiler"
	"github.com/luthersystems/fragmenteval/target"
	"github.com/sirupsen/logrus"
)

// writeBack stores the values of the ref cells created for captured locals
// into the frame.  A local visible in the frame is written with SetLocal,
// anything else is a variable spilled into the coroutine continuation.
// Failures are logged because the fragment has already produced its result.
func (e *Evaluator) writeBack(ctx context.Context, log *logrus.Entry, ec *target.ExecutionContext, bindings []*binder.Binding) {
	var locals map[string]target.Value
	for _, b := range bindings {
		if b.Cell == nil || b.Source == "" {
			continue
		}
		if locals == nil {
			var err error
			locals, err = ec.Frame.Locals()
			if err != nil {
				log.WithError(err).Warn("cannot read locals to write back")
				return
			}
		}
		entry := log.WithField("variable", b.Source)
		var v target.Value
		switch res := ec.Process.GetField(ctx, ec.Thread, b.Cell, compiler.RefElement).(type) {
		case target.Returned:
			v = res.Value
		case target.Threw:
			entry.WithField("exception", res.Exception).Warn("cannot read ref cell")
			continue
		case target.VMFailure:
			entry.WithError(res).Warn("cannot read ref cell")
			continue
		}
		var err error
		if _, visible := locals[b.Source]; visible && !b.Spilled {
			err = ec.Frame.SetLocal(b.Source, v)
		} else {
			err = ec.Frame.SetSpilled(b.Source, v)
		}
		if err != nil {
			entry.WithError(err).Warn("cannot write back local variable")
			continue
		}
		entry.WithField("value", v).Debug("local variable written back")
	}
}
