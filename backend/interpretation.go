// Copyright © 2018 The ELPS authors

package backend

import (
	"context"

	"github.com/luthersystems/fragmenteval/compiler"
	"github.com/luthersystems/fragmenteval/interp"
	"github.com/luthersystems/fragmenteval/status"
	"github.com/luthersystems/fragmenteval/target"
)

// Interpretation runs the compiled units on an interp.Machine in the
// debugger.  Invocations of debuggee methods are performed by the debuggee.
type Interpretation struct {
	StepLimit int
}

var _ Strategy = (*Interpretation)(nil)

func (*Interpretation) Name() status.Backend {
	return status.BackendInterpretation
}

// Run implements Strategy.  Defects of the machine are returned as the raw
// *interp.InternalError.
func (s *Interpretation) Run(ctx context.Context, ec *target.ExecutionContext, data *compiler.CompiledData, args []target.Value) (target.Value, error) {
	m := interp.New(&processEnv{ec: ec}, interp.WithUnits(data.Units...), interp.WithStepLimit(s.StepLimit))
	out, err := m.Call(ctx, data.MainClass, data.MainMethod, args)
	if err != nil {
		return nil, err
	}
	switch out := out.(type) {
	case interp.Value:
		if out.Value == nil {
			return target.Void{}, nil
		}
		return out.Value, nil
	case interp.Thrown:
		if out.Kind == interp.BrokenCode {
			return nil, out.Err
		}
		return nil, thrown(ctx, ec, out.Exception)
	case interp.Abnormal:
		return nil, status.Errorf(status.Eval4JAbnormalTermination, "evaluation terminated abnormally: %s", out.Reason)
	default:
		return nil, status.Errorf(status.Eval4JUnknownException, "unexpected outcome %T", out)
	}
}

// processEnv performs the operations of the machine in the debuggee on the
// suspended thread of ec.
type processEnv struct {
	ec *target.ExecutionContext
}

var _ interp.Env = (*processEnv)(nil)

func (e *processEnv) InvokeStatic(ctx context.Context, class, method string, args []target.Value) target.Result {
	return e.ec.Process.InvokeStatic(ctx, e.ec.Thread, class, method, args)
}

func (e *processEnv) InvokeVirtual(ctx context.Context, recv target.Value, method string, args []target.Value) target.Result {
	return e.ec.Process.InvokeVirtual(ctx, e.ec.Thread, recv, method, args)
}

func (e *processEnv) NewInstance(ctx context.Context, class string, args []target.Value) target.Result {
	return e.ec.Process.NewInstance(ctx, e.ec.Thread, class, args)
}

func (e *processEnv) GetField(ctx context.Context, obj target.Value, field string) target.Result {
	return e.ec.Process.GetField(ctx, e.ec.Thread, obj, field)
}

func (e *processEnv) SetField(ctx context.Context, obj target.Value, field string, v target.Value) target.Result {
	return e.ec.Process.SetField(ctx, e.ec.Thread, obj, field, v)
}

// Box is the identity.  Interpreted values stay in their primitive form.
func (e *processEnv) Box(ctx context.Context, v target.Value) target.Result {
	return target.Returned{Value: v}
}
