// Copyright © 2018 The ELPS authors

package backend

import (
	"context"
	"fmt"

	"github.com/luthersystems/fragmenteval/compiler"
	"github.com/luthersystems/fragmenteval/status"
	"github.com/luthersystems/fragmenteval/target"
)

// Box classes of primitive results and the field holding the value.
var boxClasses = map[string]bool{
	"java.lang.Integer": true,
	"java.lang.Double":  true,
	"java.lang.Boolean": true,
}

const boxValueField = "value"

// verifyError is thrown by the debuggee for generated code it rejects.
const verifyError = "java.lang.VerifyError"

// Injection defines the compiled classes in the debuggee and invokes the
// generated method there.
type Injection struct{}

var _ Strategy = (*Injection)(nil)

func (*Injection) Name() status.Backend {
	return status.BackendInjection
}

// Run implements Strategy.  Failures of the debuggee to define or invoke the
// classes wrap ErrInjectionFailed.
func (*Injection) Run(ctx context.Context, ec *target.ExecutionContext, data *compiler.CompiledData, args []target.Value) (target.Value, error) {
	switch res := ec.Process.DefineClasses(ctx, ec.Thread, data.ClassFiles()).(type) {
	case target.VMFailure:
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: cannot define %s: %s", ErrInjectionFailed, data.MainClass, res.Reason)
	case target.Threw:
		return nil, fmt.Errorf("%w: defining %s threw %s", ErrInjectionFailed, data.MainClass, describe(ctx, ec, res.Exception))
	}
	switch res := ec.Process.InvokeStatic(ctx, ec.Thread, data.MainClass, data.MainMethod, args).(type) {
	case target.Returned:
		return unbox(ctx, ec, res.Value)
	case target.Threw:
		if obj, ok := res.Exception.(target.Object); ok && obj.Class == verifyError {
			return nil, fmt.Errorf("%w: %s", ErrInjectionFailed, describe(ctx, ec, obj))
		}
		return nil, thrown(ctx, ec, res.Exception)
	case target.VMFailure:
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s.%s: %s", ErrInjectionFailed, data.MainClass, data.MainMethod, res.Reason)
	default:
		return nil, fmt.Errorf("%w: unexpected result %T", ErrInjectionFailed, res)
	}
}

// unbox returns the primitive held by a box object.  Other values are
// returned unchanged.
func unbox(ctx context.Context, ec *target.ExecutionContext, v target.Value) (target.Value, error) {
	obj, ok := v.(target.Object)
	if !ok || !boxClasses[obj.Class] {
		if v == nil {
			return target.Void{}, nil
		}
		return v, nil
	}
	switch res := ec.Process.GetField(ctx, ec.Thread, obj, boxValueField).(type) {
	case target.Returned:
		return res.Value, nil
	case target.VMFailure:
		return nil, fmt.Errorf("%w: cannot unbox %s: %s", ErrInjectionFailed, obj.Class, res.Reason)
	case target.Threw:
		return nil, thrown(ctx, ec, res.Exception)
	}
	return v, nil
}
