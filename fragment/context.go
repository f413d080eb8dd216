// Copyright © 2018 The ELPS authors

package fragment

// Context is the lexical scope of the program at a breakpoint, as declared
// by the source rather than as observed in the running process.
type Context struct {
	// Language of the enclosing file.
	Language string `yaml:"language"`
	// Locals visible at the breakpoint.
	Locals []Local `yaml:"locals"`
	// This describes the receiver of the enclosing member, if any.
	This *Receiver `yaml:"this"`
	// Accessor names the property whose accessor encloses the breakpoint.
	// Inside an accessor the identifier `field` denotes its backing field.
	Accessor string `yaml:"accessor"`
	// Functions are top-level and static functions callable by name.
	Functions []Function `yaml:"functions"`
	// LocalFunctions are functions declared inside the enclosing function.
	LocalFunctions []LocalFunction `yaml:"localFunctions"`
	// Classes maps simple class names to qualified names.
	Classes map[string]string `yaml:"classes"`
	// CoroutineScope is set when the enclosing function is suspending.
	CoroutineScope bool `yaml:"coroutineScope"`
}

// Local is a local variable visible in the scope.
type Local struct {
	Name    string `yaml:"name"`
	Type    string `yaml:"type"`
	Mutable bool   `yaml:"mutable"`
	// Depth counts the lexical scopes between the declaration and the
	// breakpoint.  Locals with Depth > 0 belong to an enclosing function and
	// are only reachable when captured.
	Depth int `yaml:"depth"`
}

// Receiver describes the `this` object of a member.
type Receiver struct {
	Type       string     `yaml:"type"`
	Properties []Property `yaml:"properties"`
}

// Property is a property of the receiver type.
type Property struct {
	Name    string `yaml:"name"`
	Type    string `yaml:"type"`
	Mutable bool   `yaml:"mutable"`
}

// Function is a top-level or static function.
type Function struct {
	Name   string   `yaml:"name"`
	Owner  string   `yaml:"owner"`
	Params []string `yaml:"params"`
	Result string   `yaml:"result"`
	// Suspend functions may only be called with a coroutine scope.
	Suspend bool `yaml:"suspend"`
	// Inline functions are compiled into the fragment.  ParamNames and Body
	// give the source of the function body, an expression.
	Inline     bool     `yaml:"inline"`
	ParamNames []string `yaml:"paramNames"`
	Body       string   `yaml:"body"`
	BodyFile   string   `yaml:"bodyFile"`
	// Markers lists the diagnostic categories the resolution engine attaches
	// to uses of the function, for example INVISIBLE_MEMBER or OPT_IN_USAGE.
	Markers []string `yaml:"markers"`
}

// LocalFunction is a function declared inside the enclosing function.
type LocalFunction struct {
	Name string `yaml:"name"`
	// Variable is the frame local holding the function object.
	Variable string   `yaml:"variable"`
	Params   []string `yaml:"params"`
	Result   string   `yaml:"result"`
}

// Local returns the visible local named name.
func (c *Context) Local(name string) (*Local, bool) {
	// Inner declarations shadow outer ones.
	var found *Local
	for i := range c.Locals {
		l := &c.Locals[i]
		if l.Name == name && (found == nil || l.Depth < found.Depth) {
			found = l
		}
	}
	return found, found != nil
}

// Property returns the receiver property named name.
func (c *Context) Property(name string) (*Property, bool) {
	if c.This == nil {
		return nil, false
	}
	for i := range c.This.Properties {
		if c.This.Properties[i].Name == name {
			return &c.This.Properties[i], true
		}
	}
	return nil, false
}

// FunctionsNamed returns the top-level functions named name.
func (c *Context) FunctionsNamed(name string) []*Function {
	var fns []*Function
	for i := range c.Functions {
		if c.Functions[i].Name == name {
			fns = append(fns, &c.Functions[i])
		}
	}
	return fns
}

// LocalFunctionsNamed returns the local functions named name.
func (c *Context) LocalFunctionsNamed(name string) []*LocalFunction {
	var fns []*LocalFunction
	for i := range c.LocalFunctions {
		if c.LocalFunctions[i].Name == name {
			fns = append(fns, &c.LocalFunctions[i])
		}
	}
	return fns
}

// Class returns the qualified name of the class with the given simple name.
func (c *Context) Class(name string) (string, bool) {
	if qual, ok := c.Classes[name]; ok {
		return qual, true
	}
	qual, ok := builtinClasses[name]
	return qual, ok
}

var builtinClasses = map[string]string{
	"Any":                           "java.lang.Object",
	"String":                        "java.lang.String",
	"Math":                          "java.lang.Math",
	"Throwable":                     "java.lang.Throwable",
	"Exception":                     "java.lang.Exception",
	"RuntimeException":              "java.lang.RuntimeException",
	"IllegalStateException":         "java.lang.IllegalStateException",
	"IllegalArgumentException":      "java.lang.IllegalArgumentException",
	"ArithmeticException":           "java.lang.ArithmeticException",
	"NullPointerException":          "java.lang.NullPointerException",
	"UnsupportedOperationException": "java.lang.UnsupportedOperationException",
}
