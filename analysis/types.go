// Copyright © 2024 The ELPS authors

package analysis

import (
	"github.com/luthersystems/fragmenteval/target"
)

func isNumeric(t string) bool {
	return t == target.TypeInt || t == target.TypeDouble
}

func isDynamic(t string) bool {
	return t == "" || t == target.TypeAny
}

// assignable reports whether a value of static type from may be stored in a
// variable of static type to.  Class types are not checked.
func assignable(to, from string) bool {
	switch {
	case isDynamic(to), isDynamic(from), to == from:
		return true
	case from == target.TypeNothing:
		return true
	case from == target.TypeNull:
		return !target.Primitive(to)
	case target.Primitive(to) || target.Primitive(from):
		return false
	case to == target.TypeUnit || from == target.TypeUnit:
		return false
	}
	return true
}

// commonType is the type of an expression whose value is a or b.
func commonType(a, b string) string {
	switch {
	case a == b:
		return a
	case a == target.TypeNothing:
		return b
	case b == target.TypeNothing:
		return a
	}
	return target.TypeAny
}

// arithmeticType is the result type of a numeric operator, or "" when the
// operands are not numbers.
func arithmeticType(a, b string) string {
	switch {
	case a == target.TypeInt && b == target.TypeInt:
		return target.TypeInt
	case isNumeric(a) && isNumeric(b):
		return target.TypeDouble
	case isDynamic(a) && (isNumeric(b) || isDynamic(b)):
		return target.TypeAny
	case isDynamic(b) && isNumeric(a):
		return target.TypeAny
	}
	return ""
}

// classOf returns the runtime class of values of static type t.
func classOf(t string) string {
	switch t {
	case target.TypeString:
		return "java.lang.String"
	case target.TypeInt:
		return "java.lang.Integer"
	case target.TypeDouble:
		return "java.lang.Double"
	case target.TypeBoolean:
		return "java.lang.Boolean"
	case "", target.TypeAny:
		return ""
	}
	return t
}

type memberSig struct {
	params []string
	result string
}

// stringMembers are the members of String known to the resolver.
var stringMembers = map[string]memberSig{
	"length":    {result: target.TypeInt},
	"uppercase": {result: target.TypeString},
	"lowercase": {result: target.TypeString},
	"isEmpty":   {result: target.TypeBoolean},
	"plus":      {params: []string{target.TypeAny}, result: target.TypeString},
}

// anyMembers are the members every object has.
var anyMembers = map[string]memberSig{
	"toString": {result: target.TypeString},
	"equals":   {params: []string{target.TypeAny}, result: target.TypeBoolean},
	"hashCode": {result: target.TypeInt},
}

// builtinFunctions are the library functions callable without declaration.
var builtinFunctions = map[string]struct {
	owner string
	memberSig
}{
	"error":   {"kotlin.PreconditionsKt", memberSig{params: []string{target.TypeAny}, result: target.TypeNothing}},
	"println": {"kotlin.io.ConsoleKt", memberSig{params: []string{target.TypeAny}, result: target.TypeUnit}},
}
