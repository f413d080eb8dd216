// Copyright © 2018 The ELPS authors

package bytecode

import (
	"fmt"
	"io"
	"strings"
)

// Disassemble writes a readable listing of u to w.
func Disassemble(w io.Writer, u *Unit) error {
	if _, err := fmt.Fprintf(w, "class %s\n", u.Name); err != nil {
		return err
	}
	for _, m := range u.Methods {
		_, err := fmt.Fprintf(w, "  %s(%s): %s  locals=%d\n", m.Name, strings.Join(m.Params, ", "), m.Result, m.Locals)
		if err != nil {
			return err
		}
		for i, in := range m.Code {
			if _, err := fmt.Fprintf(w, "    %4d  %v\n", i, in); err != nil {
				return err
			}
		}
	}
	return nil
}

// DisassembleString returns the listing of u.
func DisassembleString(u *Unit) string {
	var b strings.Builder
	_ = Disassemble(&b, u)
	return b.String()
}
