// Copyright © 2024 The ELPS authors

package cmd

import (
	"io"

	"github.com/luthersystems/fragmenteval/diagnostic"
	"github.com/luthersystems/fragmenteval/fragment"
)

func (c *cmdConfig) colorMode() (diagnostic.ColorMode, error) {
	return diagnostic.ParseColorMode(c.v.GetString("color"))
}

// renderEvalError renders the failed evaluation of frag to w.
func (c *cmdConfig) renderEvalError(w io.Writer, frag *fragment.CodeFragment, err error) {
	mode, _ := c.colorMode()
	r := &diagnostic.Renderer{
		Color:        mode,
		Width:        100,
		SourceReader: diagnostic.FragmentSource(frag.FileName(), frag.Text),
	}
	if rerr := r.RenderError(w, err); rerr != nil {
		c.log.WithError(rerr).Warn("cannot render diagnostics")
	}
}
