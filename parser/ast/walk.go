// Copyright © 2018 The ELPS authors

package ast

// Inspect traverses the tree rooted at n in depth-first order.  If fn
// returns false the children of the node are skipped.
func Inspect(n Node, fn func(Node) bool) {
	if n == nil || !fn(n) {
		return
	}
	switch n := n.(type) {
	case *ParenExpr:
		Inspect(n.X, fn)
	case *UnaryExpr:
		Inspect(n.X, fn)
	case *BinaryExpr:
		Inspect(n.X, fn)
		Inspect(n.Y, fn)
	case *SelectorExpr:
		Inspect(n.X, fn)
		Inspect(n.Name, fn)
	case *CallExpr:
		Inspect(n.Fun, fn)
		for _, arg := range n.Args {
			Inspect(arg, fn)
		}
	case *IfExpr:
		Inspect(n.Cond, fn)
		Inspect(n.Then, fn)
		Inspect(n.Else, fn)
	case *DeclStmt:
		Inspect(n.Name, fn)
		Inspect(n.Value, fn)
	case *AssignStmt:
		Inspect(n.Target, fn)
		Inspect(n.Value, fn)
	case *ThrowStmt:
		Inspect(n.X, fn)
	case *ExprStmt:
		Inspect(n.X, fn)
	}
}

// Unparen strips any number of enclosing parentheses from x.
func Unparen(x Expr) Expr {
	for {
		p, ok := x.(*ParenExpr)
		if !ok {
			return x
		}
		x = p.X
	}
}
