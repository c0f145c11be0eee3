package rng

// Then splices c onto every terminal reachable from n and returns the new
// tree. Branch weights and label positions are preserved. n is consumed.
//
// c may run once per terminal path, concurrently, so it must not hold
// mutable shared data and must return a fresh node on each call.
func (n *Node[S]) Then(c Action[S]) *Node[S] {
	if c == nil {
		return n
	}

	// Peel the label chain first so long label runs do not grow the stack.
	var labels []string
	cur := n
	for cur.Kind() == KindLabel {
		p := cur.Unwrap()
		labels = append(labels, p.Name)
		cur = p.Child
	}

	p := cur.Unwrap()
	var out *Node[S]
	switch p.Kind {
	case KindEnd:
		out = Always(c)
	case KindStep:
		out = Always(thenAction(p.Action, c))
	case KindBranch:
		out = &Node[S]{
			kind: KindBranch,
			branch: [2]Instance[S]{
				{Weight: p.Branch[0].Weight, Action: thenAction(p.Branch[0].Action, c)},
				{Weight: p.Branch[1].Weight, Action: thenAction(p.Branch[1].Action, c)},
			},
		}
	}

	for i := len(labels) - 1; i >= 0; i-- {
		out = Labeled(labels[i], out)
	}
	return out
}

// ThenFunc is Then for a plain function.
func (n *Node[S]) ThenFunc(fn func(s *S) *Node[S]) *Node[S] {
	if fn == nil {
		return n
	}
	return n.Then(ActionFunc[S](fn))
}

func thenAction[S any](a, c Action[S]) Action[S] {
	return ActionFunc[S](func(s *S) *Node[S] {
		return a.Run(s).Then(c)
	})
}

// ForEach folds items into one node that runs fn for each item in order.
// Item i runs only after the whole tree produced for item i-1 has reached a
// terminal on the current path.
func ForEach[S, T any](items []T, fn func(item T, s *S) *Node[S]) *Node[S] {
	n := End[S]()
	for _, item := range items {
		n = n.Then(ActionFunc[S](func(s *S) *Node[S] {
			return fn(item, s)
		}))
	}
	return n
}

// Seq chains actions one after another.
func Seq[S any](actions ...Action[S]) *Node[S] {
	n := End[S]()
	for _, a := range actions {
		n = n.Then(a)
	}
	return n
}
