package objgraph

// releaseRef drops one reference. At zero the object is destroyed. If
// references remain, the object may still be garbage held only by a
// cycle, which releaseCycles finds. Reads in progress skip the cycle
// check, their objects are half built.
func releaseRef(b *Base) {
	if b.dead {
		return
	}
	if b.refs <= 0 {
		panic("objgraph: reference count below zero")
	}
	b.refs--
	if b.refs == 0 {
		destroy([]*Base{b}, reasonRefcount)
		return
	}
	if b.domain != nil && b.domain.suspended() {
		return
	}
	releaseCycles(b)
}

// releaseCycles destroys the objects reachable from root that nothing
// outside that set keeps alive.
func releaseCycles(root *Base) {
	seen := make(map[*Base]int)
	order := []*Base{root}
	seen[root] = 0
	for i := 0; i < len(order); i++ {
		eachRef(order[i], func(to *Base) {
			if _, ok := seen[to]; !ok {
				order = append(order, to)
			}
			seen[to]++
		})
	}
	ReleaseTraversal.Observe(float64(len(order)))
	if seen[root] != root.refs {
		// root is held from outside, so is everything below it
		return
	}
	candidates := make(map[*Base]bool, len(order))
	var kept []*Base
	for _, b := range order {
		if seen[b] == b.refs {
			candidates[b] = true
		} else {
			kept = append(kept, b)
		}
	}
	// anything reachable from a survivor survives
	for len(kept) > 0 {
		k := kept[len(kept)-1]
		kept = kept[:len(kept)-1]
		eachRef(k, func(to *Base) {
			if candidates[to] {
				delete(candidates, to)
				kept = append(kept, to)
			}
		})
	}
	if len(candidates) == 0 {
		return
	}
	batch := make([]*Base, 0, len(candidates))
	for _, b := range order {
		if candidates[b] {
			batch = append(batch, b)
		}
	}
	destroy(batch, reasonCycle)
}

// eachRef calls fn for every live object b references, once per reference.
func eachRef(b *Base, fn func(to *Base)) {
	reg := b.registry()
	if reg == nil || b.self == nil {
		return
	}
	ar := Archive{mode: modeVisit, visit: func(to *Base) {
		if !to.dead {
			fn(to)
		}
	}}
	for _, c := range reg.Chain(b.class) {
		if c.Fields != nil {
			c.Fields(b.self, &ar)
		}
	}
}

// teardown drops every reference the object holds.
func teardown(b *Base) {
	reg := b.registry()
	if reg == nil || b.self == nil {
		return
	}
	ar := Archive{mode: modeRelease}
	for _, c := range reg.Chain(b.class) {
		if c.Fields != nil {
			c.Fields(b.self, &ar)
		}
	}
}

// destroy tears down a batch of unreachable objects. All of them are
// marked dead first, so references between batch members are dropped
// without recounting.
func destroy(batch []*Base, reason string) {
	for _, b := range batch {
		if b.dead {
			panic("objgraph: object destroyed twice")
		}
		b.refs = 0
		b.dead = true
	}
	for _, b := range batch {
		if d, ok := b.self.(Destroyer); ok {
			d.OnDestroy()
		}
		teardown(b)
		if b.domain != nil {
			b.domain.log.Debug("destroyed", "id", b.id, "reason", reason)
			b.domain.forget(b)
		}
		ObjectsDestroyed.WithLabelValues(reason).Inc()
	}
}
