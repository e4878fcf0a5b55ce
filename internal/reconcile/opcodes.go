// Package reconcile aligns and merges two ordered id lists, such as two
// snapshots of a playlist or of a channel's uploads.
package reconcile

import "sort"

// Tag names one run of an edit script.
type Tag string

const (
	Equal   Tag = "equal"
	Insert  Tag = "insert"
	Delete  Tag = "delete"
	Replace Tag = "replace"
)

// OpCode says that a[I1:I2] relates to b[J1:J2] as Tag.
type OpCode struct {
	Tag    Tag
	I1, I2 int
	J1, J2 int
}

type match struct{ a, b, size int }

// matcher finds longest matching blocks the way Ratcliff/Obershelp
// alignment does, with the popular-element heuristic applied to b.
type matcher[T comparable] struct {
	a, b []T
	b2j  map[T][]int
}

func newMatcher[T comparable](a, b []T) *matcher[T] {
	m := &matcher[T]{a: a, b: b, b2j: make(map[T][]int)}
	for j, x := range b {
		m.b2j[x] = append(m.b2j[x], j)
	}
	// Elements making up more than 1% of a long b are treated as noise.
	if n := len(b); n >= 200 {
		limit := n/100 + 1
		for x, idx := range m.b2j {
			if len(idx) > limit {
				delete(m.b2j, x)
			}
		}
	}
	return m
}

func (m *matcher[T]) longest(alo, ahi, blo, bhi int) match {
	best := match{a: alo, b: blo}
	j2len := map[int]int{}
	for i := alo; i < ahi; i++ {
		next := map[int]int{}
		for _, j := range m.b2j[m.a[i]] {
			if j < blo {
				continue
			}
			if j >= bhi {
				break
			}
			k := j2len[j-1] + 1
			next[j] = k
			if k > best.size {
				best = match{a: i - k + 1, b: j - k + 1, size: k}
			}
		}
		j2len = next
	}

	// Popular elements never seed a match but may still extend one.
	for best.a > alo && best.b > blo && m.a[best.a-1] == m.b[best.b-1] {
		best = match{a: best.a - 1, b: best.b - 1, size: best.size + 1}
	}
	for best.a+best.size < ahi && best.b+best.size < bhi && m.a[best.a+best.size] == m.b[best.b+best.size] {
		best.size++
	}
	return best
}

func (m *matcher[T]) blocks() []match {
	type span struct{ alo, ahi, blo, bhi int }
	queue := []span{{0, len(m.a), 0, len(m.b)}}
	var found []match
	for len(queue) > 0 {
		s := queue[len(queue)-1]
		queue = queue[:len(queue)-1]
		x := m.longest(s.alo, s.ahi, s.blo, s.bhi)
		if x.size == 0 {
			continue
		}
		found = append(found, x)
		if s.alo < x.a && s.blo < x.b {
			queue = append(queue, span{s.alo, x.a, s.blo, x.b})
		}
		if x.a+x.size < s.ahi && x.b+x.size < s.bhi {
			queue = append(queue, span{x.a + x.size, s.ahi, x.b + x.size, s.bhi})
		}
	}
	sort.Slice(found, func(i, j int) bool {
		if found[i].a != found[j].a {
			return found[i].a < found[j].a
		}
		return found[i].b < found[j].b
	})

	// Join adjacent blocks.
	var out []match
	cur := match{}
	for _, x := range found {
		if cur.a+cur.size == x.a && cur.b+cur.size == x.b {
			cur.size += x.size
			continue
		}
		if cur.size > 0 {
			out = append(out, cur)
		}
		cur = x
	}
	if cur.size > 0 {
		out = append(out, cur)
	}
	return append(out, match{a: len(m.a), b: len(m.b)})
}

// Opcodes returns the edit script turning a into b.
func Opcodes[T comparable](a, b []T) []OpCode {
	var ops []OpCode
	i, j := 0, 0
	for _, x := range newMatcher(a, b).blocks() {
		var tag Tag
		switch {
		case i < x.a && j < x.b:
			tag = Replace
		case i < x.a:
			tag = Delete
		case j < x.b:
			tag = Insert
		}
		if tag != "" {
			ops = append(ops, OpCode{Tag: tag, I1: i, I2: x.a, J1: j, J2: x.b})
		}
		i, j = x.a+x.size, x.b+x.size
		if x.size > 0 {
			ops = append(ops, OpCode{Tag: Equal, I1: x.a, I2: i, J1: x.b, J2: j})
		}
	}
	return ops
}

// NeedsReconcile reports whether ops rewrites or drops anything from the
// old side. Pure insertions leave every old id in place.
func NeedsReconcile(ops []OpCode) bool {
	for _, op := range ops {
		if op.Tag == Replace || op.Tag == Delete {
			return true
		}
	}
	return false
}
