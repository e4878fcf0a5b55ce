package filestore

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"ytarchive/storage"
)

// ChangeType classifies a single difference.
type ChangeType string

const (
	Added   ChangeType = "added"
	Removed ChangeType = "removed"
	Changed ChangeType = "changed"
)

// Change is one differing path between two records.
type Change struct {
	Path string
	Type ChangeType
}

func (c Change) String() string { return fmt.Sprintf("%s %s", c.Type, c.Path) }

// Changes is the result of Diff. An empty value means the records are
// considered equal.
type Changes []Change

// Empty reports whether no included field differs.
func (c Changes) Empty() bool { return len(c) == 0 }

// Paths returns the changed paths in order.
func (c Changes) Paths() []string {
	out := make([]string, len(c))
	for i, ch := range c {
		out[i] = ch.Path
	}
	return out
}

// DiffOptions controls Diff.
type DiffOptions struct {
	// Exclude lists dotted field paths ignored on both sides
	// ("first_seen", "statistics.view_count").
	Exclude []string
	// OrderedLists makes list order significant. By default lists are
	// compared as sets.
	OrderedLists bool
}

// Diff compares old and new after removing excluded paths from both.
func Diff(old, new storage.Record, opts DiffOptions) Changes {
	excluded := make(map[string]bool, len(opts.Exclude))
	for _, p := range opts.Exclude {
		excluded[p] = true
	}
	d := differ{excluded: excluded, ordered: opts.OrderedLists}
	d.objects("", map[string]any(old), map[string]any(new))
	return d.changes
}

type differ struct {
	excluded map[string]bool
	ordered  bool
	changes  Changes
}

func (d *differ) add(p string, t ChangeType) {
	d.changes = append(d.changes, Change{Path: p, Type: t})
}

func (d *differ) objects(prefix string, a, b map[string]any) {
	keys := make(map[string]struct{}, len(a)+len(b))
	for k := range a {
		keys[k] = struct{}{}
	}
	for k := range b {
		keys[k] = struct{}{}
	}
	sorted := make([]string, 0, len(keys))
	for k := range keys {
		sorted = append(sorted, k)
	}
	sort.Strings(sorted)

	for _, k := range sorted {
		p := k
		if prefix != "" {
			p = prefix + "." + k
		}
		if d.excluded[p] {
			continue
		}
		av, inA := a[k]
		bv, inB := b[k]
		switch {
		case !inA:
			d.add(p, Added)
		case !inB:
			d.add(p, Removed)
		default:
			d.value(p, av, bv)
		}
	}
}

func (d *differ) value(p string, a, b any) {
	am, aIsMap := asMap(a)
	bm, bIsMap := asMap(b)
	if aIsMap && bIsMap {
		d.objects(p, am, bm)
		return
	}
	al, aIsList := a.([]any)
	bl, bIsList := b.([]any)
	if aIsList && bIsList {
		if !d.listsEqual(p, al, bl) {
			d.add(p, Changed)
		}
		return
	}
	if !d.equal(p, a, b) {
		d.add(p, Changed)
	}
}

func (d *differ) listsEqual(p string, a, b []any) bool {
	if d.ordered {
		if len(a) != len(b) {
			return false
		}
		for i := range a {
			if !d.equal(p, a[i], b[i]) {
				return false
			}
		}
		return true
	}
	// Unordered lists compare as sets: repeats are ignored.
	return d.covers(p, a, b) && d.covers(p, b, a)
}

// covers reports whether every element of a has an equal element in b.
func (d *differ) covers(p string, a, b []any) bool {
outer:
	for _, x := range a {
		for _, y := range b {
			if d.equal(p, x, y) {
				continue outer
			}
		}
		return false
	}
	return true
}

// equal compares two values with exclusions applied below p.
func (d *differ) equal(p string, a, b any) bool {
	sub := differ{excluded: d.excluded, ordered: d.ordered}
	am, aIsMap := asMap(a)
	bm, bIsMap := asMap(b)
	switch {
	case aIsMap && bIsMap:
		sub.objects(p, am, bm)
		return sub.changes.Empty()
	case aIsMap || bIsMap:
		return false
	}
	al, aIsList := a.([]any)
	bl, bIsList := b.([]any)
	switch {
	case aIsList && bIsList:
		return sub.listsEqual(p, al, bl)
	case aIsList || bIsList:
		return false
	}
	return scalarEqual(a, b)
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case storage.Record:
		return m, true
	}
	return nil, false
}

func scalarEqual(a, b any) bool {
	an, aNum := asNumber(a)
	bn, bNum := asNumber(b)
	switch {
	case aNum && bNum:
		return numbersEqual(an, bn)
	case aNum || bNum:
		return false
	}
	return reflect.DeepEqual(a, b)
}

func asNumber(v any) (json.Number, bool) {
	switch n := v.(type) {
	case json.Number:
		return n, true
	case int:
		return json.Number(strconv.Itoa(n)), true
	case int64:
		return json.Number(strconv.FormatInt(n, 10)), true
	case float64:
		return json.Number(strconv.FormatFloat(n, 'f', -1, 64)), true
	}
	return "", false
}

func numbersEqual(a, b json.Number) bool {
	if a == b {
		return true
	}
	if ai, err := a.Int64(); err == nil {
		if bi, err := b.Int64(); err == nil {
			return ai == bi
		}
	}
	af, aerr := a.Float64()
	bf, berr := b.Float64()
	return aerr == nil && berr == nil && af == bf
}

// String renders the changes one per line.
func (c Changes) String() string {
	lines := make([]string, len(c))
	for i, ch := range c {
		lines[i] = ch.String()
	}
	return strings.Join(lines, "\n")
}
