package reconcile

// Merge combines two snapshots of an ordered list without losing any
// element of either. Equal runs come from old, inserted runs from new,
// replaced runs contribute old then new, and deleted runs are kept since
// a removal upstream may only be a move. Duplicates are dropped keeping
// the first occurrence.
func Merge[T comparable](old, new []T) []T {
	result := make([]T, 0, len(old)+len(new))
	iOld, iNew := 0, 0
	for _, op := range Opcodes(old, new) {
		switch op.Tag {
		case Equal:
			result = append(result, old[op.I1:op.I2]...)
			iOld, iNew = op.I2, op.J2
		case Insert:
			result = append(result, new[op.J1:op.J2]...)
			iNew = op.J2
		case Replace:
			result = append(result, old[op.I1:op.I2]...)
			result = append(result, new[op.J1:op.J2]...)
			iOld, iNew = op.I2, op.J2
		case Delete:
			result = append(result, old[op.I1:op.I2]...)
			iOld = op.I2
		}
	}
	result = append(result, old[iOld:]...)
	result = append(result, new[iNew:]...)
	return Dedupe(result)
}

// Dedupe removes repeated elements, keeping the first occurrence.
func Dedupe[T comparable](s []T) []T {
	seen := make(map[T]struct{}, len(s))
	out := s[:0:0]
	for _, x := range s {
		if _, ok := seen[x]; ok {
			continue
		}
		seen[x] = struct{}{}
		out = append(out, x)
	}
	return out
}
