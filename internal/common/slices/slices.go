package slices

// Flatten merges a slice of slices into a single slice.
func Flatten[S ~[]E, E any](s []S) S {
	n := 0
	allNil := true
	for _, si := range s {
		n += len(si)
		allNil = allNil && si == nil
	}
	if allNil {
		return nil
	}
	rv := make(S, 0, n)
	for _, si := range s {
		rv = append(rv, si...)
	}
	return rv
}

// Interleave merges s round-robin: the first element of each slice, then the second element of each slice, and so on.
// Slices that run out are skipped, so no element is dropped and len(Interleave(s)) == len(Flatten(s)).
func Interleave[S ~[]E, E any](s []S) S {
	longest := 0
	n := 0
	for _, si := range s {
		n += len(si)
		if len(si) > longest {
			longest = len(si)
		}
	}
	rv := make(S, 0, n)
	for i := 0; i < longest; i++ {
		for _, si := range s {
			if i < len(si) {
				rv = append(rv, si[i])
			}
		}
	}
	return rv
}

// Unique returns a copy of s with duplicate elements removed, keeping only the first occurrence.
func Unique[S ~[]E, E comparable](s S) S {
	if s == nil {
		return nil
	}
	rv := make(S, 0)
	seen := make(map[E]bool)
	for _, v := range s {
		if !seen[v] {
			rv = append(rv, v)
			seen[v] = true
		}
	}
	return rv
}

// Map returns a new slice obtained by applying fn to every element of s.
func Map[S ~[]E, E any, V any](s S, fn func(E) V) []V {
	rv := make([]V, len(s))
	for i, v := range s {
		rv[i] = fn(v)
	}
	return rv
}
