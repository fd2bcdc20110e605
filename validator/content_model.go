package validator

import (
	"encoding/xml"

	"github.com/xmlkit-go/xmlkit/grammar"
)

// matchContentModel reports whether the ordered child-element names in
// seq are admitted in full by p, executing the particle tree as a
// nondeterministic automaton: at every point a set of reachable
// positions (indices into seq) is tracked rather than a single one, so
// a Choice or an optional Sequence member never forces a premature
// commitment the way a naive greedy matcher would.
//
// wildcard reports whether an Any particle with the given namespace
// token admits name.
func matchContentModel(p grammar.Particle, seq []xml.Name, wildcard func(namespace string, name xml.Name) bool) bool {
	ends := matchParticle(p, seq, wildcard, map[int]bool{0: true})
	return ends[len(seq)]
}

func occursOf(p grammar.Particle) (min, max int) {
	switch v := p.(type) {
	case grammar.ElementParticle:
		return v.Min, v.Max
	case grammar.SequenceParticle:
		return v.Min, v.Max
	case grammar.ChoiceParticle:
		return v.Min, v.Max
	case grammar.AnyParticle:
		return v.Min, v.Max
	case grammar.AllParticle:
		return 1, 1
	default:
		return 1, 1
	}
}

// matchParticle applies p, with its own occurrence range, starting from
// every position in starts, and returns the set of positions reachable
// after it is satisfied.
func matchParticle(p grammar.Particle, seq []xml.Name, wildcard func(string, xml.Name) bool, starts map[int]bool) map[int]bool {
	min, max := occursOf(p)
	limit := max
	if max == grammar.Unbounded {
		limit = len(seq) + 1
	}

	acc := map[int]bool{}
	if min == 0 {
		for k := range starts {
			acc[k] = true
		}
	}

	frontier := starts
	for rep := 1; rep <= limit && len(frontier) > 0; rep++ {
		next := matchOnce(p, seq, wildcard, frontier)
		if len(next) == 0 {
			break
		}
		if rep >= min {
			for k := range next {
				acc[k] = true
			}
		}
		if setsEqual(next, frontier) {
			break
		}
		frontier = next
	}
	return acc
}

// matchOnce applies a single occurrence of p's body (ignoring p's own
// occurrence range, handled by the caller) from every position in starts.
func matchOnce(p grammar.Particle, seq []xml.Name, wildcard func(string, xml.Name) bool, starts map[int]bool) map[int]bool {
	switch v := p.(type) {
	case grammar.ElementParticle:
		out := map[int]bool{}
		for pos := range starts {
			if pos < len(seq) && seq[pos] == v.Name {
				out[pos+1] = true
			}
		}
		return out
	case grammar.AnyParticle:
		out := map[int]bool{}
		for pos := range starts {
			if pos < len(seq) && wildcard(v.Namespace, seq[pos]) {
				out[pos+1] = true
			}
		}
		return out
	case grammar.SequenceParticle:
		cur := starts
		for _, c := range v.Children {
			cur = matchParticle(c, seq, wildcard, cur)
			if len(cur) == 0 {
				return nil
			}
		}
		return cur
	case grammar.ChoiceParticle:
		out := map[int]bool{}
		for _, c := range v.Children {
			for k := range matchParticle(c, seq, wildcard, starts) {
				out[k] = true
			}
		}
		return out
	case grammar.AllParticle:
		out := map[int]bool{}
		for pos := range starts {
			for _, end := range matchAll(v.Children, seq, pos) {
				out[end] = true
			}
		}
		return out
	default:
		return nil
	}
}

// matchAll admits any permutation of remaining's elements, each
// appearing at most once, or zero times when its own Min is 0, as
// invariant I7 requires for a top-level All group.
func matchAll(remaining []grammar.ElementParticle, seq []xml.Name, pos int) []int {
	if len(remaining) == 0 {
		return []int{pos}
	}
	var out []int
	allOptional := true
	for i, c := range remaining {
		if c.Min != 0 {
			allOptional = false
		}
		if pos < len(seq) && seq[pos] == c.Name {
			rest := dropAt(remaining, i)
			out = append(out, matchAll(rest, seq, pos+1)...)
		}
	}
	if allOptional {
		out = append(out, pos)
	}
	return out
}

func dropAt(children []grammar.ElementParticle, i int) []grammar.ElementParticle {
	out := make([]grammar.ElementParticle, 0, len(children)-1)
	out = append(out, children[:i]...)
	out = append(out, children[i+1:]...)
	return out
}

func setsEqual(a, b map[int]bool) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if !b[k] {
			return false
		}
	}
	return true
}
