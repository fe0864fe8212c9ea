// Package pattern implements the multi-pattern payload matcher used to pick
// detector candidates when port-based selection has failed (spec §4.1). The
// automaton itself is an Aho-Corasick trie with failure links, adapted from
// the fleet's ahocorasick package: unlike that package (built for
// case-insensitive username/URI filtering) this one matches raw protocol
// bytes case-sensitively, since network signatures are not text.
package pattern

// automatonState is a single node of the trie.
type automatonState struct {
	transitions map[byte]int
	failure     int
	output      []int // indices into automaton.patterns
}

func newAutomatonState() automatonState {
	return automatonState{transitions: make(map[byte]int)}
}

// rawPattern is a single byte pattern registered with the automaton.
type rawPattern struct {
	bytes []byte
}

// automaton is a built Aho-Corasick matcher over raw byte patterns.
type automaton struct {
	states   []automatonState
	patterns []rawPattern
}

// rawMatch is a single hit reported by the automaton: which pattern, and
// the offset one past its last matched byte.
type rawMatch struct {
	patternIdx int
	end        int
}

// buildAutomaton constructs the trie and failure links for the given
// patterns. Patterns with zero length are ignored (they would match at
// every position, which is never useful for a protocol marker).
func buildAutomaton(patterns []rawPattern) *automaton {
	a := &automaton{
		states:   []automatonState{newAutomatonState()},
		patterns: patterns,
	}
	a.buildTrie()
	a.computeFailureLinks()
	return a
}

func (a *automaton) buildTrie() {
	for patternIdx, p := range a.patterns {
		if len(p.bytes) == 0 {
			continue
		}
		current := 0
		for _, b := range p.bytes {
			next, ok := a.states[current].transitions[b]
			if !ok {
				next = len(a.states)
				a.states = append(a.states, newAutomatonState())
				a.states[current].transitions[b] = next
			}
			current = next
		}
		a.states[current].output = append(a.states[current].output, patternIdx)
	}
}

func (a *automaton) computeFailureLinks() {
	queue := make([]int, 0, len(a.states))
	for _, next := range a.states[0].transitions {
		a.states[next].failure = 0
		queue = append(queue, next)
	}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		for b, next := range a.states[current].transitions {
			queue = append(queue, next)

			fail := a.states[current].failure
			for fail != 0 {
				if _, ok := a.states[fail].transitions[b]; ok {
					break
				}
				fail = a.states[fail].failure
			}

			if target, ok := a.states[fail].transitions[b]; ok && target != next {
				a.states[next].failure = target
			} else {
				a.states[next].failure = 0
			}

			if failOut := a.states[a.states[next].failure].output; len(failOut) > 0 {
				a.states[next].output = append(a.states[next].output, failOut...)
			}
		}
	}
}

// match scans payload and returns every pattern hit, in scan order.
func (a *automaton) match(payload []byte) []rawMatch {
	if len(a.states) == 0 {
		return nil
	}

	var results []rawMatch
	current := 0

	for i, b := range payload {
		for current != 0 {
			if _, ok := a.states[current].transitions[b]; ok {
				break
			}
			current = a.states[current].failure
		}
		if next, ok := a.states[current].transitions[b]; ok {
			current = next
		}

		for _, patternIdx := range a.states[current].output {
			results = append(results, rawMatch{patternIdx: patternIdx, end: i + 1})
		}
	}

	return results
}
