// SPDX-License-Identifier: EPL-2.0

package delay

import "sync"

// DelaySetter is the path a mirrored delay change travels through.
type DelaySetter interface {
	SetDelay(ch int, ms float64)
}

// LinkGroup tracks which adjacent channel pairs (2k, 2k+1) are linked.
// Only the even channel of a pair carries the flag, and a pair exists only
// when its odd member is within the channel count.
type LinkGroup struct {
	linked []bool // indexed by pair, i.e. primary/2
	mtx    *sync.Mutex
}

// NewLinkGroup returns a group with every pair unlinked.
func NewLinkGroup(channels int) *LinkGroup {
	return &LinkGroup{
		linked: make([]bool, pairCount(channels)),
		mtx:    &sync.Mutex{},
	}
}

func pairCount(channels int) int {
	if channels < 2 {
		return 0
	}

	return channels / 2
}

// Resize adapts the group to a new channel count. Pairs that still exist
// keep their flag.
func (g *LinkGroup) Resize(channels int) {
	g.mtx.Lock()
	defer g.mtx.Unlock()

	linked := make([]bool, pairCount(channels))
	copy(linked, g.linked)
	g.linked = linked
}

// SetLinked sets the flag of the pair whose even member is primary.
// It returns false, and stores nothing, when primary is odd or has no
// partner. Linking does not equalize the two delays.
func (g *LinkGroup) SetLinked(primary int, on bool) bool {
	g.mtx.Lock()
	defer g.mtx.Unlock()

	if primary < 0 || primary%2 != 0 || primary/2 >= len(g.linked) {
		return false
	}
	g.linked[primary/2] = on

	return true
}

// IsLinked reports whether the pair starting at primary is linked.
func (g *LinkGroup) IsLinked(primary int) bool {
	g.mtx.Lock()
	defer g.mtx.Unlock()

	if primary < 0 || primary%2 != 0 || primary/2 >= len(g.linked) {
		return false
	}

	return g.linked[primary/2]
}

// Partner returns the other member of ch's pair when that pair is linked.
func (g *LinkGroup) Partner(ch int) (int, bool) {
	g.mtx.Lock()
	defer g.mtx.Unlock()

	if ch < 0 || ch/2 >= len(g.linked) || !g.linked[ch/2] {
		return 0, false
	}

	return ch ^ 1, true
}

// Linked returns the primaries of all linked pairs in ascending order.
func (g *LinkGroup) Linked() []int {
	g.mtx.Lock()
	defer g.mtx.Unlock()

	var out []int
	for pair, on := range g.linked {
		if on {
			out = append(out, pair*2)
		}
	}

	return out
}

// Mirror forwards a delay change on ch to its linked partner, if any.
// The changed channel itself is left to the caller.
func (g *LinkGroup) Mirror(set DelaySetter, ch int, ms float64) {
	partner, ok := g.Partner(ch)
	if !ok {
		return
	}
	set.SetDelay(partner, ms)
}
