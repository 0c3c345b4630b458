package relay

import (
	"sort"

	"github.com/opd-ai/saltyrtc/protocol"
)

// path groups the clients connected under one initiator key.
type path struct {
	initiator  *client
	responders map[uint8]*client
}

func newPath() *path {
	return &path{responders: make(map[uint8]*client)}
}

func (p *path) clients() []*client {
	out := make([]*client, 0, len(p.responders)+1)
	if p.initiator != nil {
		out = append(out, p.initiator)
	}
	for _, r := range p.responders {
		out = append(out, r)
	}
	return out
}

func (p *path) empty() bool {
	return p.initiator == nil && len(p.responders) == 0
}

// responderIDs returns the connected responder addresses in ascending order.
func (p *path) responderIDs() []int {
	ids := make([]int, 0, len(p.responders))
	for id := range p.responders {
		ids = append(ids, int(id))
	}
	sort.Ints(ids)
	return ids
}

// freeResponderID returns the lowest unused responder address.
func (p *path) freeResponderID(max int) (uint8, bool) {
	if len(p.responders) >= max {
		return 0, false
	}
	for id := int(protocol.IDResponderMin); id <= int(protocol.IDResponderMax); id++ {
		if _, used := p.responders[uint8(id)]; !used {
			return uint8(id), true
		}
	}
	return 0, false
}
