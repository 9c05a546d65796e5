package bus

import "sync"

// ring is an ordered subscriber list. Event routing rotates it; broadcast
// routing only reads it.
type ring struct {
	mu      sync.Mutex
	members []Participant
}

// add appends p unless it is already a member.
func (r *ring) add(p Participant) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, m := range r.members {
		if m == p {
			return false
		}
	}
	r.members = append(r.members, p)
	return true
}

func (r *ring) remove(p Participant) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, m := range r.members {
		if m == p {
			r.members = append(r.members[:i:i], r.members[i+1:]...)
			return true
		}
	}
	return false
}

// next pops the head and pushes it to the tail in one step, returning it.
func (r *ring) next() (Participant, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.members) == 0 {
		return nil, false
	}
	head := r.members[0]
	copy(r.members, r.members[1:])
	r.members[len(r.members)-1] = head
	return head, true
}

// list returns a copy of the members in their current order.
func (r *ring) list() []Participant {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Participant, len(r.members))
	copy(out, r.members)
	return out
}
