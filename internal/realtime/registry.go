package realtime

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/rickgao/hotel-realtime/internal/events"
)

// Callback receives one delivered event. ev.Data is the payload, never the
// outer envelope.
type Callback func(ev events.Event)

// Listener is a subscription handle. Unsubscribe matches by pointer, so
// keep the handle returned by NewListener or On.
type Listener struct {
	handle func(ev events.Event) error
}

// NewListener wraps fn in a handle.
func NewListener(fn Callback) *Listener {
	return &Listener{handle: func(ev events.Event) error {
		fn(ev)
		return nil
	}}
}

// Typed wraps fn in a handle that decodes the payload into T. Payloads that
// do not decode are dropped and logged by the manager that delivered them.
func Typed[T any](fn func(T)) *Listener {
	return &Listener{handle: func(ev events.Event) error {
		var v T
		if err := json.Unmarshal(ev.Data, &v); err != nil {
			return fmt.Errorf("decode %s payload: %w", ev.Name, err)
		}
		fn(v)
		return nil
	}}
}

// registry maps event keys to ordered listener entries. Keys are created on
// first subscribe and only removed by clear.
type registry struct {
	listeners map[string][]*Listener
}

func newRegistry() *registry {
	return &registry{listeners: make(map[string][]*Listener)}
}

// add appends l under key. The same handle may be added more than once.
func (r *registry) add(key string, l *Listener) {
	r.listeners[key] = append(r.listeners[key], l)
}

// remove deletes the first entry equal to l. Returns false if none matched.
func (r *registry) remove(key string, l *Listener) bool {
	list, ok := r.listeners[key]
	if !ok {
		return false
	}
	for i, entry := range list {
		if entry == l {
			next := make([]*Listener, 0, len(list)-1)
			next = append(next, list[:i]...)
			next = append(next, list[i+1:]...)
			r.listeners[key] = next
			return true
		}
	}
	return false
}

// snapshot returns a copy of the entries for key, safe to iterate while
// the registry is mutated.
func (r *registry) snapshot(key string) []*Listener {
	list := r.listeners[key]
	if len(list) == 0 {
		return nil
	}
	out := make([]*Listener, len(list))
	copy(out, list)
	return out
}

// clear drops every key.
func (r *registry) clear() {
	r.listeners = make(map[string][]*Listener)
}

// count returns the entries under key.
func (r *registry) count(key string) int {
	return len(r.listeners[key])
}

// size returns the key count and total entry count.
func (r *registry) size() (keys, entries int) {
	for _, list := range r.listeners {
		entries += len(list)
	}
	return len(r.listeners), entries
}

// topics returns the sorted distinct topics of topic-scoped keys that have
// at least one listener.
func (r *registry) topics() []string {
	seen := make(map[string]struct{})
	for key, list := range r.listeners {
		if len(list) == 0 {
			continue
		}
		if _, topic, ok := events.SplitKey(key); ok {
			seen[topic] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for topic := range seen {
		out = append(out, topic)
	}
	sort.Strings(out)
	return out
}
