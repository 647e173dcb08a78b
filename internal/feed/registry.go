package feed

import (
	"sync"

	"TradePull/internal/domain/models"
)

// TickCallback receives every tick appended for a subscribed symbol.
type TickCallback func(symbol string, tick models.Tick)

type callbackEntry struct {
	id int
	fn TickCallback
}

type subscription struct {
	symbol       string
	exchangeType int
	token        string
	mode         int
	callbacks    []callbackEntry
	buffer       []models.Tick
}

// Registry is the shared symbol table of the feed: per symbol it holds
// the instrument identity, the subscribed mode, registered callbacks and
// a bounded FIFO tick buffer. All mutations go through one mutex; the
// dataset is small enough that finer locking buys nothing.
type Registry struct {
	mu       sync.Mutex
	capacity int
	nextCBID int
	subs     map[string]*subscription
	byToken  map[string]string
}

func NewRegistry(capacity int) *Registry {
	if capacity <= 0 {
		capacity = 1000
	}
	return &Registry{
		capacity: capacity,
		nextCBID: 1,
		subs:     make(map[string]*subscription),
		byToken:  make(map[string]string),
	}
}

// Register creates or updates the instrument identity for a symbol
// without subscribing it.
func (r *Registry) Register(symbol string, exchangeType int, token string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.subs[symbol]
	if !ok {
		s = &subscription{symbol: symbol}
		r.subs[symbol] = s
	}
	if s.token != "" && s.token != token {
		delete(r.byToken, s.token)
	}
	s.exchangeType = exchangeType
	s.token = token
	r.byToken[token] = symbol
}

// Subscribe marks a symbol subscribed at the given mode and registers an
// optional callback. needSend reports whether a network subscribe (or
// mode upgrade) must go out; an already-subscribed symbol at the same
// mode only gains the callback. cbID identifies the callback for a later
// Unsubscribe; it is 0 when cb is nil. ok is false for unknown symbols.
func (r *Registry) Subscribe(symbol string, mode int, cb TickCallback) (needSend bool, cbID int, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, found := r.subs[symbol]
	if !found {
		return false, 0, false
	}

	needSend = s.mode != mode
	s.mode = mode
	if cb != nil {
		cbID = r.nextCBID
		r.nextCBID++
		s.callbacks = append(s.callbacks, callbackEntry{id: cbID, fn: cb})
	}
	return needSend, cbID, true
}

// Unsubscribe removes a callback by id, or the whole subscription when
// cbID is 0. needSend reports whether a network unsubscribe must go out,
// which happens only once no callbacks remain.
func (r *Registry) Unsubscribe(symbol string, cbID int) (needSend bool, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, found := r.subs[symbol]
	if !found || s.mode == 0 {
		return false, false
	}

	if cbID != 0 {
		for i, e := range s.callbacks {
			if e.id == cbID {
				s.callbacks = append(s.callbacks[:i], s.callbacks[i+1:]...)
				break
			}
		}
		if len(s.callbacks) > 0 {
			return false, true
		}
	}

	delete(r.byToken, s.token)
	delete(r.subs, symbol)
	return true, true
}

// AppendTick appends a tick to the symbol buffer, evicting the oldest
// entries past capacity, and fans the tick out to callbacks. Callbacks
// run outside the lock.
func (r *Registry) AppendTick(symbol string, tick models.Tick) bool {
	r.mu.Lock()
	s, ok := r.subs[symbol]
	if !ok {
		r.mu.Unlock()
		return false
	}
	s.buffer = append(s.buffer, tick)
	if len(s.buffer) > r.capacity {
		s.buffer = s.buffer[len(s.buffer)-r.capacity:]
	}
	cbs := make([]TickCallback, 0, len(s.callbacks))
	for _, e := range s.callbacks {
		cbs = append(cbs, e.fn)
	}
	r.mu.Unlock()

	for _, fn := range cbs {
		fn(symbol, tick)
	}
	return true
}

// Resolve maps an instrument token back to its symbol.
func (r *Registry) Resolve(token string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	symbol, ok := r.byToken[token]
	return symbol, ok
}

// Snapshot returns up to limit most recent ticks for symbol, oldest
// first, without mutating the buffer.
func (r *Registry) Snapshot(symbol string, limit int) []models.Tick {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.subs[symbol]
	if !ok {
		return nil
	}
	buf := s.buffer
	if limit > 0 && len(buf) > limit {
		buf = buf[len(buf)-limit:]
	}
	out := make([]models.Tick, len(buf))
	copy(out, buf)
	return out
}

// Lookup returns the instrument identity and mode of a symbol.
func (r *Registry) Lookup(symbol string) (exchangeType int, token string, mode int, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, found := r.subs[symbol]
	if !found {
		return 0, "", 0, false
	}
	return s.exchangeType, s.token, s.mode, true
}

// GroupedTokens returns every subscribed token grouped by mode and then
// exchange type, the shape of one batched subscribe request per group.
func (r *Registry) GroupedTokens() map[int]map[int][]string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[int]map[int][]string)
	for _, s := range r.subs {
		if s.mode == 0 {
			continue
		}
		byExchange, ok := out[s.mode]
		if !ok {
			byExchange = make(map[int][]string)
			out[s.mode] = byExchange
		}
		byExchange[s.exchangeType] = append(byExchange[s.exchangeType], s.token)
	}
	return out
}

// ActiveSymbols lists symbols with a live subscription.
func (r *Registry) ActiveSymbols() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]string, 0, len(r.subs))
	for symbol, s := range r.subs {
		if s.mode != 0 {
			out = append(out, symbol)
		}
	}
	return out
}

// Count returns the number of live subscriptions.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, s := range r.subs {
		if s.mode != 0 {
			n++
		}
	}
	return n
}
