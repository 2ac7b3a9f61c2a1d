package exchange

import (
	"fmt"
	"sort"
	"sync"

	"github.com/YasiruR/didcomm-engine/domain"
	"github.com/YasiruR/didcomm-engine/domain/messages"
	"github.com/samber/lo"
)

// Registry correlates local verkeys with the exchanges owning them so that
// inbound messages reach the exchange waiting for them
type Registry struct {
	exchanges map[string]*Exchange
	*sync.RWMutex
}

func NewRegistry() *Registry {
	return &Registry{exchanges: map[string]*Exchange{}, RWMutex: &sync.RWMutex{}}
}

func (r *Registry) Register(verkey string, ex *Exchange) {
	r.Lock()
	defer r.Unlock()
	r.exchanges[verkey] = ex
}

func (r *Registry) Lookup(verkey string) (*Exchange, bool) {
	r.RLock()
	defer r.RUnlock()
	ex, ok := r.exchanges[verkey]
	return ex, ok
}

// Remove deletes the mapping only if it still points to the given exchange
func (r *Registry) Remove(verkey string, ex *Exchange) {
	r.Lock()
	defer r.Unlock()
	if cur, ok := r.exchanges[verkey]; ok && cur == ex {
		delete(r.exchanges, verkey)
	}
}

func (r *Registry) Len() int {
	r.RLock()
	defer r.RUnlock()
	return len(r.exchanges)
}

type Protocols struct {
	protocols map[string]Protocol
	*sync.RWMutex
}

func NewProtocols(ps ...Protocol) *Protocols {
	p := &Protocols{protocols: map[string]Protocol{}, RWMutex: &sync.RWMutex{}}
	p.Register(ps...)
	return p
}

func (p *Protocols) Register(ps ...Protocol) {
	p.Lock()
	defer p.Unlock()
	for _, proto := range ps {
		p.protocols[proto.ID()] = proto
	}
}

func (p *Protocols) Protocol(id string) (Protocol, error) {
	p.RLock()
	defer p.RUnlock()

	proto, ok := p.protocols[messages.NormalizeType(id)]
	if !ok {
		return nil, fmt.Errorf(`protocol %s - %w`, id, domain.ErrUnsupportedProtocol)
	}
	return proto, nil
}

// ByMessageType resolves the protocol owning a message type
func (p *Protocols) ByMessageType(typ string) (Protocol, error) {
	proto, err := p.Protocol(messages.Family(typ))
	if err != nil {
		return nil, fmt.Errorf(`message type %s - %w`, typ, domain.ErrUnsupportedMessageType)
	}
	return proto, nil
}

func (p *Protocols) IDs() []string {
	p.RLock()
	defer p.RUnlock()

	ids := lo.Keys(p.protocols)
	sort.Strings(ids)
	return ids
}

func (p *Protocols) Features() []messages.Feature {
	p.RLock()
	defer p.RUnlock()

	ids := lo.Keys(p.protocols)
	sort.Strings(ids)
	return lo.Map(ids, func(id string, _ int) messages.Feature {
		return messages.Feature{Id: id, Roles: p.protocols[id].Roles()}
	})
}
