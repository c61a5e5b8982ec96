package session

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/rocketscienceinc/tictactoe-session/internal/entity"
)

// ConnectionContext is everything the actor knows about one live connection.
type ConnectionContext struct {
	ID          uuid.UUID
	Addr        string
	Role        entity.Role
	ConnectedAt time.Time

	cancel       context.CancelFunc
	subscription *Subscription
}

// Label - the name used for this connection in chat and server info.
func (that *ConnectionContext) Label() string {
	return that.Role.Label(that.Addr)
}

// Registry maps connection ids to their context. Only the actor goroutine uses it.
type Registry struct {
	conns map[uuid.UUID]*ConnectionContext
}

func NewRegistry() *Registry {
	return &Registry{
		conns: make(map[uuid.UUID]*ConnectionContext),
	}
}

// Add - registers cc. Returns false, leaving the registry untouched, if the id is already present.
func (that *Registry) Add(cc *ConnectionContext) bool {
	if _, exists := that.conns[cc.ID]; exists {
		return false
	}

	that.conns[cc.ID] = cc

	return true
}

func (that *Registry) Get(id uuid.UUID) (*ConnectionContext, bool) {
	cc, ok := that.conns[id]
	return cc, ok
}

func (that *Registry) Remove(id uuid.UUID) (*ConnectionContext, bool) {
	cc, ok := that.conns[id]
	if ok {
		delete(that.conns, id)
	}
	return cc, ok
}

func (that *Registry) Len() int {
	return len(that.conns)
}

// HasHost - reports whether any live connection holds the host role.
func (that *Registry) HasHost() bool {
	for _, cc := range that.conns {
		if cc.Role.IsHost() {
			return true
		}
	}
	return false
}

// Colors - the colours currently held, mapped to the connection holding them.
func (that *Registry) Colors() map[entity.Player]*ConnectionContext {
	colors := make(map[entity.Player]*ConnectionContext, 2)
	for _, cc := range that.conns {
		if color, ok := cc.Role.Color(); ok {
			colors[color] = cc
		}
	}
	return colors
}

// All - every context, oldest connection first.
func (that *Registry) All() []*ConnectionContext {
	all := make([]*ConnectionContext, 0, len(that.conns))
	for _, cc := range that.conns {
		all = append(all, cc)
	}

	sort.Slice(all, func(i, j int) bool {
		return all[i].ConnectedAt.Before(all[j].ConnectedAt)
	})

	return all
}
