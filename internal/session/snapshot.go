package session

import (
	"time"

	"github.com/rocketscienceinc/tictactoe-session/internal/entity"
)

// Snapshot is a point-in-time copy of the session, safe to use outside the actor.
type Snapshot struct {
	Phase       Phase            `json:"phase"`
	Game        *entity.Game     `json:"game,omitempty"`
	Connections []ConnectionInfo `json:"connections"`
}

type ConnectionInfo struct {
	ID          string      `json:"id"`
	Addr        string      `json:"addr"`
	Role        entity.Role `json:"role"`
	ConnectedAt time.Time   `json:"connected_at"`
}

func (that *Server) snapshot() Snapshot {
	snapshot := Snapshot{
		Phase:       that.phase,
		Connections: make([]ConnectionInfo, 0, that.registry.Len()),
	}

	if that.game != nil {
		game := *that.game
		snapshot.Game = &game
	}

	for _, cc := range that.registry.All() {
		snapshot.Connections = append(snapshot.Connections, ConnectionInfo{
			ID:          cc.ID.String(),
			Addr:        cc.Addr,
			Role:        cc.Role,
			ConnectedAt: cc.ConnectedAt,
		})
	}

	return snapshot
}
