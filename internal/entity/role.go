package entity

import (
	"fmt"

	"github.com/rocketscienceinc/tictactoe-session/internal/apperror"
)

const (
	RoleHost     = "host"
	RoleObserver = "observer"
	RolePlayer   = "player"
)

// Role is a connection's standing in the match: Host(optional colour), Observer or Player(colour).
type Role struct {
	Kind   string `json:"kind"`
	Player Player `json:"player,omitempty"`
}

func HostRole() Role {
	return Role{Kind: RoleHost}
}

func ObserverRole() Role {
	return Role{Kind: RoleObserver}
}

func (that Role) IsHost() bool {
	return that.Kind == RoleHost
}

// Color - the colour this role plays, if any.
func (that Role) Color() (Player, bool) {
	if that.Player.Valid() {
		return that.Player, true
	}
	return EmptyCell, false
}

// Join - Observer becomes Player(p), Host(none) becomes Host(p). A role that already has a colour
// cannot join again.
func (that Role) Join(player Player) (Role, error) {
	if !player.Valid() {
		return that, fmt.Errorf("%w: %q", apperror.ErrInvalidPlayer, string(player))
	}

	if _, ok := that.Color(); ok {
		return that, apperror.ErrAlreadyJoined
	}

	switch that.Kind {
	case RoleHost:
		return Role{Kind: RoleHost, Player: player}, nil
	default:
		return Role{Kind: RolePlayer, Player: player}, nil
	}
}

// Label - the name other participants see for this role.
func (that Role) Label(addr string) string {
	switch that.Kind {
	case RoleHost:
		if color, ok := that.Color(); ok {
			return fmt.Sprintf("%s (host)", color)
		}
		return "host"
	case RolePlayer:
		return that.Player.String()
	default:
		return addr
	}
}
