package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/rocketscienceinc/tictactoe-session/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-session/internal/entity"
	"github.com/rocketscienceinc/tictactoe-session/internal/protocol"
)

type handlerFunc func(cc *ConnectionContext, req protocol.Request) (protocol.Response, error)

func (that *Server) dispatch(cc *ConnectionContext, req protocol.Request) (protocol.Response, error) {
	handler, ok := that.handlers[req.Action()]
	if !ok {
		return nil, fmt.Errorf("no handler for %q", req.Action())
	}

	if that.phase == PhaseWaitingForHost && !allowedBeforeHost(cc, req) {
		return nil, protocol.ErrWaitingForHost
	}

	return handler(cc, req)
}

// allowedBeforeHost - until the host joins, only chat and the host's own join go through.
func allowedBeforeHost(cc *ConnectionContext, req protocol.Request) bool {
	switch req.(type) {
	case protocol.Chat:
		return true
	case protocol.JoinMatch:
		return cc.Role.IsHost()
	default:
		return false
	}
}

func (that *Server) handleChat(cc *ConnectionContext, req protocol.Request) (protocol.Response, error) {
	chat := req.(protocol.Chat)

	that.publish(protocol.ChatNotification{From: cc.Label(), Msg: chat.Msg})

	return protocol.Ack{}, nil
}

func (that *Server) handleJoinMatch(cc *ConnectionContext, req protocol.Request) (protocol.Response, error) {
	log := that.logger.With("method", "handleJoinMatch")
	join := req.(protocol.JoinMatch)

	if join.Player != nil && !join.Player.Valid() {
		return nil, protocol.InvalidParam(fmt.Sprintf("player must be %s or %s", entity.PlayerO, entity.PlayerX))
	}

	if that.phase == PhasePlaying {
		return nil, protocol.ErrMatchInProgress
	}

	if _, ok := cc.Role.Color(); ok {
		return nil, protocol.ErrNotAllowed
	}

	color, err := that.pickColor(join.Player)
	if err != nil {
		return nil, err
	}

	role, err := cc.Role.Join(color)
	if err != nil {
		if errors.Is(err, apperror.ErrAlreadyJoined) {
			return nil, protocol.ErrNotAllowed
		}
		return nil, protocol.InvalidParam(err.Error())
	}
	cc.Role = role

	log.Info("joined match", "id", cc.ID, "player", color, "role", role.Kind)
	that.publish(protocol.ServerInfo{Text: fmt.Sprintf("%s joined the match as %s", cc.Addr, color)})

	if that.phase == PhaseWaitingForHost {
		that.phase = PhaseWaitingForPlayers
	}

	if len(that.registry.Colors()) == 2 {
		that.startMatch()
	}

	return protocol.JoinedAs(color), nil
}

// pickColor - the first participant chooses (O by default); everyone after gets the colour left over.
func (that *Server) pickColor(requested *entity.Player) (entity.Player, error) {
	taken := that.registry.Colors()

	switch len(taken) {
	case 0:
		if requested != nil {
			return *requested, nil
		}
		return entity.PlayerO, nil
	case 1:
		for color := range taken {
			return color.Opponent(), nil
		}
	}

	return entity.EmptyCell, protocol.ErrMatchInProgress
}

func (that *Server) handleGameInfo(_ *ConnectionContext, _ protocol.Request) (protocol.Response, error) {
	if that.phase != PhasePlaying {
		return nil, protocol.ErrNotAllowed
	}

	return protocol.GameInfo{Game: *that.game}, nil
}

func (that *Server) handlePlayTurn(cc *ConnectionContext, req protocol.Request) (protocol.Response, error) {
	log := that.logger.With("method", "handlePlayTurn")
	turn := req.(protocol.PlayTurn)

	if that.phase != PhasePlaying {
		return nil, protocol.ErrNotAllowed
	}

	color, ok := cc.Role.Color()
	if !ok {
		return nil, protocol.ErrNotAllowed
	}

	err := that.game.MakeTurn(color, turn.Tile)
	switch {
	case errors.Is(err, apperror.ErrGameFinished):
		conclusion, _ := that.game.Conclusion()
		return nil, protocol.GameConcludedError(conclusion)
	case errors.Is(err, apperror.ErrInvalidTile), errors.Is(err, apperror.ErrCellOccupied):
		return nil, protocol.ErrInvalidTile
	case errors.Is(err, apperror.ErrNotYourTurn):
		return nil, protocol.ErrNotYourTurn
	case err != nil:
		return nil, err
	}

	log.Debug("turn played", "id", cc.ID, "player", color, "tile", turn.Tile)
	that.publish(protocol.ServerInfo{Text: fmt.Sprintf("%s marked %s", cc.Label(), turn.Tile)})

	if conclusion, concluded := that.game.Conclusion(); concluded {
		that.publish(protocol.ServerInfo{Text: "game concluded: " + conclusion.String()})
		that.archiveMatch(false)
	}

	return protocol.TurnDone{Game: *that.game}, nil
}

func (that *Server) startMatch() {
	log := that.logger.With("method", "startMatch")

	that.game = entity.NewGame(entity.PlayerO)
	that.phase = PhasePlaying
	that.matchID = uuid.New()
	that.startedAt = time.Now()

	that.players = make(map[entity.Player]string, 2)
	for color, cc := range that.registry.Colors() {
		that.players[color] = cc.Addr
	}

	log.Info("match started", "match", that.matchID)
	that.publish(protocol.ServerInfo{Text: fmt.Sprintf("match started, %s moves first", entity.PlayerO)})
}

// forfeitIfPlaying - a colour holder leaving an unfinished match hands the win to the opponent.
func (that *Server) forfeitIfPlaying(cc *ConnectionContext) {
	if that.phase != PhasePlaying || that.game.IsConcluded() {
		return
	}

	color, ok := cc.Role.Color()
	if !ok {
		return
	}

	that.game.Forfeit(color)
	conclusion, _ := that.game.Conclusion()

	that.logger.Info("match forfeited", "match", that.matchID, "player", color)
	that.publish(protocol.ServerInfo{Text: fmt.Sprintf("%s forfeited, game concluded: %s", color, conclusion)})
	that.archiveMatch(true)
}

func (that *Server) archiveMatch(forfeit bool) {
	conclusion, ok := that.game.Conclusion()
	if !ok {
		return
	}

	that.metrics.MatchConcluded(conclusion.Outcome)

	if that.archive == nil {
		return
	}

	that.archive.Record(entity.MatchRecord{
		ID:          that.matchID.String(),
		Board:       that.game.Board,
		Conclusion:  conclusion,
		Players:     that.players,
		Forfeit:     forfeit,
		StartedAt:   that.startedAt,
		ConcludedAt: time.Now(),
	})
}
