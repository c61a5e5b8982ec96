package protocol

import (
	"github.com/rocketscienceinc/tictactoe-session/internal/entity"
)

// Type is the category of a message on the wire.
type Type string

const (
	TypeRequest      Type = "request"
	TypeResponse     Type = "response"
	TypeError        Type = "error"
	TypeNotification Type = "notification"
)

const (
	ActionJoinMatch     = "match:join"
	ActionGameInfo      = "game:info"
	ActionChat          = "chat"
	ActionPlayTurn      = "game:turn"
	ActionDisconnect    = "disconnect"
	ActionAck           = "ack"
	ActionJoined        = "match:joined"
	ActionGameConcluded = "game:concluded"
	ActionServerInfo    = "server_info"
)

// Message is anything that can be framed onto the wire.
type Message interface {
	Type() Type
	Action() string
}

// Request is sent by clients.
type Request interface {
	Message
	isRequest()
}

// Response is a successful answer to a Request.
type Response interface {
	Message
	isResponse()
}

// Notification is pushed to every connection without being asked for.
type Notification interface {
	Message
	isNotification()
}

type JoinMatch struct {
	Player *entity.Player `json:"player"`
}

type GetGameInfo struct{}

type Chat struct {
	Msg string `json:"msg"`
}

type PlayTurn struct {
	Tile entity.TileID `json:"tile"`
}

type Disconnect struct{}

func (JoinMatch) Type() Type   { return TypeRequest }
func (GetGameInfo) Type() Type { return TypeRequest }
func (Chat) Type() Type        { return TypeRequest }
func (PlayTurn) Type() Type    { return TypeRequest }
func (Disconnect) Type() Type  { return TypeRequest }

func (JoinMatch) Action() string   { return ActionJoinMatch }
func (GetGameInfo) Action() string { return ActionGameInfo }
func (Chat) Action() string        { return ActionChat }
func (PlayTurn) Action() string    { return ActionPlayTurn }
func (Disconnect) Action() string  { return ActionDisconnect }

func (JoinMatch) isRequest()   {}
func (GetGameInfo) isRequest() {}
func (Chat) isRequest()        {}
func (PlayTurn) isRequest()    {}
func (Disconnect) isRequest()  {}

type Ack struct{}

type GameInfo struct {
	Game entity.Game `json:"game"`
}

type Joined struct {
	Player *entity.Player `json:"player"`
}

type TurnDone struct {
	Game entity.Game `json:"game"`
}

type GameConcluded struct {
	Conclusion entity.Conclusion `json:"conclusion"`
}

func (Ack) Type() Type           { return TypeResponse }
func (GameInfo) Type() Type      { return TypeResponse }
func (Joined) Type() Type        { return TypeResponse }
func (TurnDone) Type() Type      { return TypeResponse }
func (GameConcluded) Type() Type { return TypeResponse }

func (Ack) Action() string           { return ActionAck }
func (GameInfo) Action() string      { return ActionGameInfo }
func (Joined) Action() string        { return ActionJoined }
func (TurnDone) Action() string      { return ActionPlayTurn }
func (GameConcluded) Action() string { return ActionGameConcluded }

func (Ack) isResponse()           {}
func (GameInfo) isResponse()      {}
func (Joined) isResponse()        {}
func (TurnDone) isResponse()      {}
func (GameConcluded) isResponse() {}

type ChatNotification struct {
	From string `json:"from"`
	Msg  string `json:"msg"`
}

type ServerInfo struct {
	Text string `json:"text"`
}

func (ChatNotification) Type() Type { return TypeNotification }
func (ServerInfo) Type() Type       { return TypeNotification }

func (ChatNotification) Action() string { return ActionChat }
func (ServerInfo) Action() string       { return ActionServerInfo }

func (ChatNotification) isNotification() {}
func (ServerInfo) isNotification()       {}

// JoinedAs - helper for the Joined response carrying a colour.
func JoinedAs(player entity.Player) Joined {
	return Joined{Player: &player}
}
