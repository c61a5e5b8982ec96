package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

var ErrMalformed = errors.New("malformed message")

// envelope is the JSON object sent on every line.
type envelope struct {
	Type    Type            `json:"type"`
	Action  string          `json:"action"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

var emptyPayload = []byte("{}")

// Marshal - encodes a message as a single-line JSON document without the trailing newline.
func Marshal(msg Message) ([]byte, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", msg.Action(), err)
	}

	env := envelope{
		Type:   msg.Type(),
		Action: msg.Action(),
	}
	if !bytes.Equal(payload, emptyPayload) {
		env.Payload = payload
	}

	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal envelope: %w", err)
	}

	return data, nil
}

type decodeFunc func(payload json.RawMessage) (Message, error)

var decoders = map[Type]map[string]decodeFunc{
	TypeRequest: {
		ActionJoinMatch:  decodeAs[JoinMatch](false),
		ActionGameInfo:   decodeAs[GetGameInfo](false),
		ActionChat:       decodeAs[Chat](true),
		ActionPlayTurn:   decodeAs[PlayTurn](true),
		ActionDisconnect: decodeAs[Disconnect](false),
	},
	TypeResponse: {
		ActionAck:           decodeAs[Ack](false),
		ActionGameInfo:      decodeAs[GameInfo](true),
		ActionJoined:        decodeAs[Joined](false),
		ActionPlayTurn:      decodeAs[TurnDone](true),
		ActionGameConcluded: decodeAs[GameConcluded](true),
	},
	TypeNotification: {
		ActionChat:       decodeAs[ChatNotification](true),
		ActionServerInfo: decodeAs[ServerInfo](true),
	},
}

// Unmarshal - decodes one JSON document. Every failure wraps ErrMalformed.
func Unmarshal(data []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}

	if env.Type == TypeError {
		return decodeError(env)
	}

	actions, ok := decoders[env.Type]
	if !ok {
		return nil, fmt.Errorf("%w: unknown type %q", ErrMalformed, env.Type)
	}

	decode, ok := actions[env.Action]
	if !ok {
		return nil, fmt.Errorf("%w: unknown %s action %q", ErrMalformed, env.Type, env.Action)
	}

	msg, err := decode(env.Payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %w", ErrMalformed, env.Type, env.Action, err)
	}

	return msg, nil
}

func decodeError(env envelope) (Message, error) {
	code := ErrorCode(env.Action)
	if !knownCodes[code] {
		return nil, fmt.Errorf("%w: unknown error code %q", ErrMalformed, env.Action)
	}

	msg := &Error{}
	if err := strictDecode(env.Payload, msg); err != nil {
		return nil, fmt.Errorf("%w: error %s: %w", ErrMalformed, env.Action, err)
	}
	msg.Code = code

	return msg, nil
}

var errMissingPayload = errors.New("missing payload")

func decodeAs[T Message](required bool) decodeFunc {
	return func(payload json.RawMessage) (Message, error) {
		var msg T
		if isEmpty(payload) {
			if required {
				return nil, errMissingPayload
			}
			return msg, nil
		}

		if err := strictDecode(payload, &msg); err != nil {
			return nil, err
		}

		return msg, nil
	}
}

func strictDecode(payload json.RawMessage, v any) error {
	if isEmpty(payload) {
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.DisallowUnknownFields()

	return dec.Decode(v)
}

func isEmpty(payload json.RawMessage) bool {
	return len(payload) == 0 || bytes.Equal(bytes.TrimSpace(payload), []byte("null"))
}
