package entity

import "time"

// MatchRecord is the archived outcome of a concluded match.
type MatchRecord struct {
	ID          string            `json:"id"`
	Board       Board             `json:"board"`
	Conclusion  Conclusion        `json:"conclusion"`
	Players     map[Player]string `json:"players"`
	Forfeit     bool              `json:"forfeit,omitempty"`
	StartedAt   time.Time         `json:"started_at"`
	ConcludedAt time.Time         `json:"concluded_at"`
}
