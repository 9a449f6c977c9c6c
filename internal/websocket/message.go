package websocket

import (
	"encoding/json"

	"github.com/tariel-x/affiliates/internal/leaderboard"
)

const (
	TypeLeaderboard = "leaderboard"
	TypeFinal       = "final-results"
)

// Envelope is the only frame the server sends.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

func EncodeBoards(b leaderboard.Boards, final bool) ([]byte, error) {
	data, err := json.Marshal(b)
	if err != nil {
		return nil, err
	}
	typ := TypeLeaderboard
	if final {
		typ = TypeFinal
	}
	return json.Marshal(Envelope{Type: typ, Data: data})
}
