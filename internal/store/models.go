package store

import "time"

// Record is one past interaction in the historical store. Records are
// append-only: once written they are never mutated or deleted.
type Record struct {
	Timestamp time.Time `json:"timestamp"`
	User      string    `json:"user"`
	Assistant string    `json:"assistant"`
	Tool      string    `json:"tool,omitempty"`
	Success   bool      `json:"success"`
	Result    string    `json:"result,omitempty"`
}
