package store

import (
	"database/sql"
	"sync"
	"time"

	_ "github.com/glebarez/go-sqlite"
)

// HistoryStore persists interaction records across sessions.
// Appends are serialized through a mutex so concurrent sessions can share
// one store without interleaving writes.
type HistoryStore struct {
	DB *sql.DB

	mu sync.Mutex
}

func NewHistoryStore(dbPath string) (*HistoryStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	query := `CREATE TABLE IF NOT EXISTS records (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp TEXT,
		user TEXT,
		assistant TEXT,
		tool TEXT,
		success INTEGER,
		result TEXT
	);`
	if _, err := db.Exec(query); err != nil {
		return nil, err
	}

	return &HistoryStore{DB: db}, nil
}

// Append writes one record. The timestamp defaults to now when unset.
func (h *HistoryStore) Append(rec Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}

	success := 0
	if rec.Success {
		success = 1
	}

	query := `INSERT INTO records (timestamp, user, assistant, tool, success, result) VALUES (?, ?, ?, ?, ?, ?)`
	_, err := h.DB.Exec(query, rec.Timestamp.Format(time.RFC3339), rec.User, rec.Assistant, rec.Tool, success, rec.Result)
	return err
}

// All returns every record in chronological order. An empty store yields an
// empty slice, not an error.
func (h *HistoryStore) All() ([]Record, error) {
	rows, err := h.DB.Query(`SELECT timestamp, user, assistant, tool, success, result FROM records ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var ts, user, assistant, tool, result string
		var success int
		if err := rows.Scan(&ts, &user, &assistant, &tool, &success, &result); err != nil {
			return nil, err
		}

		rec := Record{
			User:      user,
			Assistant: assistant,
			Tool:      tool,
			Success:   success == 1,
			Result:    result,
		}
		// Tolerate unparsable timestamps; the scorer treats a zero
		// timestamp as unknown age.
		if parsed, err := time.Parse(time.RFC3339, ts); err == nil {
			rec.Timestamp = parsed
		}
		records = append(records, rec)
	}

	return records, rows.Err()
}

func (h *HistoryStore) Close() error {
	return h.DB.Close()
}
