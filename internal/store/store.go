// Package store persists team and user records in SQLite.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotFound reports an absent record. Callers decide fallback behavior,
// e.g. proceeding with a freshly constructed default record.
var ErrNotFound = errors.New("store: not found")

// Team is one tenant organization: its bot credential and identity, plus the
// user that installed the bot.
type Team struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	BotToken    string    `json:"bot_token"`
	BotUserID   string    `json:"bot_user_id"`
	BotUserName string    `json:"bot_user_name"`
	CreatedBy   string    `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// HasBot reports whether the team completed authorization with a bot user.
func (t Team) HasBot() bool {
	return strings.TrimSpace(t.BotToken) != "" && strings.TrimSpace(t.BotUserID) != ""
}

// User is one known chat user.
type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store is the SQLite-backed team/user store.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the store at dbPath.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", "file:"+dbPath+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open store db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	// Best-effort migration for dbs created before bot_user_name existed.
	_, _ = db.Exec(`ALTER TABLE teams ADD COLUMN bot_user_name TEXT DEFAULT ''`)
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

const schema = `
CREATE TABLE IF NOT EXISTS teams (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL DEFAULT '',
	bot_token TEXT NOT NULL DEFAULT '',
	bot_user_id TEXT NOT NULL DEFAULT '',
	bot_user_name TEXT NOT NULL DEFAULT '',
	created_by TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_teams_bot_token ON teams(bot_token);

CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// SaveTeam inserts or updates a team record.
func (s *Store) SaveTeam(t Team) error {
	if strings.TrimSpace(t.ID) == "" {
		return errors.New("store: team id required")
	}
	_, err := s.db.Exec(`
		INSERT INTO teams (id, name, bot_token, bot_user_id, bot_user_name, created_by, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			bot_token = excluded.bot_token,
			bot_user_id = excluded.bot_user_id,
			bot_user_name = excluded.bot_user_name,
			created_by = excluded.created_by,
			updated_at = CURRENT_TIMESTAMP`,
		t.ID, t.Name, t.BotToken, t.BotUserID, t.BotUserName, t.CreatedBy)
	if err != nil {
		return fmt.Errorf("store: save team %s: %w", t.ID, err)
	}
	return nil
}

// GetTeam fetches a team by id.
func (s *Store) GetTeam(id string) (Team, error) {
	row := s.db.QueryRow(`
		SELECT id, name, bot_token, bot_user_id, bot_user_name, created_by, created_at, updated_at
		FROM teams WHERE id = ?`, id)
	return scanTeam(row)
}

// GetTeamByToken fetches a team by its bot credential token.
func (s *Store) GetTeamByToken(token string) (Team, error) {
	row := s.db.QueryRow(`
		SELECT id, name, bot_token, bot_user_id, bot_user_name, created_by, created_at, updated_at
		FROM teams WHERE bot_token = ?`, token)
	return scanTeam(row)
}

// AllTeams returns every stored team, oldest first.
func (s *Store) AllTeams() ([]Team, error) {
	rows, err := s.db.Query(`
		SELECT id, name, bot_token, bot_user_id, bot_user_name, created_by, created_at, updated_at
		FROM teams ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("store: list teams: %w", err)
	}
	defer rows.Close()

	var out []Team
	for rows.Next() {
		var t Team
		if err := rows.Scan(&t.ID, &t.Name, &t.BotToken, &t.BotUserID, &t.BotUserName,
			&t.CreatedBy, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("store: scan team: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// RemoveTeam deletes a team record.
func (s *Store) RemoveTeam(id string) error {
	_, err := s.db.Exec(`DELETE FROM teams WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("store: remove team %s: %w", id, err)
	}
	return nil
}

// SaveUser inserts or updates a user record.
func (s *Store) SaveUser(u User) error {
	if strings.TrimSpace(u.ID) == "" {
		return errors.New("store: user id required")
	}
	_, err := s.db.Exec(`
		INSERT INTO users (id, name, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			updated_at = CURRENT_TIMESTAMP`,
		u.ID, u.Name)
	if err != nil {
		return fmt.Errorf("store: save user %s: %w", u.ID, err)
	}
	return nil
}

// GetUser fetches a user by id.
func (s *Store) GetUser(id string) (User, error) {
	var u User
	err := s.db.QueryRow(`SELECT id, name, created_at, updated_at FROM users WHERE id = ?`, id).
		Scan(&u.ID, &u.Name, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("store: get user %s: %w", id, err)
	}
	return u, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTeam(row rowScanner) (Team, error) {
	var t Team
	err := row.Scan(&t.ID, &t.Name, &t.BotToken, &t.BotUserID, &t.BotUserName,
		&t.CreatedBy, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Team{}, ErrNotFound
	}
	if err != nil {
		return Team{}, fmt.Errorf("store: get team: %w", err)
	}
	return t, nil
}
