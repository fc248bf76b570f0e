package main

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"

	_ "modernc.org/sqlite"
)

// Profile is the persisted account state loaded at join
type Profile struct {
	PlayerID  int64
	Nickname  string
	Admin     bool
	Rank      int
	HP        int
	Shield    int
	Upgrades  Upgrades
	Inventory Inventory
}

// LeaderboardEntry is one row of the ranking query
type LeaderboardEntry struct {
	Rank       int    `json:"rank"`
	Nickname   string `json:"nickname"`
	Experience int    `json:"experience"`
	Honor      int    `json:"honor"`
	Credits    int    `json:"credits"`
}

// ProfileService is the persistence collaborator the world depends on.
// The production implementation is the SQLite-backed ProfileStore; tests
// substitute stubs.
type ProfileService interface {
	Load(playerID int64) (*Profile, error)
	Save(s *PlayerSession) error
	Leaderboard(orderBy string, limit int) ([]LeaderboardEntry, error)
}

// Profile failure classes. Each maps to a distinct outbound error code.
const (
	ProfileErrNotFound   = "not_found"
	ProfileErrAccess     = "access_denied"
	ProfileErrConnection = "connection_failure"
	ProfileErrSchema     = "schema_mismatch"
)

// ProfileError is a classified collaborator failure
type ProfileError struct {
	Class string
	Err   error
}

func (e *ProfileError) Error() string {
	if e.Err != nil {
		return e.Class + ": " + e.Err.Error()
	}
	return e.Class
}

func (e *ProfileError) Unwrap() error { return e.Err }

// classifyProfileErr maps a collaborator failure to its outbound error
// code. Unclassified errors are inspected by message content.
func classifyProfileErr(err error) string {
	var pe *ProfileError
	if errors.As(err, &pe) {
		switch pe.Class {
		case ProfileErrNotFound:
			return ErrCodeNotFound
		case ProfileErrAccess:
			return ErrCodeAccessDenied
		case ProfileErrSchema:
			return ErrCodeSchemaMismatch
		default:
			return ErrCodeConnectionFailed
		}
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "denied") || strings.Contains(msg, "permission"):
		return ErrCodeAccessDenied
	case strings.Contains(msg, "no such") || strings.Contains(msg, "column") || strings.Contains(msg, "scan"):
		return ErrCodeSchemaMismatch
	default:
		return ErrCodeConnectionFailed
	}
}

// ProfileStore wraps the SQLite database
type ProfileStore struct {
	conn *sql.DB
}

// OpenProfileStore opens (or creates) the profile database
func OpenProfileStore(path string) (*ProfileStore, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// WAL for concurrent readers next to the writer goroutines
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, err
	}
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, err
	}

	ps := &ProfileStore{conn: conn}
	if err := ps.migrate(); err != nil {
		conn.Close()
		return nil, err
	}
	return ps, nil
}

// Close closes the database connection
func (ps *ProfileStore) Close() error {
	return ps.conn.Close()
}

// migrate creates tables if they don't exist
func (ps *ProfileStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS players (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT NOT NULL UNIQUE,
		pass_hash TEXT NOT NULL DEFAULT '',
		nickname TEXT NOT NULL DEFAULT '',
		admin INTEGER NOT NULL DEFAULT 0,
		rank INTEGER NOT NULL DEFAULT 0,
		hp INTEGER NOT NULL DEFAULT 4000,
		shield INTEGER NOT NULL DEFAULT 2000,
		up_hp INTEGER NOT NULL DEFAULT 0,
		up_shield INTEGER NOT NULL DEFAULT 0,
		up_speed INTEGER NOT NULL DEFAULT 0,
		up_damage INTEGER NOT NULL DEFAULT 0,
		credits INTEGER NOT NULL DEFAULT 10000,
		cosmos INTEGER NOT NULL DEFAULT 0,
		experience INTEGER NOT NULL DEFAULT 0,
		honor INTEGER NOT NULL DEFAULT 0,
		ammo INTEGER NOT NULL DEFAULT 1000,
		rockets INTEGER NOT NULL DEFAULT 50,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		type TEXT NOT NULL,
		player_id INTEGER NOT NULL DEFAULT 0,
		detail TEXT NOT NULL DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_players_username ON players(username);
	CREATE INDEX IF NOT EXISTS idx_events_player ON events(player_id);
	`
	_, err := ps.conn.Exec(schema)
	if err != nil {
		log.Printf("profile store migration error: %v", err)
	}
	return err
}

// Load fetches a profile. Fails classified: a non-positive id is an
// access violation, a missing row is not-found, scan failures are schema
// mismatches and anything else is a connection failure.
func (ps *ProfileStore) Load(playerID int64) (*Profile, error) {
	if playerID <= 0 {
		return nil, &ProfileError{Class: ProfileErrAccess, Err: fmt.Errorf("invalid player id %d", playerID)}
	}
	row := ps.conn.QueryRow(`
		SELECT id, nickname, admin, rank, hp, shield,
			up_hp, up_shield, up_speed, up_damage,
			credits, cosmos, experience, honor, ammo, rockets
		FROM players WHERE id = ?`, playerID)

	p := &Profile{}
	var admin int
	err := row.Scan(&p.PlayerID, &p.Nickname, &admin, &p.Rank, &p.HP, &p.Shield,
		&p.Upgrades.HP, &p.Upgrades.Shield, &p.Upgrades.Speed, &p.Upgrades.Damage,
		&p.Inventory.Credits, &p.Inventory.Cosmos, &p.Inventory.Experience,
		&p.Inventory.Honor, &p.Inventory.Ammo, &p.Inventory.Rockets)
	if err == sql.ErrNoRows {
		return nil, &ProfileError{Class: ProfileErrNotFound, Err: err}
	}
	if err != nil {
		return nil, &ProfileError{Class: ProfileErrSchema, Err: err}
	}
	p.Admin = admin != 0
	return p, nil
}

// Save persists a session's mutable state
func (ps *ProfileStore) Save(s *PlayerSession) error {
	res, err := ps.conn.Exec(`
		UPDATE players SET
			nickname = ?, rank = ?, hp = ?, shield = ?,
			up_hp = ?, up_shield = ?, up_speed = ?, up_damage = ?,
			credits = ?, cosmos = ?, experience = ?, honor = ?,
			ammo = ?, rockets = ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`,
		s.Nickname, s.Rank, s.HP, s.Shield,
		s.Upgrades.HP, s.Upgrades.Shield, s.Upgrades.Speed, s.Upgrades.Damage,
		s.Inventory.Credits, s.Inventory.Cosmos, s.Inventory.Experience,
		s.Inventory.Honor, s.Inventory.Ammo, s.Inventory.Rockets,
		s.PlayerID)
	if err != nil {
		return &ProfileError{Class: ProfileErrConnection, Err: err}
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &ProfileError{Class: ProfileErrNotFound, Err: fmt.Errorf("player %d", s.PlayerID)}
	}
	return nil
}

// Leaderboard returns the top players by the given column. Order columns
// are whitelisted; unknown values fall back to experience.
func (ps *ProfileStore) Leaderboard(orderBy string, limit int) ([]LeaderboardEntry, error) {
	validCols := map[string]string{
		"experience": "experience",
		"honor":      "honor",
		"credits":    "credits",
		"rank":       "rank",
	}
	col, ok := validCols[orderBy]
	if !ok {
		col = "experience"
	}

	rows, err := ps.conn.Query(
		`SELECT nickname, experience, honor, credits FROM players ORDER BY `+col+` DESC LIMIT ?`,
		limit)
	if err != nil {
		return nil, &ProfileError{Class: ProfileErrConnection, Err: err}
	}
	defer rows.Close()

	var result []LeaderboardEntry
	rank := 1
	for rows.Next() {
		var e LeaderboardEntry
		if err := rows.Scan(&e.Nickname, &e.Experience, &e.Honor, &e.Credits); err != nil {
			return nil, &ProfileError{Class: ProfileErrSchema, Err: err}
		}
		e.Rank = rank
		rank++
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, &ProfileError{Class: ProfileErrConnection, Err: err}
	}
	return result, nil
}

// CreateAccount inserts a new player row and returns its id
func (ps *ProfileStore) CreateAccount(username, passHash, nickname string) (int64, error) {
	res, err := ps.conn.Exec(
		"INSERT INTO players (username, pass_hash, nickname) VALUES (?, ?, ?)",
		username, passHash, nickname)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// AccountByUsername returns (id, passHash) for a username, or not-found
func (ps *ProfileStore) AccountByUsername(username string) (int64, string, error) {
	var id int64
	var hash string
	err := ps.conn.QueryRow(
		"SELECT id, pass_hash FROM players WHERE username = ?",
		username).Scan(&id, &hash)
	if err == sql.ErrNoRows {
		return 0, "", &ProfileError{Class: ProfileErrNotFound, Err: err}
	}
	if err != nil {
		return 0, "", &ProfileError{Class: ProfileErrConnection, Err: err}
	}
	return id, hash, nil
}

// UsernameExists checks if a username is taken
func (ps *ProfileStore) UsernameExists(username string) (bool, error) {
	var count int
	err := ps.conn.QueryRow("SELECT COUNT(*) FROM players WHERE username = ?", username).Scan(&count)
	return count > 0, err
}

// GetSetting reads a settings value, "" when absent
func (ps *ProfileStore) GetSetting(key string) string {
	var v string
	if err := ps.conn.QueryRow("SELECT value FROM settings WHERE key = ?", key).Scan(&v); err != nil {
		return ""
	}
	return v
}

// SetSetting upserts a settings value
func (ps *ProfileStore) SetSetting(key, value string) error {
	_, err := ps.conn.Exec(
		"INSERT INTO settings (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, value)
	return err
}

// RecordEvent persists one gameplay event (called from the event writer)
func (ps *ProfileStore) RecordEvent(evtType string, playerID int64, detail string) error {
	_, err := ps.conn.Exec(
		"INSERT INTO events (type, player_id, detail) VALUES (?, ?, ?)",
		evtType, playerID, detail)
	return err
}
