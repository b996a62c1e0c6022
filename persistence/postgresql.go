// persistence/postgresql.go
package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/tavern-games/gamesync/models"
)

// RoomStore is the room directory on raw database/sql. It is deliberately a
// separate store from the profile database: the directory is hot on every
// join and needs nothing from GORM.
type RoomStore struct {
	db *sql.DB
}

func NewRoomStore(host string, port int, user, password, dbname string) (*RoomStore, error) {
	connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		host, port, user, password, dbname)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := initRoomTables(db); err != nil {
		return nil, err
	}

	return &RoomStore{db: db}, nil
}

func initRoomTables(db *sql.DB) error {
	_, err := db.Exec(`
        CREATE TABLE IF NOT EXISTS rooms (
            id SERIAL PRIMARY KEY,
            code VARCHAR(8) UNIQUE NOT NULL,
            host_id VARCHAR(64) NOT NULL,
            game_type VARCHAR(32) NOT NULL,
            status VARCHAR(16) NOT NULL,
            stake INT NOT NULL DEFAULT 0,
            created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
        )
    `)
	if err != nil {
		return err
	}

	_, err = db.Exec(`
        CREATE INDEX IF NOT EXISTS idx_rooms_code ON rooms(code);
        CREATE INDEX IF NOT EXISTS idx_rooms_status ON rooms(status);
    `)
	return err
}

// CreateRoom inserts a new directory entry. A duplicate code surfaces as an
// error so the caller can retry with a fresh one.
func (s *RoomStore) CreateRoom(room *models.Room) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	query := `
        INSERT INTO rooms (code, host_id, game_type, status, stake)
        VALUES ($1, $2, $3, $4, $5)
    `
	_, err := s.db.ExecContext(ctx, query,
		room.Code, room.HostID, room.GameType, room.Status, room.Stake)
	return err
}

func (s *RoomStore) LookupRoom(code string) (*models.Room, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var room models.Room
	query := `
        SELECT code, host_id, game_type, status, stake, created_at
        FROM rooms WHERE code = $1
    `
	err := s.db.QueryRowContext(ctx, query, code).Scan(
		&room.Code, &room.HostID, &room.GameType, &room.Status, &room.Stake, &room.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrRoomNotFound
		}
		return nil, err
	}
	return &room, nil
}

func (s *RoomStore) UpdateRoomStatus(code, status string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	result, err := s.db.ExecContext(ctx,
		`UPDATE rooms SET status = $2 WHERE code = $1`, code, status)
	if err != nil {
		return err
	}
	if rows, err := result.RowsAffected(); err == nil && rows == 0 {
		return ErrRoomNotFound
	}
	return nil
}

// ListOpenRooms returns the joinable rooms for a game type, newest first.
func (s *RoomStore) ListOpenRooms(gameType string) ([]*models.Room, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	query := `
        SELECT code, host_id, game_type, status, stake, created_at
        FROM rooms
        WHERE game_type = $1 AND status = $2
        ORDER BY created_at DESC
        LIMIT 50
    `
	rows, err := s.db.QueryContext(ctx, query, gameType, models.RoomWaiting)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rooms []*models.Room
	for rows.Next() {
		var room models.Room
		if err := rows.Scan(&room.Code, &room.HostID, &room.GameType,
			&room.Status, &room.Stake, &room.CreatedAt); err != nil {
			return nil, err
		}
		rooms = append(rooms, &room)
	}
	return rooms, rows.Err()
}

func (s *RoomStore) Close() error {
	return s.db.Close()
}
