// Package sqlite implements store.CanvasStore on an embedded SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	sqlite "modernc.org/sqlite"

	"github.com/Parzival4o4/drawing-app/models"
	"github.com/Parzival4o4/drawing-app/store"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// SQLITE_CONSTRAINT_UNIQUE / SQLITE_CONSTRAINT_PRIMARYKEY
const (
	sqliteConstraintUnique     = 2067
	sqliteConstraintPrimaryKey = 1555
)

type CanvasStore struct {
	db        *sql.DB
	eventsDir string
}

// Open opens (or creates) the database at path and brings the schema to the
// latest version. eventsDir is where per-canvas event log files are placed.
// Use ":memory:" as path for tests.
func Open(ctx context.Context, path string, eventsDir string) (*CanvasStore, error) {
	if path == "" {
		return nil, errors.New("db path is required")
	}

	dsn := path
	if path != ":memory:" {
		// modernc SQLite uses a URI-like DSN; plain file paths are ok.
		dsn = fmt.Sprintf("file:%s?_pragma=foreign_keys(1)", path)
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	// Serialize writers through a single connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	if path != ":memory:" {
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode = WAL;"); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON;"); err != nil {
		_ = db.Close()
		return nil, err
	}

	if err := migrateUp(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &CanvasStore{db: db, eventsDir: eventsDir}, nil
}

func (s *CanvasStore) Close() error {
	return s.db.Close()
}

func migrateUp(db *sql.DB) error {
	sourceDriver, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return fmt.Errorf("failed to read migration files: %w", err)
	}

	dbDriver, err := migratesqlite.WithInstance(db, &migratesqlite.Config{})
	if err != nil {
		sourceDriver.Close()
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite", dbDriver)
	if err != nil {
		sourceDriver.Close()
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration failed: %w", err)
	}
	return nil
}

func isConstraintViolation(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		return se.Code() == sqliteConstraintUnique || se.Code() == sqliteConstraintPrimaryKey
	}
	return false
}

func nowUnix() int64 { return time.Now().Unix() }

// ===================== users =====================

func (s *CanvasStore) CreateUser(ctx context.Context, email, passwordHash, displayName string) (models.User, error) {
	if email == "" || passwordHash == "" || displayName == "" {
		return models.User{}, errors.New("email, password hash, and display name are required")
	}
	created := nowUnix()
	res, err := s.db.ExecContext(ctx, `
INSERT INTO users(email, display_name, password_hash, created_at) VALUES(?, ?, ?, ?)
`, email, displayName, passwordHash, created)
	if err != nil {
		if isConstraintViolation(err) {
			return models.User{}, store.ErrConflict
		}
		return models.User{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return models.User{}, err
	}
	return models.User{
		UserID:       id,
		Email:        email,
		DisplayName:  displayName,
		PasswordHash: passwordHash,
		Created:      created,
	}, nil
}

func (s *CanvasStore) GetUserByEmail(ctx context.Context, email string) (models.User, error) {
	return s.getUser(ctx, "SELECT user_id, email, display_name, password_hash, created_at FROM users WHERE email = ?", email)
}

func (s *CanvasStore) GetUserByID(ctx context.Context, userID int64) (models.User, error) {
	return s.getUser(ctx, "SELECT user_id, email, display_name, password_hash, created_at FROM users WHERE user_id = ?", userID)
}

func (s *CanvasStore) getUser(ctx context.Context, query string, arg any) (models.User, error) {
	var u models.User
	err := s.db.QueryRowContext(ctx, query, arg).
		Scan(&u.UserID, &u.Email, &u.DisplayName, &u.PasswordHash, &u.Created)
	if err == sql.ErrNoRows {
		return models.User{}, store.ErrItemNotFound
	}
	if err != nil {
		return models.User{}, err
	}
	return u, nil
}

func (s *CanvasStore) UpdateUserProfile(ctx context.Context, userID int64, email, displayName string) error {
	if email == "" || displayName == "" {
		return errors.New("email and display name are required")
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET email = ?, display_name = ? WHERE user_id = ?`,
		email, displayName, userID)
	if err != nil {
		if isConstraintViolation(err) {
			return store.ErrConflict
		}
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrItemNotFound
	}
	return nil
}

// ===================== canvases =====================

func (s *CanvasStore) CreateCanvas(ctx context.Context, name string, ownerUserID int64) (models.Canvas, error) {
	if name == "" {
		return models.Canvas{}, errors.New("canvas name is required")
	}

	id, err := uuid.NewV4()
	if err != nil {
		return models.Canvas{}, err
	}
	canvas := models.Canvas{
		CanvasID:      id.String(),
		Name:          name,
		OwnerUserID:   ownerUserID,
		Moderated:     false,
		EventFilePath: filepath.Join(s.eventsDir, id.String()),
		Created:       nowUnix(),
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return models.Canvas{}, err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
INSERT INTO canvases(canvas_id, name, owner_user_id, moderated, event_file_path, created_at)
VALUES(?, ?, ?, 0, ?, ?)
`, canvas.CanvasID, canvas.Name, canvas.OwnerUserID, canvas.EventFilePath, canvas.Created); err != nil {
		return models.Canvas{}, err
	}

	if _, err := tx.ExecContext(ctx, `
INSERT INTO permissions(user_id, canvas_id, level) VALUES(?, ?, 'O')
`, ownerUserID, canvas.CanvasID); err != nil {
		return models.Canvas{}, err
	}

	if err := tx.Commit(); err != nil {
		return models.Canvas{}, err
	}
	return canvas, nil
}

func (s *CanvasStore) GetCanvas(ctx context.Context, canvasID string) (models.Canvas, error) {
	var c models.Canvas
	var moderated int
	err := s.db.QueryRowContext(ctx, `
SELECT canvas_id, name, owner_user_id, moderated, event_file_path, created_at
FROM canvases WHERE canvas_id = ?
`, canvasID).Scan(&c.CanvasID, &c.Name, &c.OwnerUserID, &moderated, &c.EventFilePath, &c.Created)
	if err == sql.ErrNoRows {
		return models.Canvas{}, store.ErrItemNotFound
	}
	if err != nil {
		return models.Canvas{}, err
	}
	c.Moderated = moderated != 0
	return c, nil
}

func (s *CanvasStore) ListCanvasesVisibleTo(ctx context.Context, userID int64) ([]models.CanvasListItem, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT c.canvas_id, c.name, p.level
FROM canvases c JOIN permissions p ON p.canvas_id = c.canvas_id
WHERE p.user_id = ?
ORDER BY c.created_at
`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]models.CanvasListItem, 0)
	for rows.Next() {
		var item models.CanvasListItem
		var level string
		if err := rows.Scan(&item.CanvasID, &item.Name, &level); err != nil {
			return nil, err
		}
		item.PermissionLevel = models.PermissionLevel(level)
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *CanvasStore) SetModerated(ctx context.Context, canvasID string, moderated bool) error {
	v := 0
	if moderated {
		v = 1
	}
	res, err := s.db.ExecContext(ctx, `UPDATE canvases SET moderated = ? WHERE canvas_id = ?`, v, canvasID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrItemNotFound
	}
	return nil
}

// ===================== permissions =====================

func (s *CanvasStore) GetPermissions(ctx context.Context, userID int64) (map[string]models.PermissionLevel, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT canvas_id, level FROM permissions WHERE user_id = ?`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	perms := make(map[string]models.PermissionLevel)
	for rows.Next() {
		var canvasID, level string
		if err := rows.Scan(&canvasID, &level); err != nil {
			return nil, err
		}
		perms[canvasID] = models.PermissionLevel(level)
	}
	return perms, rows.Err()
}

func (s *CanvasStore) GetCanvasPermissions(ctx context.Context, canvasID string) ([]models.CanvasMember, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT p.user_id, u.display_name, p.level
FROM permissions p JOIN users u ON u.user_id = p.user_id
WHERE p.canvas_id = ?
ORDER BY u.display_name
`, canvasID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	members := make([]models.CanvasMember, 0)
	for rows.Next() {
		var m models.CanvasMember
		var level string
		if err := rows.Scan(&m.UserID, &m.DisplayName, &level); err != nil {
			return nil, err
		}
		m.Level = models.PermissionLevel(level)
		members = append(members, m)
	}
	return members, rows.Err()
}

func (s *CanvasStore) SetPermission(ctx context.Context, canvasID string, userID int64, level models.PermissionLevel) error {
	if level == models.PermissionNone {
		_, err := s.db.ExecContext(ctx,
			`DELETE FROM permissions WHERE user_id = ? AND canvas_id = ?`, userID, canvasID)
		return err
	}
	if !level.Valid() {
		return fmt.Errorf("invalid permission level %q", level)
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO permissions(user_id, canvas_id, level) VALUES(?, ?, ?)
ON CONFLICT(user_id, canvas_id) DO UPDATE SET level = excluded.level
`, userID, canvasID, string(level))
	return err
}
