package backend

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/nhle/notification-sync/internal/gateway"
	"github.com/nhle/notification-sync/internal/model"
)

// Supported database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// ErrNotFound is returned when a user or notification does not exist for
// the caller.
var ErrNotFound = errors.New("not found")

// User is a row of the users table.
type User struct {
	ID           string `db:"id" json:"_id"`
	FirstName    string `db:"first_name" json:"firstName"`
	LastName     string `db:"last_name" json:"lastName"`
	Email        string `db:"email" json:"email"`
	Role         string `db:"role" json:"role"`
	ProfileImage string `db:"profile_image" json:"profileImage,omitempty"`
}

func (u User) sender() *model.Sender {
	return &model.Sender{
		ID:           u.ID,
		FirstName:    u.FirstName,
		LastName:     u.LastName,
		Role:         u.Role,
		ProfileImage: u.ProfileImage,
	}
}

// SeedUsers are inserted into an empty database so a fresh backend has one
// user per role.
var SeedUsers = []User{
	{ID: "u-admin", FirstName: "Ada", LastName: "Admin", Email: "admin@example.com", Role: gateway.RoleAdmin},
	{ID: "u-dev", FirstName: "Dev", LastName: "Eloper", Email: "dev@example.com", Role: gateway.RoleDeveloper},
	{ID: "u-pm", FirstName: "Pat", LastName: "Manager", Email: "pm@example.com", Role: gateway.RoleProjectManager},
}

// DB is the backend's persistence layer on SQLite or Postgres.
type DB struct {
	db     *sqlx.DB
	driver string
}

// Open connects to the database, enables the SQLite pragmas the schema
// relies on, and runs any pending schema migrations.
func Open(ctx context.Context, driver, dsn string) (*DB, error) {
	if driver == "" {
		driver = DriverSQLite
	}
	if driver != DriverSQLite && driver != DriverPostgres {
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening %s db: %w", driver, err)
	}

	if driver == DriverSQLite {
		// Every pooled connection to :memory: would be its own database.
		if dsn == ":memory:" {
			db.SetMaxOpenConns(1)
		} else if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enabling WAL mode: %w", err)
		}
		if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys=ON"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enabling foreign keys: %w", err)
		}
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to %s db: %w", driver, err)
	}

	d := &DB{db: db, driver: driver}
	if err := d.runMigrations(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return d, nil
}

// Close closes the underlying database connection.
func (d *DB) Close() error {
	return d.db.Close()
}

// runMigrations reads the current schema version and applies any
// outstanding migrations in order, each in its own transaction.
func (d *DB) runMigrations(ctx context.Context) error {
	if _, err := d.db.ExecContext(ctx,
		"CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)",
	); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	currentVersion := 0
	if err := d.db.GetContext(ctx, &currentVersion,
		"SELECT COALESCE(MAX(version), 0) FROM schema_version",
	); err != nil {
		return fmt.Errorf("reading schema version: %w", err)
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if err := d.applyMigration(ctx, m); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}

	return nil
}

func (d *DB) applyMigration(ctx context.Context, m migration) error {
	tx, err := d.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range m.stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	if _, err := tx.ExecContext(ctx,
		tx.Rebind("INSERT INTO schema_version (version) VALUES (?)"), m.version,
	); err != nil {
		return err
	}

	return tx.Commit()
}

// SchemaVersion returns the highest applied migration.
func (d *DB) SchemaVersion(ctx context.Context) (int, error) {
	var v int
	err := d.db.GetContext(ctx, &v, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
	return v, err
}

// Seed inserts users into an empty users table. It reports how many were
// inserted; a populated table is left alone.
func (d *DB) Seed(ctx context.Context, users []User) (int, error) {
	var count int
	if err := d.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM users"); err != nil {
		return 0, fmt.Errorf("counting users: %w", err)
	}
	if count > 0 || len(users) == 0 {
		return 0, nil
	}

	const query = `
		INSERT INTO users (id, first_name, last_name, email, role, profile_image)
		VALUES (:id, :first_name, :last_name, :email, :role, :profile_image)`

	if _, err := d.db.NamedExecContext(ctx, query, users); err != nil {
		return 0, fmt.Errorf("seeding users: %w", err)
	}
	return len(users), nil
}

// GetUser retrieves a single user by id.
func (d *DB) GetUser(ctx context.Context, id string) (User, error) {
	var u User
	err := d.db.GetContext(ctx, &u, d.db.Rebind("SELECT * FROM users WHERE id = ?"), id)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return User{}, fmt.Errorf("getting user %s: %w", id, err)
	}
	return u, nil
}

// Recipients resolves the users addressed by exactly one of role, email or
// userID.
func (d *DB) Recipients(ctx context.Context, role, email, userID string) ([]User, error) {
	var (
		column, value string
		set           int
	)
	for _, sel := range []struct{ column, value string }{
		{"role", role}, {"email", email}, {"id", userID},
	} {
		if sel.value != "" {
			column, value = sel.column, sel.value
			set++
		}
	}
	if set != 1 {
		return nil, fmt.Errorf("exactly one of role, email or userId is required")
	}

	var users []User
	query := d.db.Rebind(fmt.Sprintf("SELECT * FROM users WHERE %s = ? ORDER BY id", column))
	if err := d.db.SelectContext(ctx, &users, query, value); err != nil {
		return nil, fmt.Errorf("resolving recipients by %s: %w", column, err)
	}
	return users, nil
}

// notificationRow is a notification joined with its sender.
type notificationRow struct {
	ID          string         `db:"id"`
	RecipientID string         `db:"recipient_id"`
	SenderID    sql.NullString `db:"sender_id"`
	Title       string         `db:"title"`
	Message     string         `db:"message"`
	Type        string         `db:"type"`
	IsRead      bool           `db:"is_read"`
	Meta        string         `db:"meta"`
	CreatedAt   time.Time      `db:"created_at"`

	SenderFirstName    sql.NullString `db:"sender_first_name"`
	SenderLastName     sql.NullString `db:"sender_last_name"`
	SenderRole         sql.NullString `db:"sender_role"`
	SenderProfileImage sql.NullString `db:"sender_profile_image"`
}

func (r notificationRow) toModel() (model.Notification, error) {
	n := model.Notification{
		ID:        r.ID,
		Title:     r.Title,
		Message:   r.Message,
		Kind:      model.Kind(r.Type),
		CreatedAt: r.CreatedAt.UTC(),
		IsRead:    r.IsRead,
	}
	if r.Meta != "" {
		if err := json.Unmarshal([]byte(r.Meta), &n.Meta); err != nil {
			return model.Notification{}, fmt.Errorf("decoding meta of %s: %w", r.ID, err)
		}
	}
	if r.SenderID.Valid {
		n.Sender = &model.Sender{
			ID:           r.SenderID.String,
			FirstName:    r.SenderFirstName.String,
			LastName:     r.SenderLastName.String,
			Role:         r.SenderRole.String,
			ProfileImage: r.SenderProfileImage.String,
		}
	}
	return n, nil
}

const selectNotifications = `
	SELECT n.id, n.recipient_id, n.sender_id, n.title, n.message, n.type,
		n.is_read, n.meta, n.created_at,
		u.first_name AS sender_first_name, u.last_name AS sender_last_name,
		u.role AS sender_role, u.profile_image AS sender_profile_image
	FROM notifications n
	LEFT JOIN users u ON u.id = n.sender_id`

// ListForUser returns every notification addressed to userID, newest first.
func (d *DB) ListForUser(ctx context.Context, userID string) ([]model.Notification, error) {
	var rows []notificationRow
	query := d.db.Rebind(selectNotifications +
		" WHERE n.recipient_id = ? ORDER BY n.created_at DESC, n.id DESC")
	if err := d.db.SelectContext(ctx, &rows, query, userID); err != nil {
		return nil, fmt.Errorf("listing notifications for %s: %w", userID, err)
	}

	records := make([]model.Notification, 0, len(rows))
	for _, r := range rows {
		n, err := r.toModel()
		if err != nil {
			return nil, err
		}
		records = append(records, n)
	}
	return records, nil
}

// MarkRead marks one of userID's notifications as read. Marking a read
// notification again succeeds.
func (d *DB) MarkRead(ctx context.Context, id, userID string) error {
	res, err := d.db.ExecContext(ctx,
		d.db.Rebind("UPDATE notifications SET is_read = ? WHERE id = ? AND recipient_id = ?"),
		true, id, userID,
	)
	if err != nil {
		return fmt.Errorf("marking notification %s read: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("marking notification %s read: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("notification %s: %w", id, ErrNotFound)
	}
	return nil
}

// MarkAllRead marks every unread notification of userID as read and
// returns how many changed.
func (d *DB) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	res, err := d.db.ExecContext(ctx,
		d.db.Rebind("UPDATE notifications SET is_read = ? WHERE recipient_id = ? AND is_read = ?"),
		true, userID, false,
	)
	if err != nil {
		return 0, fmt.Errorf("marking all notifications read for %s: %w", userID, err)
	}
	return res.RowsAffected()
}

// Draft is the content of a notification before it is addressed.
type Draft struct {
	Title   string
	Message string
	Kind    model.Kind
	Meta    model.Meta
}

// Delivery is one persisted notification and the user it is addressed to.
type Delivery struct {
	RecipientID  string
	Notification model.Notification
}

// CreateForRecipients persists one notification per recipient in a single
// transaction. A nil sender marks a system notification.
func (d *DB) CreateForRecipients(
	ctx context.Context,
	sender *User,
	recipients []User,
	draft Draft,
	createdAt time.Time,
) ([]Delivery, error) {
	if len(recipients) == 0 {
		return nil, nil
	}

	meta := draft.Meta
	if meta == nil {
		meta = model.Meta{}
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("marshaling meta: %w", err)
	}

	var senderID sql.NullString
	var senderModel *model.Sender
	if sender != nil {
		senderID = sql.NullString{String: sender.ID, Valid: true}
		senderModel = sender.sender()
	}

	tx, err := d.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PreparexContext(ctx, tx.Rebind(`
		INSERT INTO notifications (
			id, recipient_id, sender_id, title, message, type, is_read, meta, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`))
	if err != nil {
		return nil, fmt.Errorf("preparing insert statement: %w", err)
	}
	defer stmt.Close()

	createdAt = createdAt.UTC()
	deliveries := make([]Delivery, 0, len(recipients))
	for _, r := range recipients {
		id := uuid.NewString()
		if _, err := stmt.ExecContext(ctx,
			id, r.ID, senderID, draft.Title, draft.Message, string(draft.Kind),
			false, string(metaJSON), createdAt,
		); err != nil {
			return nil, fmt.Errorf("inserting notification for %s: %w", r.ID, err)
		}
		deliveries = append(deliveries, Delivery{
			RecipientID: r.ID,
			Notification: model.Notification{
				ID:        id,
				Title:     draft.Title,
				Message:   draft.Message,
				Kind:      draft.Kind,
				Sender:    senderModel,
				CreatedAt: createdAt,
				Meta:      meta,
			},
		})
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing notifications: %w", err)
	}
	return deliveries, nil
}
