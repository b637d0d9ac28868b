package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/markdave123-py/samurai-chat/internal/config"
	"github.com/markdave123-py/samurai-chat/internal/core"
	"github.com/markdave123-py/samurai-chat/internal/models"
)

type DatabaseClient struct {
	db      *sql.DB
	dialect dialect
}

var _ core.DbClient = (*DatabaseClient)(nil)

// NewDatabaseClient opens the configured database, checks it and bootstraps the schema.
func NewDatabaseClient(ctx context.Context, cfg *config.Config) (*DatabaseClient, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: database client configuration is nil", core.ErrConfig)
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("%w: DATABASE_URL is empty", core.ErrConfig)
	}

	switch cfg.DatabaseDriver {
	case config.DriverSQLite:
		return OpenSQLite(ctx, cfg.DatabaseURL)
	case config.DriverPostgres, "":
		dsn, err := postgresDSN(cfg)
		if err != nil {
			return nil, err
		}
		return open(ctx, dialectPostgres, dsn)
	}
	return nil, fmt.Errorf("%w: unknown database driver %q", core.ErrConfig, cfg.DatabaseDriver)
}

// OpenSQLite opens (or creates) a SQLite database file with WAL and foreign keys on.
func OpenSQLite(ctx context.Context, path string) (*DatabaseClient, error) {
	return open(ctx, dialectSQLite, path+"?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)")
}

func postgresDSN(cfg *config.Config) (string, error) {
	if cfg.SslCertPath == "" {
		return cfg.DatabaseURL, nil
	}
	if _, err := os.Stat(cfg.SslCertPath); err != nil {
		return "", fmt.Errorf("%w: ssl cert not accessible at %q: %v", core.ErrConfig, cfg.SslCertPath, err)
	}

	// Append SSL params to the provided DATABASE_URL safely.
	u, err := url.Parse(cfg.DatabaseURL)
	if err != nil {
		return "", fmt.Errorf("%w: invalid DATABASE_URL: %v", core.ErrConfig, err)
	}
	q := u.Query()
	q.Set("sslmode", "verify-ca")
	q.Set("sslrootcert", cfg.SslCertPath)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func open(ctx context.Context, d dialect, dsn string) (*DatabaseClient, error) {
	db, err := sql.Open(string(d), dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	if d == dialectSQLite {
		// SQLite allows a single writer.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(20)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(30 * time.Minute)
		db.SetConnMaxIdleTime(10 * time.Minute)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	if err := EnsureBootstrapped(ctx, db, d); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap: %w", err)
	}

	return &DatabaseClient{db: db, dialect: d}, nil
}

func (c *DatabaseClient) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

func (c *DatabaseClient) Ping(ctx context.Context) error {
	if err := c.db.PingContext(ctx); err != nil {
		return storageErr("ping", err)
	}
	return nil
}

func storageErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, core.ErrStorage, err)
}

// Users

func (c *DatabaseClient) CreateUser(ctx context.Context, user *models.User) error {
	if user == nil {
		return fmt.Errorf("%w: nil user", core.ErrInvalidInput)
	}
	now := time.Now()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	if user.UpdatedAt.IsZero() {
		user.UpdatedAt = now
	}

	q := c.dialect.rebind(`
		INSERT INTO users (id, first_name, email, password_hash, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	_, err := c.db.ExecContext(ctx, q,
		user.ID, user.FirstName, user.Email, user.PasswordHash,
		c.dialect.ts(user.CreatedAt), c.dialect.ts(user.UpdatedAt))
	if classify(err) == constraintUnique {
		return fmt.Errorf("user %s: %w", user.Email, core.ErrDuplicate)
	}
	if err != nil {
		return storageErr("insert user", err)
	}
	return nil
}

func (c *DatabaseClient) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return c.getUser(ctx, "email", email)
}

func (c *DatabaseClient) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	return c.getUser(ctx, "id", id)
}

func (c *DatabaseClient) getUser(ctx context.Context, column, value string) (*models.User, error) {
	q := c.dialect.rebind(`
		SELECT id, first_name, email, password_hash, created_at, updated_at
		FROM users WHERE ` + column + ` = ?
	`)
	var u models.User
	err := c.db.QueryRowContext(ctx, q, value).Scan(
		&u.ID, &u.FirstName, &u.Email, &u.PasswordHash, dbTime{&u.CreatedAt}, dbTime{&u.UpdatedAt},
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user: %w", core.ErrNotFound)
	}
	if err != nil {
		return nil, storageErr("select user", err)
	}
	return &u, nil
}

// Conversations

func (c *DatabaseClient) CreateConversation(ctx context.Context, conv *models.Conversation) error {
	if conv == nil {
		return fmt.Errorf("%w: nil conversation", core.ErrInvalidInput)
	}
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = time.Now()
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr("begin tx", err)
	}
	defer func() { _ = tx.Rollback() }()

	created := c.dialect.ts(conv.CreatedAt)

	_, err = tx.ExecContext(ctx, c.dialect.rebind(`
		INSERT INTO conversations (id, owner_user_id, created_at) VALUES (?, ?, ?)
	`), conv.ID, conv.OwnerUserID, created)
	if err != nil {
		return conversationErr(err)
	}

	_, err = tx.ExecContext(ctx, c.dialect.rebind(`
		INSERT INTO conversation_owners (conversation_id, user_id, created_at) VALUES (?, ?, ?)
	`), conv.ID, conv.OwnerUserID, created)
	if err != nil {
		return conversationErr(err)
	}

	if err := tx.Commit(); err != nil {
		return storageErr("commit conversation", err)
	}
	return nil
}

func conversationErr(err error) error {
	switch classify(err) {
	case constraintForeignKey:
		return fmt.Errorf("conversation owner: %w", core.ErrNotFound)
	case constraintUnique:
		return fmt.Errorf("conversation: %w", core.ErrDuplicate)
	}
	return storageErr("insert conversation", err)
}

func (c *DatabaseClient) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	q := c.dialect.rebind(`SELECT id, owner_user_id, created_at FROM conversations WHERE id = ?`)
	var conv models.Conversation
	err := c.db.QueryRowContext(ctx, q, id).Scan(&conv.ID, &conv.OwnerUserID, dbTime{&conv.CreatedAt})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("conversation %s: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return nil, storageErr("select conversation", err)
	}
	return &conv, nil
}

func (c *DatabaseClient) ListConversationOwners(ctx context.Context, conversationID string) ([]models.ConversationOwner, error) {
	q := c.dialect.rebind(`
		SELECT conversation_id, user_id, created_at
		FROM conversation_owners
		WHERE conversation_id = ?
		ORDER BY created_at ASC
	`)
	rows, err := c.db.QueryContext(ctx, q, conversationID)
	if err != nil {
		return nil, storageErr("select owners", err)
	}
	defer rows.Close()

	out := []models.ConversationOwner{}
	for rows.Next() {
		var o models.ConversationOwner
		if err := rows.Scan(&o.ConversationID, &o.UserID, dbTime{&o.CreatedAt}); err != nil {
			return nil, storageErr("scan owner", err)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("iterate owners", err)
	}
	return out, nil
}

// Messages

// AppendMessage inserts msg at the end of its conversation's log. A timestamp
// older than the current last message is raised to it, so created_at never
// decreases along seq.
func (c *DatabaseClient) AppendMessage(ctx context.Context, msg *models.Message) error {
	if msg == nil {
		return fmt.Errorf("%w: nil message", core.ErrInvalidInput)
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr("begin tx", err)
	}
	defer func() { _ = tx.Rollback() }()

	var last time.Time
	err = tx.QueryRowContext(ctx, c.dialect.rebind(`
		SELECT created_at FROM messages
		WHERE conversation_id = ?
		ORDER BY seq DESC
		LIMIT 1
	`), msg.ConversationID).Scan(dbTime{&last})
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return storageErr("select last message", err)
	case msg.CreatedAt.Before(last):
		msg.CreatedAt = last
	}

	q := c.dialect.rebind(`
		INSERT INTO messages (id, conversation_id, role, content, created_at)
		VALUES (?, ?, ?, ?, ?)
		RETURNING seq
	`)
	err = tx.QueryRowContext(ctx, q,
		msg.ID, msg.ConversationID, string(msg.Role), msg.Content, c.dialect.ts(msg.CreatedAt),
	).Scan(&msg.Seq)

	switch classify(err) {
	case constraintForeignKey:
		return fmt.Errorf("conversation %s: %w", msg.ConversationID, core.ErrNotFound)
	case constraintCheck:
		return fmt.Errorf("%w: %q", core.ErrInvalidRole, msg.Role)
	case constraintUnique:
		return fmt.Errorf("message %s: %w", msg.ID, core.ErrDuplicate)
	}
	if err != nil {
		return storageErr("insert message", err)
	}

	if err := tx.Commit(); err != nil {
		return storageErr("commit message", err)
	}
	return nil
}

func (c *DatabaseClient) ListMessages(ctx context.Context, conversationID string) ([]models.Message, error) {
	q := c.dialect.rebind(`
		SELECT id, conversation_id, seq, role, content, created_at
		FROM messages
		WHERE conversation_id = ?
		ORDER BY seq ASC
	`)
	rows, err := c.db.QueryContext(ctx, q, conversationID)
	if err != nil {
		return nil, storageErr("select messages", err)
	}
	defer rows.Close()

	out := []models.Message{}
	for rows.Next() {
		var m models.Message
		var role string
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Seq, &role, &m.Content, dbTime{&m.CreatedAt}); err != nil {
			return nil, storageErr("scan message", err)
		}
		m.Role = models.Role(role)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("iterate messages", err)
	}
	return out, nil
}

// User data files

func (c *DatabaseClient) CreateUserDataFile(ctx context.Context, file *models.UserDataFile) error {
	if file == nil {
		return fmt.Errorf("%w: nil file record", core.ErrInvalidInput)
	}
	if file.CreatedAt.IsZero() {
		file.CreatedAt = time.Now()
	}

	q := c.dialect.rebind(`
		INSERT INTO user_data_files (id, user_id, filename, path_to_file, created_at)
		VALUES (?, ?, ?, ?, ?)
	`)
	_, err := c.db.ExecContext(ctx, q,
		file.ID, file.UserID, file.Filename, file.PathToFile, c.dialect.ts(file.CreatedAt))

	switch classify(err) {
	case constraintForeignKey:
		return fmt.Errorf("user %s: %w", file.UserID, core.ErrNotFound)
	case constraintUnique:
		return fmt.Errorf("file %s: %w", file.Filename, core.ErrDuplicate)
	}
	if err != nil {
		return storageErr("insert user data file", err)
	}
	return nil
}

func (c *DatabaseClient) ListUserDataFiles(ctx context.Context, userID string) ([]models.UserDataFile, error) {
	q := c.dialect.rebind(`
		SELECT id, user_id, filename, path_to_file, created_at
		FROM user_data_files
		WHERE user_id = ?
		ORDER BY seq ASC
	`)
	rows, err := c.db.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, storageErr("select user data files", err)
	}
	defer rows.Close()

	out := []models.UserDataFile{}
	for rows.Next() {
		var f models.UserDataFile
		if err := rows.Scan(&f.ID, &f.UserID, &f.Filename, &f.PathToFile, dbTime{&f.CreatedAt}); err != nil {
			return nil, storageErr("scan user data file", err)
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("iterate user data files", err)
	}
	return out, nil
}

func (c *DatabaseClient) GetUserDataFile(ctx context.Context, userID, filename string) (*models.UserDataFile, error) {
	q := c.dialect.rebind(`
		SELECT id, user_id, filename, path_to_file, created_at
		FROM user_data_files
		WHERE user_id = ? AND filename = ?
	`)
	var f models.UserDataFile
	err := c.db.QueryRowContext(ctx, q, userID, filename).Scan(
		&f.ID, &f.UserID, &f.Filename, &f.PathToFile, dbTime{&f.CreatedAt})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("file %s: %w", filename, core.ErrNotFound)
	}
	if err != nil {
		return nil, storageErr("select user data file", err)
	}
	return &f, nil
}

// DeleteUserDataFile returns the number of records removed (0 or 1).
func (c *DatabaseClient) DeleteUserDataFile(ctx context.Context, userID, filename string) (int64, error) {
	q := c.dialect.rebind(`DELETE FROM user_data_files WHERE user_id = ? AND filename = ?`)
	res, err := c.db.ExecContext(ctx, q, userID, filename)
	if err != nil {
		return 0, storageErr("delete user data file", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, storageErr("rows affected", err)
	}
	return n, nil
}
