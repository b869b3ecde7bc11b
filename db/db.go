package db

import (
	"context"
	"database/sql"
	"log"
	"time"

	"github.com/arenh/gomphos/domain"
	"github.com/google/uuid"
	"modernc.org/sqlite"
	sqlitelib "modernc.org/sqlite/lib"
)

// DB is the database struct.
type DB struct {
	db *sql.DB
}

const (
	//Accounts
	sqlCreateAccountsTable = `CREATE TABLE IF NOT EXISTS accounts(
                        id uuid NOT NULL PRIMARY KEY,
                        username varchar(100) UNIQUE NOT NULL,
                        password_hash text NOT NULL,
                        email varchar(255),
                        created_at timestamp default current_timestamp
                        )`
	sqlInsertAccount           = `INSERT INTO accounts(id, username, password_hash, email, created_at) VALUES (?, ?, ?, ?, ?)`
	sqlSelectAccountById       = `SELECT id, username, password_hash, email, created_at FROM accounts WHERE id = ?`
	sqlSelectAccountByUsername = `SELECT id, username, password_hash, email, created_at FROM accounts WHERE username = ?`
	sqlSelectAccountByEmail    = `SELECT id, username, password_hash, email, created_at FROM accounts WHERE email = ?`
	sqlSelectRandomAccounts    = `SELECT id, username, password_hash, email, created_at FROM accounts WHERE id != ? ORDER BY RANDOM() LIMIT ?`
	sqlSearchAccounts          = `SELECT id, username, password_hash, email, created_at FROM accounts WHERE username LIKE ? ORDER BY username LIMIT ?`
	sqlUpdateAccountPassword   = `UPDATE accounts SET password_hash = ? WHERE id = ?`

	//Posts
	sqlCreatePostsTable = `CREATE TABLE IF NOT EXISTS posts(
                        id text NOT NULL PRIMARY KEY,
                        content text NOT NULL,
                        author varchar(255) NOT NULL,
                        user_id uuid,
                        origin_instance varchar(255) NOT NULL,
                        is_remote int default 0,
                        created_at timestamp default current_timestamp
                        )`
	sqlCreatePostsIndices = `
		CREATE INDEX IF NOT EXISTS idx_posts_created_at ON posts(created_at DESC);
		CREATE INDEX IF NOT EXISTS idx_posts_author ON posts(author);
	`
	sqlInsertPost           = `INSERT INTO posts(id, content, author, user_id, origin_instance, is_remote, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`
	sqlSelectPostById       = `SELECT id, content, author, user_id, origin_instance, is_remote, created_at FROM posts WHERE id = ?`
	sqlSelectAllPostsById   = `SELECT id, content, author, user_id, origin_instance, is_remote, created_at FROM posts ORDER BY id DESC`
	sqlSelectAllPosts       = `SELECT id, content, author, user_id, origin_instance, is_remote, created_at FROM posts ORDER BY created_at DESC`
	sqlSelectPostsByUserId  = `SELECT id, content, author, user_id, origin_instance, is_remote, created_at FROM posts WHERE user_id = ? AND is_remote = 0 ORDER BY created_at DESC`
	sqlDeletePostById       = `DELETE FROM posts WHERE id = ?`
	sqlDeleteRemotePostById = `DELETE FROM posts WHERE id = ? AND is_remote = 1`

	//Password resets
	sqlCreatePasswordResetsTable = `CREATE TABLE IF NOT EXISTS password_resets(
                        id uuid NOT NULL PRIMARY KEY,
                        email varchar(255) UNIQUE NOT NULL,
                        otp_hash text NOT NULL,
                        reset_token text,
                        expires_at timestamp NOT NULL,
                        verified int default 0
                        )`
	sqlDeletePasswordResetByEmail = `DELETE FROM password_resets WHERE email = ?`
	sqlInsertPasswordReset        = `INSERT INTO password_resets(id, email, otp_hash, reset_token, expires_at, verified) VALUES (?, ?, ?, ?, ?, ?)`
	sqlSelectPasswordResetByEmail = `SELECT id, email, otp_hash, reset_token, expires_at, verified FROM password_resets WHERE email = ?`
	sqlSelectPasswordResetByToken = `SELECT id, email, otp_hash, reset_token, expires_at, verified FROM password_resets WHERE reset_token = ? AND verified = 1`
	sqlVerifyPasswordReset        = `UPDATE password_resets SET verified = 1, reset_token = ? WHERE id = ?`
	sqlDeletePasswordResetById    = `DELETE FROM password_resets WHERE id = ?`
)

// Open opens (and creates, if needed) the database at the given path.
// Use ":memory:" for tests.
func Open(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// Configure connection pool for concurrent access. An in-memory
	// database exists per connection, so it must not be pooled.
	if path == ":memory:" {
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(25)
		sqlDB.SetMaxIdleConns(5)
		sqlDB.SetConnMaxLifetime(time.Hour)
	}

	var journalMode string
	err = sqlDB.QueryRow("PRAGMA journal_mode=WAL").Scan(&journalMode)
	if err != nil {
		log.Printf("Warning: Failed to enable WAL mode: %v", err)
	} else {
		log.Printf("Database journal mode: %s", journalMode)
	}

	// Optimize PRAGMAs for a concurrent federation workload
	sqlDB.Exec("PRAGMA synchronous = NORMAL")
	sqlDB.Exec("PRAGMA cache_size = -64000")
	sqlDB.Exec("PRAGMA temp_store = MEMORY")
	sqlDB.Exec("PRAGMA busy_timeout = 5000")
	sqlDB.Exec("PRAGMA foreign_keys = ON")

	database := &DB{db: sqlDB}

	if err := database.CreateDB(); err != nil {
		return nil, err
	}

	return database, nil
}

// Close closes the underlying connection pool.
func (db *DB) Close() error {
	return db.db.Close()
}

// CreateDB creates the database schema.
func (db *DB) CreateDB() error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		for _, stmt := range []string{
			sqlCreateAccountsTable,
			sqlCreatePostsTable,
			sqlCreatePasswordResetsTable,
			sqlCreateActivitiesTable,
			sqlCreateConnectionsTable,
		} {
			if _, err := tx.Exec(stmt); err != nil {
				return err
			}
		}

		if _, err := tx.Exec(sqlCreatePostsIndices); err != nil {
			log.Printf("Warning: Failed to create posts indices: %v", err)
		}
		if _, err := tx.Exec(sqlCreateActivitiesIndices); err != nil {
			log.Printf("Warning: Failed to create activities indices: %v", err)
		}
		if _, err := tx.Exec(sqlCreateConnectionsIndices); err != nil {
			log.Printf("Warning: Failed to create connections indices: %v", err)
		}

		return nil
	})
}

func (db *DB) CreateAccount(acc *domain.Account) error {
	err := db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlInsertAccount, acc.Id, acc.Username, acc.PasswordHash, acc.Email, acc.CreatedAt)
		return err
	})
	if isUniqueViolation(err) {
		return domain.ErrConflict
	}
	return err
}

func (db *DB) ReadAccById(id uuid.UUID) (error, *domain.Account) {
	return scanAccount(db.db.QueryRow(sqlSelectAccountById, id))
}

func (db *DB) ReadAccByUsername(username string) (error, *domain.Account) {
	return scanAccount(db.db.QueryRow(sqlSelectAccountByUsername, username))
}

func (db *DB) ReadAccByEmail(email string) (error, *domain.Account) {
	return scanAccount(db.db.QueryRow(sqlSelectAccountByEmail, email))
}

// ReadAccByIdTx reads an account within an ongoing transaction. The id
// is passed as a string so callers can probe requester ids that may be
// the REMOTE sentinel.
func ReadAccByIdTx(tx *sql.Tx, id string) (error, *domain.Account) {
	return scanAccount(tx.QueryRow(sqlSelectAccountById, id))
}

func scanAccount(row *sql.Row) (error, *domain.Account) {
	var acc domain.Account
	var email sql.NullString
	err := row.Scan(&acc.Id, &acc.Username, &acc.PasswordHash, &email, &acc.CreatedAt)
	if err == sql.ErrNoRows {
		return domain.ErrNotFound, nil
	}
	if err != nil {
		return err, nil
	}
	acc.Email = email.String
	return nil, &acc
}

func (db *DB) ReadRandomAccounts(excludeId uuid.UUID, limit int) (error, *[]domain.Account) {
	return db.queryAccounts(sqlSelectRandomAccounts, excludeId, limit)
}

func (db *DB) SearchAccounts(query string, limit int) (error, *[]domain.Account) {
	return db.queryAccounts(sqlSearchAccounts, "%"+query+"%", limit)
}

func (db *DB) queryAccounts(query string, args ...interface{}) (error, *[]domain.Account) {
	rows, err := db.db.Query(query, args...)
	if err != nil {
		return err, nil
	}
	defer rows.Close()

	var accounts []domain.Account

	for rows.Next() {
		var acc domain.Account
		var email sql.NullString
		if err := rows.Scan(&acc.Id, &acc.Username, &acc.PasswordHash, &email, &acc.CreatedAt); err != nil {
			return err, &accounts
		}
		acc.Email = email.String
		accounts = append(accounts, acc)
	}
	if err = rows.Err(); err != nil {
		return err, &accounts
	}

	return nil, &accounts
}

func (db *DB) UpdateAccountPassword(id uuid.UUID, passwordHash string) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlUpdateAccountPassword, passwordHash, id)
		return err
	})
}

func (db *DB) CreatePost(post *domain.Post) error {
	err := db.wrapTransaction(func(tx *sql.Tx) error {
		return insertPost(tx, post)
	})
	if isUniqueViolation(err) {
		return domain.ErrConflict
	}
	return err
}

// CreatePostTx inserts a post within an ongoing transaction. A unique
// violation on the post id maps to ErrConflict so callers can absorb
// duplicate deliveries.
func CreatePostTx(tx *sql.Tx, post *domain.Post) error {
	err := insertPost(tx, post)
	if isUniqueViolation(err) {
		return domain.ErrConflict
	}
	return err
}

func insertPost(tx *sql.Tx, post *domain.Post) error {
	var userId interface{}
	if post.UserId != nil {
		userId = post.UserId.String()
	}
	_, err := tx.Exec(sqlInsertPost, post.Id, post.Content, post.Author, userId, post.OriginInstance, boolToInt(post.IsRemote), post.CreatedAt)
	return err
}

func (db *DB) ReadPostById(id string) (error, *domain.Post) {
	row := db.db.QueryRow(sqlSelectPostById, id)
	return scanPost(row)
}

// ReadPostByIdTx reads a post within an ongoing transaction.
func ReadPostByIdTx(tx *sql.Tx, id string) (error, *domain.Post) {
	return scanPost(tx.QueryRow(sqlSelectPostById, id))
}

func scanPost(row *sql.Row) (error, *domain.Post) {
	var post domain.Post
	var userId sql.NullString
	var isRemote int
	err := row.Scan(&post.Id, &post.Content, &post.Author, &userId, &post.OriginInstance, &isRemote, &post.CreatedAt)
	if err == sql.ErrNoRows {
		return domain.ErrNotFound, nil
	}
	if err != nil {
		return err, nil
	}
	post.IsRemote = isRemote != 0
	if userId.Valid {
		parsed, err := uuid.Parse(userId.String)
		if err == nil {
			post.UserId = &parsed
		}
	}
	return nil, &post
}

func (db *DB) ReadAllPosts() (error, *[]domain.Post) {
	return db.queryPosts(sqlSelectAllPosts)
}

// ReadAllPostsById returns posts ordered by id, newest insert first for
// node-assigned ids.
func (db *DB) ReadAllPostsById() (error, *[]domain.Post) {
	return db.queryPosts(sqlSelectAllPostsById)
}

func (db *DB) ReadPostsByUserId(userId uuid.UUID) (error, *[]domain.Post) {
	return db.queryPosts(sqlSelectPostsByUserId, userId)
}

// ReadPostsByAuthors returns posts written by any of the given authors,
// newest first. An empty author list yields an empty result.
func (db *DB) ReadPostsByAuthors(authors []string) (error, *[]domain.Post) {
	if len(authors) == 0 {
		empty := []domain.Post{}
		return nil, &empty
	}

	query := `SELECT id, content, author, user_id, origin_instance, is_remote, created_at FROM posts WHERE author IN (?` +
		repeatPlaceholder(len(authors)-1) + `) ORDER BY created_at DESC`
	args := make([]interface{}, len(authors))
	for i, author := range authors {
		args[i] = author
	}
	return db.queryPosts(query, args...)
}

func (db *DB) queryPosts(query string, args ...interface{}) (error, *[]domain.Post) {
	rows, err := db.db.Query(query, args...)
	if err != nil {
		return err, nil
	}
	defer rows.Close()

	var posts []domain.Post

	for rows.Next() {
		var post domain.Post
		var userId sql.NullString
		var isRemote int
		if err := rows.Scan(&post.Id, &post.Content, &post.Author, &userId, &post.OriginInstance, &isRemote, &post.CreatedAt); err != nil {
			return err, &posts
		}
		post.IsRemote = isRemote != 0
		if userId.Valid {
			if parsed, err := uuid.Parse(userId.String); err == nil {
				post.UserId = &parsed
			}
		}
		posts = append(posts, post)
	}
	if err = rows.Err(); err != nil {
		return err, &posts
	}

	return nil, &posts
}

func (db *DB) DeletePostById(id string) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlDeletePostById, id)
		return err
	})
}

// DeleteRemotePostTx deletes a remote post by its exact object id
// within an ongoing transaction. Returns the number of rows removed so
// callers can report deleted vs ignored.
func DeleteRemotePostTx(tx *sql.Tx, id string) (int64, error) {
	res, err := tx.Exec(sqlDeleteRemotePostById, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (db *DB) DeleteRemotePostById(id string) (int64, error) {
	var affected int64
	err := db.wrapTransaction(func(tx *sql.Tx) error {
		var err error
		affected, err = DeleteRemotePostTx(tx, id)
		return err
	})
	return affected, err
}

func (db *DB) CreatePasswordReset(reset *domain.PasswordReset) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		// A new reset supersedes any pending one for the same email
		if _, err := tx.Exec(sqlDeletePasswordResetByEmail, reset.Email); err != nil {
			return err
		}
		_, err := tx.Exec(sqlInsertPasswordReset, reset.Id, reset.Email, reset.OtpHash, reset.ResetToken, reset.ExpiresAt, boolToInt(reset.Verified))
		return err
	})
}

func (db *DB) ReadPasswordResetByEmail(email string) (error, *domain.PasswordReset) {
	return scanPasswordReset(db.db.QueryRow(sqlSelectPasswordResetByEmail, email))
}

func (db *DB) ReadPasswordResetByToken(token string) (error, *domain.PasswordReset) {
	return scanPasswordReset(db.db.QueryRow(sqlSelectPasswordResetByToken, token))
}

func scanPasswordReset(row *sql.Row) (error, *domain.PasswordReset) {
	var reset domain.PasswordReset
	var token sql.NullString
	var verified int
	err := row.Scan(&reset.Id, &reset.Email, &reset.OtpHash, &token, &reset.ExpiresAt, &verified)
	if err == sql.ErrNoRows {
		return domain.ErrNotFound, nil
	}
	if err != nil {
		return err, nil
	}
	reset.ResetToken = token.String
	reset.Verified = verified != 0
	return nil, &reset
}

func (db *DB) VerifyPasswordReset(id uuid.UUID, resetToken string) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlVerifyPasswordReset, resetToken, id)
		return err
	})
}

func (db *DB) DeletePasswordReset(id uuid.UUID) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlDeletePasswordResetById, id)
		return err
	})
}

// Transact runs the given function within a single transaction; the
// inbox processor uses it to apply an inbound activity atomically.
func (db *DB) Transact(f func(tx *sql.Tx) error) error {
	return db.wrapTransaction(f)
}

// wrapTransaction runs the given function within a transaction.
func (db *DB) wrapTransaction(f func(tx *sql.Tx) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()
	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		log.Printf("error starting transaction: %s", err)
		return err
	}
	for {
		err = f(tx)
		if err != nil {
			serr, ok := err.(*sqlite.Error)
			if ok && serr.Code() == sqlitelib.SQLITE_BUSY {
				continue
			}
			tx.Rollback()
			return err
		}
		err = tx.Commit()
		if err != nil {
			log.Printf("error committing transaction: %s", err)
			return err
		}
		break
	}
	return nil
}

func isUniqueViolation(err error) bool {
	serr, ok := err.(*sqlite.Error)
	if !ok {
		return false
	}
	code := serr.Code()
	return code == sqlitelib.SQLITE_CONSTRAINT ||
		code == sqlitelib.SQLITE_CONSTRAINT_UNIQUE ||
		code == sqlitelib.SQLITE_CONSTRAINT_PRIMARYKEY
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func repeatPlaceholder(n int) string {
	var b []byte
	for i := 0; i < n; i++ {
		b = append(b, ", ?"...)
	}
	return string(b)
}
