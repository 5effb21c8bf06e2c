package storage

import (
	"context"
	"database/sql"
)

type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type Queries struct {
	db DBTX
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

type MoodEntry struct {
	ID        int64
	UserID    string
	Date      string
	Mood      string
	Comment   string
	CreatedAt string
	UpdatedAt string
}

type User struct {
	ID           string
	Email        string
	FullName     string
	PasswordHash string
	CreatedAt    string
	UpdatedAt    string
}

const listEntriesByUser = `
SELECT id, user_id, date, mood, comment, created_at, updated_at
FROM mood_entries
WHERE user_id = ?
ORDER BY date
`

func (q *Queries) ListEntriesByUser(ctx context.Context, userID string) ([]MoodEntry, error) {
	rows, err := q.db.QueryContext(ctx, listEntriesByUser, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []MoodEntry
	for rows.Next() {
		var i MoodEntry
		if err := rows.Scan(&i.ID, &i.UserID, &i.Date, &i.Mood, &i.Comment, &i.CreatedAt, &i.UpdatedAt); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const listUserIDs = `
SELECT DISTINCT user_id
FROM mood_entries
ORDER BY user_id
`

func (q *Queries) ListUserIDs(ctx context.Context) ([]string, error) {
	rows, err := q.db.QueryContext(ctx, listUserIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		items = append(items, id)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const getEntry = `
SELECT id, user_id, date, mood, comment, created_at, updated_at
FROM mood_entries
WHERE user_id = ? AND date = ?
`

func (q *Queries) GetEntry(ctx context.Context, userID, date string) (MoodEntry, error) {
	row := q.db.QueryRowContext(ctx, getEntry, userID, date)
	var i MoodEntry
	err := row.Scan(&i.ID, &i.UserID, &i.Date, &i.Mood, &i.Comment, &i.CreatedAt, &i.UpdatedAt)
	return i, err
}

const upsertEntry = `
INSERT INTO mood_entries (user_id, date, mood, comment, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (user_id, date) DO UPDATE SET
    mood = excluded.mood,
    comment = excluded.comment,
    updated_at = excluded.updated_at
`

type UpsertEntryParams struct {
	UserID    string
	Date      string
	Mood      string
	Comment   string
	UpdatedAt string
}

func (q *Queries) UpsertEntry(ctx context.Context, arg UpsertEntryParams) error {
	_, err := q.db.ExecContext(ctx, upsertEntry,
		arg.UserID, arg.Date, arg.Mood, arg.Comment, arg.UpdatedAt, arg.UpdatedAt)
	return err
}

const deleteEntry = `
DELETE FROM mood_entries
WHERE user_id = ? AND date = ?
`

func (q *Queries) DeleteEntry(ctx context.Context, userID, date string) (int64, error) {
	res, err := q.db.ExecContext(ctx, deleteEntry, userID, date)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const createUser = `
INSERT INTO users (id, email, full_name, password_hash, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?)
`

func (q *Queries) CreateUser(ctx context.Context, u User) error {
	_, err := q.db.ExecContext(ctx, createUser,
		u.ID, u.Email, u.FullName, u.PasswordHash, u.CreatedAt, u.UpdatedAt)
	return err
}

const getUserByEmail = `
SELECT id, email, full_name, password_hash, created_at, updated_at
FROM users
WHERE email = ?
`

func (q *Queries) GetUserByEmail(ctx context.Context, email string) (User, error) {
	row := q.db.QueryRowContext(ctx, getUserByEmail, email)
	var i User
	err := row.Scan(&i.ID, &i.Email, &i.FullName, &i.PasswordHash, &i.CreatedAt, &i.UpdatedAt)
	return i, err
}

const getUserByID = `
SELECT id, email, full_name, password_hash, created_at, updated_at
FROM users
WHERE id = ?
`

func (q *Queries) GetUserByID(ctx context.Context, id string) (User, error) {
	row := q.db.QueryRowContext(ctx, getUserByID, id)
	var i User
	err := row.Scan(&i.ID, &i.Email, &i.FullName, &i.PasswordHash, &i.CreatedAt, &i.UpdatedAt)
	return i, err
}

const updateUser = `
UPDATE users
SET email = ?, full_name = ?, password_hash = ?, updated_at = ?
WHERE id = ?
`

func (q *Queries) UpdateUser(ctx context.Context, u User) (int64, error) {
	res, err := q.db.ExecContext(ctx, updateUser, u.Email, u.FullName, u.PasswordHash, u.UpdatedAt, u.ID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
