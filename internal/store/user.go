package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/tareas/internal/model"
)

type UserStore struct {
	db *sql.DB
}

func NewUserStore(db *sql.DB) *UserStore {
	return &UserStore{db: db}
}

func scanUser(scanner Scanner) (*model.User, error) {
	var u model.User
	var lastSync sql.NullTime
	err := scanner.Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &u.MoodleICalURL, &lastSync, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	u.LastSyncAt = timePtr(lastSync)
	return &u, nil
}

const userCols = `id, email, name, password_hash, moodle_ical_url, last_sync_at, created_at, updated_at`

func (s *UserStore) Create(email, name, passwordHash string) (*model.User, error) {
	result, err := s.db.Exec(
		`INSERT INTO users (email, name, password_hash) VALUES (?, ?, ?)`,
		email, name, passwordHash,
	)
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

func (s *UserStore) GetByID(id int64) (*model.User, error) {
	row := s.db.QueryRow(`SELECT `+userCols+` FROM users WHERE id = ?`, id)
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func (s *UserStore) GetByEmail(email string) (*model.User, error) {
	row := s.db.QueryRow(`SELECT `+userCols+` FROM users WHERE email = ?`, email)
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	return u, nil
}

func (s *UserStore) UpdateName(id int64, name string) (*model.User, error) {
	_, err := s.db.Exec(`UPDATE users SET name = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, name, id)
	if err != nil {
		return nil, fmt.Errorf("update user: %w", err)
	}
	return s.GetByID(id)
}

// SetMoodleURL stores (or, with an empty url, clears) the calendar feed.
func (s *UserStore) SetMoodleURL(id int64, url string) (*model.User, error) {
	_, err := s.db.Exec(
		`UPDATE users SET moodle_ical_url = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		url, id,
	)
	if err != nil {
		return nil, fmt.Errorf("set moodle url: %w", err)
	}
	return s.GetByID(id)
}

func (s *UserStore) TouchLastSync(id int64, at time.Time) error {
	_, err := s.db.Exec(`UPDATE users SET last_sync_at = ? WHERE id = ?`, at.UTC(), id)
	if err != nil {
		return fmt.Errorf("touch last sync: %w", err)
	}
	return nil
}

// ListWithFeeds returns users that have a calendar feed configured.
func (s *UserStore) ListWithFeeds() ([]model.User, error) {
	rows, err := s.db.Query(`SELECT ` + userCols + ` FROM users WHERE moodle_ical_url <> '' ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list users with feeds: %w", err)
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

func (s *UserStore) Delete(id int64) error {
	_, err := s.db.Exec(`DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	return nil
}
