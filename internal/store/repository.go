package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// Scanner is satisfied by *sql.Row and *sql.Rows.
type Scanner interface {
	Scan(dest ...any) error
}

// Table describes how an entity maps onto a table owned by a user (or by a
// parent row, for subtasks).
type Table[T any] struct {
	Name  string
	Key   string // primary key column
	Owner string // owner column, written on insert and used to scope reads
	Order string // ORDER BY clause for lists

	// Select lists the columns Scan reads, in order.
	Select []string
	Scan   func(Scanner) (*T, error)

	// Writable lists the columns Values returns, in order. They are written
	// on both insert and update.
	Writable []string
	Values   func(*T) []any
	OwnerOf  func(*T) any

	// KeyOf is set for tables with caller-assigned keys.
	KeyOf func(*T) any
	// Touch sets updated_at on update.
	Touch bool
}

// Querier is the read side of a repository. Entity specific queries are
// free functions over it.
type Querier[T any] interface {
	Where(clause string, args ...any) ([]T, error)
	First(clause string, args ...any) (*T, error)
	DB() *sql.DB
}

// Repository implements find, create, update and delete once for every
// table described by a Table.
type Repository[T any] struct {
	db   *sql.DB
	t    Table[T]
	cols string
}

func NewRepository[T any](db *sql.DB, t Table[T]) *Repository[T] {
	if t.Key == "" {
		t.Key = "id"
	}
	return &Repository[T]{db: db, t: t, cols: strings.Join(t.Select, ", ")}
}

func (r *Repository[T]) DB() *sql.DB { return r.db }

// Where returns every row matching clause in the table's order.
func (r *Repository[T]) Where(clause string, args ...any) ([]T, error) {
	q := `SELECT ` + r.cols + ` FROM ` + r.t.Name
	if clause != "" {
		q += ` WHERE ` + clause
	}
	if r.t.Order != "" {
		q += ` ORDER BY ` + r.t.Order
	}

	rows, err := r.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", r.t.Name, err)
	}
	defer rows.Close()

	var out []T
	for rows.Next() {
		v, err := r.t.Scan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", r.t.Name, err)
		}
		out = append(out, *v)
	}
	return out, rows.Err()
}

// First returns the first row matching clause, or nil when there is none.
func (r *Repository[T]) First(clause string, args ...any) (*T, error) {
	q := `SELECT ` + r.cols + ` FROM ` + r.t.Name + ` WHERE ` + clause
	if r.t.Order != "" {
		q += ` ORDER BY ` + r.t.Order
	}
	v, err := r.t.Scan(r.db.QueryRow(q+` LIMIT 1`, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", r.t.Name, err)
	}
	return v, nil
}

func (r *Repository[T]) FindAll(ownerID any) ([]T, error) {
	return r.Where(r.t.Owner+` = ?`, ownerID)
}

func (r *Repository[T]) FindByID(ownerID, id any) (*T, error) {
	return r.First(r.t.Key+` = ? AND `+r.t.Owner+` = ?`, id, ownerID)
}

// Get loads a row by key without owner scoping.
func (r *Repository[T]) Get(id any) (*T, error) {
	return r.First(r.t.Key+` = ?`, id)
}

func (r *Repository[T]) Create(v *T) (*T, error) {
	cols := append([]string{r.t.Owner}, r.t.Writable...)
	args := append([]any{r.t.OwnerOf(v)}, r.t.Values(v)...)
	if r.t.KeyOf != nil {
		cols = append([]string{r.t.Key}, cols...)
		args = append([]any{r.t.KeyOf(v)}, args...)
	}

	result, err := r.db.Exec(
		`INSERT INTO `+r.t.Name+` (`+strings.Join(cols, ", ")+`) VALUES (`+placeholders(len(cols))+`)`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("insert %s: %w", r.t.Name, err)
	}

	if r.t.KeyOf != nil {
		return r.Get(r.t.KeyOf(v))
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return r.Get(id)
}

// Update writes the writable columns of v to the row (ownerID, id). It
// returns nil when no such row exists.
func (r *Repository[T]) Update(ownerID, id any, v *T) (*T, error) {
	sets := make([]string, 0, len(r.t.Writable)+1)
	for _, c := range r.t.Writable {
		sets = append(sets, c+` = ?`)
	}
	if r.t.Touch {
		sets = append(sets, `updated_at = CURRENT_TIMESTAMP`)
	}
	args := append(r.t.Values(v), id, ownerID)

	result, err := r.db.Exec(
		`UPDATE `+r.t.Name+` SET `+strings.Join(sets, ", ")+` WHERE `+r.t.Key+` = ? AND `+r.t.Owner+` = ?`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("update %s: %w", r.t.Name, err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return nil, nil
	}
	return r.Get(id)
}

// Delete removes the row and reports whether it existed.
func (r *Repository[T]) Delete(ownerID, id any) (bool, error) {
	result, err := r.db.Exec(`DELETE FROM `+r.t.Name+` WHERE `+r.t.Key+` = ? AND `+r.t.Owner+` = ?`, id, ownerID)
	if err != nil {
		return false, fmt.Errorf("delete %s: %w", r.t.Name, err)
	}
	n, _ := result.RowsAffected()
	return n > 0, nil
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?, ", n-1) + "?"
}

func nullTime(t *time.Time) any {
	if t == nil || t.IsZero() {
		return nil
	}
	return t.UTC()
}

func nullString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func nullInt64(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}
