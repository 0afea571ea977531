package store

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/dukerupert/tareas/internal/model"
)

var categoryTable = Table[model.Category]{
	Name:   "categories",
	Owner:  "user_id",
	Order:  "name",
	Select: []string{"id", "user_id", "name", "color", "created_at"},
	Scan: func(scanner Scanner) (*model.Category, error) {
		var c model.Category
		if err := scanner.Scan(&c.ID, &c.UserID, &c.Name, &c.Color, &c.CreatedAt); err != nil {
			return nil, err
		}
		return &c, nil
	},
	Writable: []string{"name", "color"},
	Values:   func(c *model.Category) []any { return []any{c.Name, c.Color} },
	OwnerOf:  func(c *model.Category) any { return c.UserID },
}

var tagTable = Table[model.Tag]{
	Name:   "tags",
	Owner:  "user_id",
	Order:  "name",
	Select: []string{"id", "user_id", "name", "color", "created_at"},
	Scan: func(scanner Scanner) (*model.Tag, error) {
		var t model.Tag
		if err := scanner.Scan(&t.ID, &t.UserID, &t.Name, &t.Color, &t.CreatedAt); err != nil {
			return nil, err
		}
		return &t, nil
	},
	Writable: []string{"name", "color"},
	Values:   func(t *model.Tag) []any { return []any{t.Name, t.Color} },
	OwnerOf:  func(t *model.Tag) any { return t.UserID },
}

func NewCategoryStore(db *sql.DB) *Repository[model.Category] {
	return NewRepository(db, categoryTable)
}

type TagStore struct {
	*Repository[model.Tag]
}

func NewTagStore(db *sql.DB) *TagStore {
	return &TagStore{Repository: NewRepository(db, tagTable)}
}

// Names returns the names of a user's tags.
func (s *TagStore) Names(userID int64) ([]string, error) {
	tags, err := s.FindAll(userID)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(tags))
	for i, t := range tags {
		names[i] = t.Name
	}
	return names, nil
}

// Ensure returns the ids of the named tags, creating the missing ones.
// Matching ignores case and surrounding space.
func (s *TagStore) Ensure(userID int64, names []string) ([]int64, error) {
	existing, err := s.FindAll(userID)
	if err != nil {
		return nil, err
	}
	byName := make(map[string]int64, len(existing))
	for _, t := range existing {
		byName[strings.ToLower(t.Name)] = t.ID
	}

	var ids []int64
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if id, ok := byName[strings.ToLower(name)]; ok {
			ids = append(ids, id)
			continue
		}
		created, err := s.Create(&model.Tag{UserID: userID, Name: name})
		if err != nil {
			return nil, fmt.Errorf("create tag %q: %w", name, err)
		}
		byName[strings.ToLower(name)] = created.ID
		ids = append(ids, created.ID)
	}
	return ids, nil
}
