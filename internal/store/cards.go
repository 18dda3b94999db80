package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/wt7141789/ST-Manager/pkg/models"
)

// UpsertCard inserts or replaces a card row.
func (s *Store) UpsertCard(ctx context.Context, c *models.Card) error {
	tags, err := json.Marshal(c.Tags)
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO cards (id, category, char_name, char_version, tags_json,
		                   favorite, token_count, file_size, created_at, last_modified)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
		  category = excluded.category,
		  char_name = excluded.char_name,
		  char_version = excluded.char_version,
		  tags_json = excluded.tags_json,
		  favorite = excluded.favorite,
		  token_count = excluded.token_count,
		  file_size = excluded.file_size,
		  created_at = excluded.created_at,
		  last_modified = excluded.last_modified`,
		c.ID, c.Category, c.Name, c.Version, string(tags),
		boolToInt(c.Favorite), c.TokenCount, c.FileSize, c.CreatedAt, c.LastModified)
	if err != nil {
		return fmt.Errorf("upsert card %s: %w", c.ID, err)
	}
	return nil
}

// GetCard returns one card row, or ErrNotFound.
func (s *Store) GetCard(ctx context.Context, id string) (*models.Card, error) {
	row := s.db.QueryRowContext(ctx, cardSelect+" WHERE id = ?", id)
	c, err := scanCard(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &ErrNotFound{Entity: "card", Key: id}
	}
	return c, err
}

// ListCards returns all card rows.
func (s *Store) ListCards(ctx context.Context) ([]models.Card, error) {
	rows, err := s.db.QueryContext(ctx, cardSelect)
	if err != nil {
		return nil, fmt.Errorf("list cards: %w", err)
	}
	defer rows.Close()

	var out []models.Card
	for rows.Next() {
		c, err := scanCard(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// QueryCategory returns the ids of all cards in the given category. When
// recursive, cards whose id is lexically prefixed by category+"/" are
// included too; root ("") with recursive matches every card. SQL wildcard
// characters in the category are escaped, never interpreted.
func (s *Store) QueryCategory(ctx context.Context, category string, recursive bool) ([]string, error) {
	var rows *sql.Rows
	var err error
	switch {
	case category == "" && recursive:
		rows, err = s.db.QueryContext(ctx, "SELECT id FROM cards")
	case !recursive:
		rows, err = s.db.QueryContext(ctx, "SELECT id FROM cards WHERE category = ?", category)
	default:
		rows, err = s.db.QueryContext(ctx,
			`SELECT id FROM cards WHERE category = ? OR id LIKE ? || '/%' ESCAPE '\'`,
			category, escapeLike(category))
	}
	if err != nil {
		return nil, fmt.Errorf("query category %q: %w", category, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// RenameCard rewrites a card's identifier and category after a move.
func (s *Store) RenameCard(ctx context.Context, oldID, newID, newCategory string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE cards SET id = ?, category = ? WHERE id = ?", newID, newCategory, oldID)
	if err != nil {
		return fmt.Errorf("rename card %s: %w", oldID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &ErrNotFound{Entity: "card", Key: oldID}
	}
	return nil
}

// UpdateCardTags replaces a card's tag set.
func (s *Store) UpdateCardTags(ctx context.Context, id string, tags []string) error {
	data, err := json.Marshal(tags)
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		"UPDATE cards SET tags_json = ? WHERE id = ?", string(data), id)
	if err != nil {
		return fmt.Errorf("update tags for %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &ErrNotFound{Entity: "card", Key: id}
	}
	return nil
}

// UpdateCardFavorite sets a card's favorite flag.
func (s *Store) UpdateCardFavorite(ctx context.Context, id string, favorite bool) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE cards SET favorite = ? WHERE id = ?", boolToInt(favorite), id)
	if err != nil {
		return fmt.Errorf("update favorite for %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &ErrNotFound{Entity: "card", Key: id}
	}
	return nil
}

// DeleteCard removes a card row. Deleting a missing id is not an error.
func (s *Store) DeleteCard(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM cards WHERE id = ?", id); err != nil {
		return fmt.Errorf("delete card %s: %w", id, err)
	}
	return nil
}

const cardSelect = `SELECT id, category, char_name, char_version, tags_json,
	favorite, token_count, file_size, created_at, last_modified FROM cards`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCard(row rowScanner) (*models.Card, error) {
	var c models.Card
	var tagsJSON string
	var fav int
	err := row.Scan(&c.ID, &c.Category, &c.Name, &c.Version, &tagsJSON,
		&fav, &c.TokenCount, &c.FileSize, &c.CreatedAt, &c.LastModified)
	if err != nil {
		return nil, err
	}
	c.Favorite = fav != 0
	if err := json.Unmarshal([]byte(tagsJSON), &c.Tags); err != nil {
		c.Tags = nil
	}
	return &c, nil
}

// escapeLike escapes SQL LIKE wildcards so a category containing % or _
// matches literally.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	s = strings.ReplaceAll(s, `_`, `\_`)
	return s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
