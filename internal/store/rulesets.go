package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/wt7141789/ST-Manager/pkg/models"
)

// ListRulesets returns id + summary for every stored ruleset.
func (s *Store) ListRulesets(ctx context.Context) ([]models.RulesetSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, doc, updated_at FROM rulesets ORDER BY updated_at DESC")
	if err != nil {
		return nil, fmt.Errorf("list rulesets: %w", err)
	}
	defer rows.Close()

	var out []models.RulesetSummary
	for rows.Next() {
		var sum models.RulesetSummary
		var doc string
		if err := rows.Scan(&sum.ID, &sum.Name, &doc, &sum.UpdatedAt); err != nil {
			return nil, err
		}
		var rs models.Ruleset
		if err := json.Unmarshal([]byte(doc), &rs); err == nil {
			sum.RuleCount = len(rs.Rules)
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}

// GetRuleset returns one ruleset document, or ErrNotFound.
func (s *Store) GetRuleset(ctx context.Context, id string) (*models.Ruleset, error) {
	var doc string
	err := s.db.QueryRowContext(ctx,
		"SELECT doc FROM rulesets WHERE id = ?", id).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &ErrNotFound{Entity: "ruleset", Key: id}
	}
	if err != nil {
		return nil, fmt.Errorf("get ruleset %s: %w", id, err)
	}
	var rs models.Ruleset
	if err := json.Unmarshal([]byte(doc), &rs); err != nil {
		return nil, fmt.Errorf("decode ruleset %s: %w", id, err)
	}
	rs.ID = id
	return &rs, nil
}

// SaveRuleset persists a ruleset document. When id is empty a new one is
// assigned. Returns the id the document was saved under.
func (s *Store) SaveRuleset(ctx context.Context, id string, rs *models.Ruleset) (string, error) {
	if id == "" {
		id = uuid.New().String()
	}
	rs.ID = id
	doc, err := json.Marshal(rs)
	if err != nil {
		return "", fmt.Errorf("encode ruleset: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO rulesets (id, name, doc, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
		  name = excluded.name,
		  doc = excluded.doc,
		  updated_at = excluded.updated_at`,
		id, rs.Meta.Name, string(doc), time.Now().Unix())
	if err != nil {
		return "", fmt.Errorf("save ruleset %s: %w", id, err)
	}
	return id, nil
}

// DeleteRuleset removes a ruleset document, reporting whether it existed.
func (s *Store) DeleteRuleset(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM rulesets WHERE id = ?", id)
	if err != nil {
		return false, fmt.Errorf("delete ruleset %s: %w", id, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// GetSetting returns a settings value, or "" when unset.
func (s *Store) GetSetting(ctx context.Context, key string) (string, error) {
	var v string
	err := s.db.QueryRowContext(ctx,
		"SELECT value FROM settings WHERE key = ?", key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get setting %s: %w", key, err)
	}
	return v, nil
}

// SetSetting writes a settings value. An empty value clears the key.
func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	if value == "" {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM settings WHERE key = ?", key); err != nil {
			return fmt.Errorf("clear setting %s: %w", key, err)
		}
		return nil
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("set setting %s: %w", key, err)
	}
	return nil
}
