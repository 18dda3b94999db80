package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wt7141789/ST-Manager/pkg/models"
)

func openTest(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCardRoundTrip(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	now := time.Now().Unix()
	card := &models.Card{
		ID:           "Fantasy/alice.png",
		Category:     "Fantasy",
		Name:         "Alice",
		Version:      "1.2",
		Tags:         []string{"elf", "nsfw"},
		Favorite:     true,
		TokenCount:   1200,
		FileSize:     350000,
		CreatedAt:    now,
		LastModified: now,
	}
	require.NoError(t, s.UpsertCard(ctx, card))

	got, err := s.GetCard(ctx, "Fantasy/alice.png")
	require.NoError(t, err)
	assert.Equal(t, card.Name, got.Name)
	assert.Equal(t, card.Tags, got.Tags)
	assert.True(t, got.Favorite)
	assert.Equal(t, int64(350000), got.FileSize)

	// Upsert replaces the row, not duplicates it.
	card.Name = "Alice v2"
	require.NoError(t, s.UpsertCard(ctx, card))
	got, err = s.GetCard(ctx, "Fantasy/alice.png")
	require.NoError(t, err)
	assert.Equal(t, "Alice v2", got.Name)

	all, err := s.ListCards(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestGetCardMissing(t *testing.T) {
	s := openTest(t)
	_, err := s.GetCard(context.Background(), "nope.png")
	var nf *ErrNotFound
	assert.ErrorAs(t, err, &nf)
}

func TestQueryCategory(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	for _, id := range []string{"a.png", "X/b.png", "X/Y/c.png", "XY/d.png"} {
		cat := ""
		if i := lastSlash(id); i >= 0 {
			cat = id[:i]
		}
		require.NoError(t, s.UpsertCard(ctx, &models.Card{ID: id, Category: cat}))
	}

	ids, err := s.QueryCategory(ctx, "X", false)
	require.NoError(t, err)
	assert.Equal(t, []string{"X/b.png"}, ids)

	ids, err = s.QueryCategory(ctx, "X", true)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"X/b.png", "X/Y/c.png"}, ids)

	ids, err = s.QueryCategory(ctx, "", false)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.png"}, ids)

	ids, err = s.QueryCategory(ctx, "", true)
	require.NoError(t, err)
	assert.Len(t, ids, 4)
}

func lastSlash(s string) int {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == '/' {
			return i
		}
	}
	return -1
}

func TestRenameCard(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	require.NoError(t, s.UpsertCard(ctx, &models.Card{ID: "a.png", Category: "", Tags: []string{"t"}}))

	require.NoError(t, s.RenameCard(ctx, "a.png", "NSFW/a.png", "NSFW"))

	_, err := s.GetCard(ctx, "a.png")
	assert.Error(t, err)
	got, err := s.GetCard(ctx, "NSFW/a.png")
	require.NoError(t, err)
	assert.Equal(t, "NSFW", got.Category)
	assert.Equal(t, []string{"t"}, got.Tags)
}

func TestUpdateTagsAndFavorite(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	require.NoError(t, s.UpsertCard(ctx, &models.Card{ID: "a.png"}))

	require.NoError(t, s.UpdateCardTags(ctx, "a.png", []string{"x", "y"}))
	require.NoError(t, s.UpdateCardFavorite(ctx, "a.png", true))

	got, err := s.GetCard(ctx, "a.png")
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "y"}, got.Tags)
	assert.True(t, got.Favorite)

	require.NoError(t, s.UpdateCardTags(ctx, "a.png", nil))
	got, err = s.GetCard(ctx, "a.png")
	require.NoError(t, err)
	assert.Empty(t, got.Tags)
}

func TestDeleteCard(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	require.NoError(t, s.UpsertCard(ctx, &models.Card{ID: "a.png"}))
	require.NoError(t, s.DeleteCard(ctx, "a.png"))
	_, err := s.GetCard(ctx, "a.png")
	assert.Error(t, err)
}

func TestRulesetCRUD(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	rs := &models.Ruleset{
		Meta: models.RulesetMeta{Name: "sorter"},
		Rules: []models.Rule{
			{Actions: []models.Action{{Type: models.ActionAddTag, Value: "x"}}},
			{Actions: []models.Action{{Type: models.ActionSetFavorite, Value: "true"}}},
		},
	}
	id, err := s.SaveRuleset(ctx, "", rs)
	require.NoError(t, err)
	assert.NotEmpty(t, id, "new documents get a generated id")

	got, err := s.GetRuleset(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, got.ID)
	assert.Equal(t, "sorter", got.Meta.Name)
	assert.Len(t, got.Rules, 2)

	// Saving under the same id overwrites in place.
	rs.Meta.Name = "sorter v2"
	id2, err := s.SaveRuleset(ctx, id, rs)
	require.NoError(t, err)
	assert.Equal(t, id, id2)

	sums, err := s.ListRulesets(ctx)
	require.NoError(t, err)
	require.Len(t, sums, 1)
	assert.Equal(t, "sorter v2", sums[0].Name)
	assert.Equal(t, 2, sums[0].RuleCount)

	existed, err := s.DeleteRuleset(ctx, id)
	require.NoError(t, err)
	assert.True(t, existed)

	existed, err = s.DeleteRuleset(ctx, id)
	require.NoError(t, err)
	assert.False(t, existed)

	_, err = s.GetRuleset(ctx, id)
	var nf *ErrNotFound
	assert.ErrorAs(t, err, &nf)
}

func TestSettings(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	v, err := s.GetSetting(ctx, "k")
	require.NoError(t, err)
	assert.Empty(t, v, "unset key reads as empty")

	require.NoError(t, s.SetSetting(ctx, "k", "v1"))
	require.NoError(t, s.SetSetting(ctx, "k", "v2"))
	v, err = s.GetSetting(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v2", v)

	require.NoError(t, s.SetSetting(ctx, "k", ""))
	v, err = s.GetSetting(ctx, "k")
	require.NoError(t, err)
	assert.Empty(t, v)
}

func TestOpenIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	s1, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, s1.UpsertCard(context.Background(), &models.Card{ID: "a.png"}))
	require.NoError(t, s1.Close())

	// Reopening runs migrations as a no-op and keeps the data.
	s2, err := Open(dir)
	require.NoError(t, err)
	defer s2.Close()
	got, err := s2.GetCard(context.Background(), "a.png")
	require.NoError(t, err)
	assert.Equal(t, "a.png", got.ID)
}
