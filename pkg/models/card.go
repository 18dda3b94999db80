package models

import (
	"encoding/json"
	"path"
)

// Card is one managed character card as held by the metadata index.
// ID is the card's path relative to the cards root, using forward slashes
// ("Fantasy/alice.png"); Category is the directory part ("" = root).
type Card struct {
	ID           string   `json:"id"`
	Category     string   `json:"category"`
	Name         string   `json:"name"`
	Version      string   `json:"version"`
	Tags         []string `json:"tags"`
	Favorite     bool     `json:"favorite"`
	TokenCount   int      `json:"token_count"`
	FileSize     int64    `json:"file_size"`
	CreatedAt    int64    `json:"created_at"`
	LastModified int64    `json:"last_modified"`

	// Deep holds the expensive attributes read from the card file itself.
	// Usually nil in the index; populated on demand during rule execution
	// and kept only for the lifetime of that batch.
	Deep *DeepData `json:"-"`
}

// HasTag reports whether the card carries the given tag (exact match).
func (c *Card) HasTag(tag string) bool {
	for _, t := range c.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Clone returns a deep copy safe to mutate outside the index lock.
func (c *Card) Clone() *Card {
	cp := *c
	cp.Tags = append([]string(nil), c.Tags...)
	if c.Deep != nil {
		d := *c.Deep
		cp.Deep = &d
	}
	return &cp
}

// Filename returns the last path element of the card's identifier.
func (c *Card) Filename() string {
	return path.Base(c.ID)
}

// DeepData holds the attributes that are expensive to obtain: they live
// inside the card file, not in the index. A nil pointer means "absent",
// which is not the same as present-but-empty.
type DeepData struct {
	CharacterBook *CharacterBook             `json:"character_book,omitempty"`
	Extensions    map[string]json.RawMessage `json:"extensions,omitempty"`
}

// CharacterBook is the embedded lore / world-info object of a card.
type CharacterBook struct {
	Name    string           `json:"name"`
	Entries []WorldInfoEntry `json:"entries"`
}

// WorldInfoEntry is a single lore entry.
type WorldInfoEntry struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

// ScriptEntry is a named script stored in a card's extensions block
// (regex scripts, ST scripts).
type ScriptEntry struct {
	Name    string `json:"scriptName"`
	Content string `json:"content"`
}

// CardInfo is the structured record produced by the card file extractor.
type CardInfo struct {
	Name       string
	Version    string
	TokenCount int
	Deep       *DeepData
}
