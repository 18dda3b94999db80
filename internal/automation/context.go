package automation

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/wt7141789/ST-Manager/pkg/models"
)

// Context is the record one card is evaluated against: the cached attributes
// plus, when the batch needs them, the deep attributes spliced in from the
// card file. Deep == nil means the deep attributes are absent; conditions on
// them fail rather than matching empty values.
type Context struct {
	Card models.Card
	Deep *models.DeepData
}

// NewContext builds the evaluation record from a cached card. Deep data
// already resident on the cached record is carried over.
func NewContext(card *models.Card) *Context {
	return &Context{Card: *card, Deep: card.Deep}
}

// SpliceDeep merges fetched deep data into the context without overwriting
// attributes already present from the cache.
func (c *Context) SpliceDeep(d *models.DeepData) {
	if d == nil {
		return
	}
	if c.Deep == nil {
		c.Deep = &models.DeepData{}
	}
	if c.Deep.CharacterBook == nil {
		c.Deep.CharacterBook = d.CharacterBook
	}
	if c.Deep.Extensions == nil {
		c.Deep.Extensions = d.Extensions
	}
}

// valueKind discriminates what a field resolved to.
type valueKind int

const (
	kindString valueKind = iota
	kindNumber
	kindBool
	kindSet
)

// fieldValue is the typed result of a record lookup.
type fieldValue struct {
	kind valueKind
	str  string
	num  float64
	b    bool
	set  []string
}

func strVal(s string) fieldValue   { return fieldValue{kind: kindString, str: s} }
func numVal(n float64) fieldValue  { return fieldValue{kind: kindNumber, num: n} }
func boolVal(b bool) fieldValue    { return fieldValue{kind: kindBool, b: b} }
func setVal(s []string) fieldValue { return fieldValue{kind: kindSet, set: s} }

// Field resolves an internal record key against the context. The second
// return is false when the attribute is absent, in particular for every deep
// key while Deep is nil. Token count is always present, defaulting to 0.
func (c *Context) Field(key string) (fieldValue, bool) {
	switch key {
	case keyName:
		return strVal(c.Card.Name), true
	case keyVersion:
		return strVal(c.Card.Version), true
	case keyCategory:
		return strVal(c.Card.Category), true
	case keyTags:
		return setVal(c.Card.Tags), true
	case keyFavorite:
		return boolVal(c.Card.Favorite), true
	case keyTokenCount:
		return numVal(float64(c.Card.TokenCount)), true
	case keyFileSize:
		return numVal(float64(c.Card.FileSize)), true
	case keyCreatedAt:
		return numVal(float64(c.Card.CreatedAt)), true
	case keyLastModified:
		return numVal(float64(c.Card.LastModified)), true
	}

	if c.Deep == nil {
		return fieldValue{}, false
	}
	switch key {
	case keyCharacterBook:
		if c.Deep.CharacterBook == nil {
			return fieldValue{}, false
		}
		return strVal(c.Deep.CharacterBook.Name), true
	case keyExtensions:
		if c.Deep.Extensions == nil {
			return fieldValue{}, false
		}
		return setVal(extensionKeys(c.Deep.Extensions)), true
	case keyWIName:
		if c.Deep.CharacterBook == nil {
			return fieldValue{}, false
		}
		parts := []string{c.Deep.CharacterBook.Name}
		for _, e := range c.Deep.CharacterBook.Entries {
			parts = append(parts, e.Name)
		}
		return strVal(strings.Join(parts, "\n")), true
	case keyWIContent:
		if c.Deep.CharacterBook == nil {
			return fieldValue{}, false
		}
		var parts []string
		for _, e := range c.Deep.CharacterBook.Entries {
			parts = append(parts, e.Content)
		}
		return strVal(strings.Join(parts, "\n")), true
	case keyRegexName:
		return scriptField(c.Deep.Extensions, "regex_scripts", true)
	case keyRegexContent:
		return scriptField(c.Deep.Extensions, "regex_scripts", false)
	case keySTScriptName:
		return scriptField(c.Deep.Extensions, "st_scripts", true)
	case keySTScriptContent:
		return scriptField(c.Deep.Extensions, "st_scripts", false)
	}
	return fieldValue{}, false
}

// scriptField derives the joined script names or contents stored under an
// extensions key. Absent or undecodable blocks resolve as absent.
func scriptField(ext map[string]json.RawMessage, extKey string, names bool) (fieldValue, bool) {
	raw, ok := ext[extKey]
	if !ok {
		return fieldValue{}, false
	}
	var entries []models.ScriptEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return fieldValue{}, false
	}
	var parts []string
	for _, e := range entries {
		if names {
			parts = append(parts, e.Name)
		} else {
			parts = append(parts, e.Content)
		}
	}
	return strVal(strings.Join(parts, "\n")), true
}

func extensionKeys(ext map[string]json.RawMessage) []string {
	keys := make([]string, 0, len(ext))
	for k := range ext {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
