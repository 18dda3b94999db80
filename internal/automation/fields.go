// Package automation implements the rule evaluation and batch execution
// pipeline: selection snapshot → deep-field analysis → per-card context →
// evaluation → plan merge → execution.
package automation

// Internal record keys referenced by rule conditions. UI-facing field names
// translate to these through fieldMap.
const (
	keyName         = "char_name"
	keyVersion      = "char_version"
	keyCategory     = "category"
	keyTags         = "tags"
	keyFavorite     = "favorite"
	keyTokenCount   = "token_count"
	keyFileSize     = "file_size"
	keyCreatedAt    = "created_at"
	keyLastModified = "last_modified"

	keyCharacterBook   = "character_book"
	keyExtensions      = "extensions"
	keyWIName          = "wi_name"
	keyWIContent       = "wi_content"
	keyRegexName       = "regex_name"
	keyRegexContent    = "regex_content"
	keySTScriptName    = "st_script_name"
	keySTScriptContent = "st_script_content"
)

// fieldMap translates logical (UI-facing) field keys to internal record keys.
// Keys already in internal form pass through unchanged.
var fieldMap = map[string]string{
	"name":          keyName,
	"version":       keyVersion,
	"category":      keyCategory,
	"tags":          keyTags,
	"favorite":      keyFavorite,
	"token_count":   keyTokenCount,
	"file_size":     keyFileSize,
	"created_at":    keyCreatedAt,
	"last_modified": keyLastModified,

	"character_book":    keyCharacterBook,
	"extensions":        keyExtensions,
	"wi_name":           keyWIName,
	"wi_content":        keyWIContent,
	"regex_name":        keyRegexName,
	"regex_content":     keyRegexContent,
	"st_script_name":    keySTScriptName,
	"st_script_content": keySTScriptContent,
}

// deepKeys is the set of internal keys that require reading the card file:
// they are not guaranteed present in the cached record.
var deepKeys = map[string]struct{}{
	keyCharacterBook:   {},
	keyExtensions:      {},
	keyWIName:          {},
	keyWIContent:       {},
	keyRegexName:       {},
	keyRegexContent:    {},
	keySTScriptName:    {},
	keySTScriptContent: {},
}

// InternalKey translates a condition field to its internal record key.
// Unknown fields are returned as-is; lookup against the record decides
// whether they resolve.
func InternalKey(field string) string {
	if k, ok := fieldMap[field]; ok {
		return k
	}
	return field
}

// IsDeepField reports whether a condition field (logical or internal form)
// requires deep data.
func IsDeepField(field string) bool {
	if _, ok := deepKeys[field]; ok {
		return true
	}
	_, ok := deepKeys[InternalKey(field)]
	return ok
}
