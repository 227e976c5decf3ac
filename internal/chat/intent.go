package chat

import "strings"

// Intent is what a chat message asks for.
type Intent string

const (
	IntentList   Intent = "list"
	IntentUpdate Intent = "update"
	IntentCreate Intent = "create"
)

var (
	listKeywords   = []string{"list", "show", "view"}
	updateKeywords = []string{"update", "change", "modify", "edit"}
)

// ClassifyIntent maps a message to an intent with case-insensitive substring checks.
// List keywords are checked before update keywords; everything else is a create.
// Substring matching misfires on words such as "review" or "showcase".
func ClassifyIntent(text string) Intent {
	lower := strings.ToLower(text)
	if containsAny(lower, listKeywords) {
		return IntentList
	}
	if containsAny(lower, updateKeywords) {
		return IntentUpdate
	}
	return IntentCreate
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
