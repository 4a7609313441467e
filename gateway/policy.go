package gateway

import "strings"

// BlockedQueryMessage is returned as the error payload whenever the
// safety policy rejects a query.
const BlockedQueryMessage = "query blocked: only a single SELECT statement without ';' is allowed"

// bannedFragments are rejected wherever they appear in the query text,
// not just as leading keywords. The substring match is intentionally
// coarse: a query selecting a column literally named "created_by" is
// rejected too. That false positive is the accepted price for never
// letting a mutating statement through.
var bannedFragments = []string{
	"pragma",
	"attach",
	"detach",
	"insert",
	"update",
	"delete",
	"drop",
	"alter",
	"create",
}

// IsSafeSelect reports whether a query may be executed. It is a pure
// predicate over the query text: no database access, no side effects,
// the same verdict for the same input every time.
//
// A query passes when all of the following hold:
//   - it contains no ';' anywhere (forecloses multi-statement injection)
//   - its trimmed, lowered text starts with "select"
//   - it contains none of the banned fragments as a substring
func IsSafeSelect(query string) bool {
	s := strings.ToLower(strings.TrimSpace(query))

	if strings.Contains(s, ";") {
		return false
	}
	if !strings.HasPrefix(s, "select") {
		return false
	}
	for _, fragment := range bannedFragments {
		if strings.Contains(s, fragment) {
			return false
		}
	}
	return true
}
