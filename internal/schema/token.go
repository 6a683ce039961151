package schema

import (
	"strings"

	"freightline/internal/fieldpath"
)

// TokenPrefix marks document-type tokens produced for step file fields. The
// full token format is "STEP_FIELD:<stepId>:<encodedFieldPath>" and is the
// stable convention bridging this engine and file-storage collaborators.
const TokenPrefix = "STEP_FIELD:"

// DocSet is the set of document-type tokens currently attached to a
// shipment's steps.
type DocSet map[string]struct{}

// NewDocSet builds a DocSet from a token list.
func NewDocSet(tokens []string) DocSet {
	s := make(DocSet, len(tokens))
	for _, t := range tokens {
		s[t] = struct{}{}
	}
	return s
}

// Token encodes the document-type token for a file field at path p on step
// stepID.
func Token(stepID string, p fieldpath.Path) string {
	return TokenPrefix + stepID + ":" + fieldpath.Encode(p)
}

// ParseToken splits a document-type token back into step id and field path.
func ParseToken(token string) (stepID string, p fieldpath.Path, ok bool) {
	rest, found := strings.CutPrefix(token, TokenPrefix)
	if !found {
		return "", nil, false
	}
	stepID, encoded, found := strings.Cut(rest, ":")
	if !found || stepID == "" {
		return "", nil, false
	}
	return stepID, fieldpath.Decode(encoded), true
}
