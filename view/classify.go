package view

import (
	"strings"

	"github.com/mqy/sigview/relay"
)

// Kind tells whether a contact token names an individual or a group.
type Kind int

const (
	Individual Kind = iota
	Group
)

func (k Kind) String() string {
	if k == Group {
		return "group"
	}
	return "individual"
}

// Classify decides the kind of a bare contact token. Group ids are opaque
// base64 strings, so a trailing padding character marks a group. This is a
// best-effort heuristic, not a verified decode: a malformed token can be
// misclassified and that is not an error.
func Classify(token string) Kind {
	if strings.HasSuffix(token, "=") {
		return Group
	}
	return Individual
}

// ClassifyConversation prefers the relay's explicit group flag over the
// token heuristic. Placeholder conversations carry no flag and fall back to
// Classify.
func ClassifyConversation(conv *relay.Conversation) Kind {
	if conv.IsGroup {
		return Group
	}
	return Classify(conv.ContactNumber)
}
