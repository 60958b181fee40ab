package service

import "strings"

// Binding links a channel's contact id to an approved allowlist entry. The
// chat_id is informational only — matching is always on the normalized
// contact id, never on which chat/thread a message arrived through.
type Binding struct {
	Channel   string
	ContactID string
	ChatID    string // informational, not part of the match
}

// Normalize lowercases and trims a raw contact id so case and surrounding
// whitespace differences don't cause a legitimate binding to miss; other
// formatting differences (such as a leading "+1" vs "1") are not reconciled.
func Normalize(contactID string) string {
	return strings.ToLower(strings.TrimSpace(contactID))
}

// Matches reports whether rawContactID (as the adapter observed it) matches
// this binding, per normalize(contact_id) == binding.contact_id.
func (b Binding) Matches(rawContactID string) bool {
	return Normalize(rawContactID) == Normalize(b.ContactID)
}
