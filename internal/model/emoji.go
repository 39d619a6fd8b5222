package model

import (
	"strings"
	"unicode"
)

// EmojiKind classifies a custom-link emoji at data entry. Invalid values are
// rejected before persistence rather than filtered at render time.
type EmojiKind int

const (
	EmojiInvalid EmojiKind = iota
	EmojiUnicode
	EmojiCustom
)

// customEmojiPrefix marks a reference to a platform-hosted custom emoji,
// e.g. "tg-emoji:5368324170671202286".
const customEmojiPrefix = "tg-emoji:"

// maxEmojiRunes bounds a single unicode emoji cluster (base + variation
// selectors / ZWJ-joined parts).
const maxEmojiRunes = 8

// ClassifyEmoji tags an emoji string as a unicode emoji, a custom emoji
// reference, or invalid.
func ClassifyEmoji(s string) EmojiKind {
	s = strings.TrimSpace(s)
	if s == "" {
		return EmojiInvalid
	}
	if rest, ok := strings.CutPrefix(s, customEmojiPrefix); ok {
		if rest == "" {
			return EmojiInvalid
		}
		for _, r := range rest {
			if r < '0' || r > '9' {
				return EmojiInvalid
			}
		}
		return EmojiCustom
	}
	n := 0
	for _, r := range s {
		n++
		if n > maxEmojiRunes || !emojiRune(r) {
			return EmojiInvalid
		}
	}
	return EmojiUnicode
}

func emojiRune(r rune) bool {
	switch {
	case r >= 0x1F000 && r <= 0x1FAFF: // pictographs, transport, supplemental
		return true
	case r >= 0x2600 && r <= 0x27BF: // misc symbols, dingbats
		return true
	case r >= 0x1F1E6 && r <= 0x1F1FF: // regional indicators
		return true
	case r == 0x200D || r == 0xFE0F || r == 0x20E3: // ZWJ, VS16, keycap
		return true
	case r >= 0x2190 && r <= 0x21FF: // arrows
		return true
	}
	return unicode.Is(unicode.So, r)
}
