package fuzzy

import "strings"

// Soundex is the American Soundex algorithm with configurable key length.
type Soundex struct {
	// MaxLength truncates keys; 0 means unlimited.
	MaxLength int
	// PadLength pads keys with '0' up to this length.
	PadLength int
}

// NewSoundex returns classic four character Soundex.
func NewSoundex() *Soundex {
	return &Soundex{MaxLength: 4, PadLength: 4}
}

// NewESoundex returns extended Soundex: keys are neither truncated nor padded,
// so long names keep more of their distinguishing consonants.
func NewESoundex() *Soundex {
	return &Soundex{}
}

// soundex codes for A..Z; '0' separates, '-' is skipped without separating
var soundexCodes = [26]byte{
	'0', '1', '2', '3', '0', '1', '2', '-', '0', '2', '2', '4', '5',
	'5', '0', '1', '2', '6', '2', '3', '0', '1', '-', '2', '0', '2',
}

func code(r rune) (byte, bool) {
	if r >= 'a' && r <= 'z' {
		r -= 'a' - 'A'
	}
	if r < 'A' || r > 'Z' {
		return 0, false
	}
	return soundexCodes[r-'A'], true
}

// Encode implements Encoder. Characters outside A-Z are ignored.
func (s *Soundex) Encode(token string) string {
	var b strings.Builder
	var last byte
	for _, r := range Normalize(token) {
		c, ok := code(r)
		if !ok {
			continue
		}
		if b.Len() == 0 {
			b.WriteRune(r)
			last = c
			continue
		}
		if s.MaxLength > 0 && b.Len() >= s.MaxLength {
			break
		}
		switch c {
		case '-':
		case '0':
			last = c
		default:
			if c != last {
				b.WriteByte(c)
			}
			last = c
		}
	}
	if b.Len() == 0 {
		return ""
	}
	for b.Len() < s.PadLength {
		b.WriteByte('0')
	}
	return b.String()
}
