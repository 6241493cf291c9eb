package fuzzy

import (
	"slices"
	"testing"
)

func TestSoundex_Encode(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"SMITH", "S530"},
		{"Smyth", "S530"},
		{"SMITHSON", "S532"},
		{"Robert", "R163"},
		{"Rupert", "R163"},
		{"Ashcraft", "A261"},
		{"Pfister", "P236"},
		{"Lee", "L000"},
		{"Müller", "M460"},
		{"", ""},
		{"123", ""},
	}
	enc := NewSoundex()
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := enc.Encode(tt.in); got != tt.want {
				t.Errorf("Encode(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestESoundex_Encode(t *testing.T) {
	enc := NewESoundex()
	if got := enc.Encode("SMITHSON"); got != "S5325" {
		t.Errorf("Encode(SMITHSON) = %q, want S5325", got)
	}
	if got := enc.Encode("LEE"); got != "L" {
		t.Errorf("Encode(LEE) = %q, want L", got)
	}
	if enc.Encode("SMITH") == enc.Encode("SMITHSON") {
		t.Error("ESoundex should distinguish SMITH and SMITHSON")
	}
}

func TestByName(t *testing.T) {
	if _, err := ByName("soundex"); err != nil {
		t.Errorf("ByName(soundex) error = %v", err)
	}
	if _, err := ByName("ESOUNDEX"); err != nil {
		t.Errorf("ByName(ESOUNDEX) error = %v", err)
	}
	if _, err := ByName("metaphone"); err == nil {
		t.Error("ByName(metaphone) should fail")
	}
}

func TestTokens(t *testing.T) {
	got := Tokens("Doe-Smith^Jöhn^^Dr.")
	want := []string{"DOE", "SMITH", "JOHN", "DR"}
	if !slices.Equal(got, want) {
		t.Errorf("Tokens = %v, want %v", got, want)
	}
	if got := Tokens("SM*^J?HN"); !slices.Equal(got, []string{"SM*", "J?HN"}) {
		t.Errorf("Tokens with wildcards = %v", got)
	}
}

func TestMatch(t *testing.T) {
	tests := []struct {
		name  string
		query string
		value string
		want  bool
	}{
		{"Phonetic", "SMITH", "SMYTH^JOHN", true},
		{"Case and punctuation", "smith, john", "SMYTH^JON", true},
		{"Order insensitive", "JOHN^SMITH", "SMYTH^JOHN", true},
		{"Different", "SMITH", "JONES^ANNA", false},
		{"Not a longer surname", "SMITH", "SMITHSON^JANE", false},
		{"Extra query token", "SMITH^MARY", "SMYTH^JOHN", false},
		{"Wildcard token literal", "SMI*", "SMITH^JOHN", true},
		{"Wildcard token not phonetic", "SMY*", "SMITH^JOHN", false},
		{"Empty query", "", "ANY^ONE", true},
	}
	encoders := []struct {
		name string
		enc  Encoder
	}{
		{"soundex", NewSoundex()},
		{"esoundex", NewESoundex()},
	}
	for _, e := range encoders {
		for _, tt := range tests {
			t.Run(e.name+"/"+tt.name, func(t *testing.T) {
				if got := Match(e.enc, tt.query, tt.value); got != tt.want {
					t.Errorf("Match(%q, %q) = %v, want %v", tt.query, tt.value, got, tt.want)
				}
			})
		}
	}
}

func TestKeys(t *testing.T) {
	got := Keys(NewSoundex(), "SMITH^SMYTH^JOHN")
	want := []string{"J500", "S530"}
	if !slices.Equal(got, want) {
		t.Errorf("Keys = %v, want %v", got, want)
	}
}
