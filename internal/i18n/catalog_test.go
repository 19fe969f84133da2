package i18n

import (
	"testing"

	"golang.org/x/text/language"
)

func TestMatch(t *testing.T) {
	cases := []struct {
		accept string
		want   language.Tag
	}{
		{"", language.English},
		{"en-US,en;q=0.9", language.English},
		{"tr-TR,tr;q=0.9,en;q=0.5", language.Turkish},
		{"tr", language.Turkish},
		{"de-DE", language.English},
	}
	for _, tc := range cases {
		if got := Match(tc.accept); got != tc.want {
			t.Fatalf("Match(%q) = %v, want %v", tc.accept, got, tc.want)
		}
	}
}

func TestPrinterTranslates(t *testing.T) {
	en := Printer(language.English)
	if got := en.Sprintf(FieldRequired); got != FieldRequired {
		t.Fatalf("english: got %q", got)
	}
	tr := Printer(language.Turkish)
	if got := tr.Sprintf(FieldRequired); got != "Bu alan zorunludur." {
		t.Fatalf("turkish: got %q", got)
	}
}
