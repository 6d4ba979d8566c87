package matcher

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"keyword_forwarder/internal/model"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "lowercases", in: "Hello World", want: "hello world"},
		{name: "collapses whitespace", in: "a\t b \n c", want: "a b c"},
		{name: "trims", in: "  padded  ", want: "padded"},
		{name: "empty", in: "", want: ""},
		{name: "only whitespace", in: " \t\n ", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, Normalize(tt.in)); diff != "" {
				t.Errorf("Normalize(%q) mismatch (-want +got):\n%s", tt.in, diff)
			}
		})
	}
}

func TestKeywords(t *testing.T) {
	tests := []struct {
		name string
		in   []string
		want []string
	}{
		{
			name: "dedup is case-insensitive, original case kept",
			in:   []string{" Foo ", "foo", "bar", ""},
			want: []string{"Foo", "bar"},
		},
		{
			name: "order preserved",
			in:   []string{"zzz", "aaa", "mmm"},
			want: []string{"zzz", "aaa", "mmm"},
		},
		{
			name: "all blank",
			in:   []string{"", "  ", "\t"},
			want: nil,
		},
		{
			name: "whitespace-variant duplicates collapse",
			in:   []string{"go  lang", "Go Lang"},
			want: []string{"go  lang"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, Keywords(tt.in)); diff != "" {
				t.Errorf("Keywords mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestMatch(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		keywords []string
		want     model.MatchResult
	}{
		{
			name:     "case insensitive",
			text:     "Hello BAR world",
			keywords: []string{"foo", "bar"},
			want:     model.MatchResult{Matched: true, Keyword: "bar"},
		},
		{
			name:     "first configured keyword wins",
			text:     "alpha beta gamma",
			keywords: []string{"gamma", "alpha"},
			want:     model.MatchResult{Matched: true, Keyword: "gamma"},
		},
		{
			name:     "substring semantics",
			text:     "filed under category five",
			keywords: []string{"cat"},
			want:     model.MatchResult{Matched: true, Keyword: "cat"},
		},
		{
			name:     "whitespace in text normalized before comparison",
			text:     "deploy   to\tproduction",
			keywords: []string{"to production"},
			want:     model.MatchResult{Matched: true, Keyword: "to production"},
		},
		{
			name:     "no match",
			text:     "nothing interesting",
			keywords: []string{"foo", "bar"},
			want:     model.MatchResult{},
		},
		{
			name:     "empty text",
			text:     "",
			keywords: []string{"foo"},
			want:     model.MatchResult{},
		},
		{
			name:     "empty keyword set",
			text:     "some text",
			keywords: nil,
			want:     model.MatchResult{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, Match(tt.text, tt.keywords)); diff != "" {
				t.Errorf("Match mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
