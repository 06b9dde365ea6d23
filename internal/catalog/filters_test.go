package catalog

import (
	"reflect"
	"testing"
)

func TestFilters_Matches(t *testing.T) {
	f := Filters{
		Keywords:        []string{"Election"},
		ExcludeKeywords: []string{"parlay"},
		Categories:      []string{"politics"},
	}.Normalized()

	if !f.Matches("presidential election odds", []string{"Politics"}, nil, nil) {
		t.Fatal("matching blob and category should pass")
	}
	if f.Matches("election parlay special", []string{"Politics"}, nil, nil) {
		t.Fatal("exclude keyword must veto")
	}
	if f.Matches("presidential election odds", []string{"Sports"}, nil, nil) {
		t.Fatal("configured category dimension must match")
	}
	if f.Matches("world cup final", []string{"Politics"}, nil, nil) {
		t.Fatal("keyword dimension must match")
	}
}

func TestFilters_TagAndCompanyDimensions(t *testing.T) {
	f := Filters{Tags: []string{"AI"}}.Normalized()
	if !f.Matches("anything", nil, nil, []string{"ai", "tech"}) {
		t.Fatal("tag match should pass")
	}
	if f.Matches("anything", nil, nil, []string{"sports"}) {
		t.Fatal("missing tag should fail")
	}

	companies := Filters{Companies: []string{"OpenAI"}}.Normalized()
	if !companies.Matches("will openai release a model", nil, nil, nil) {
		t.Fatal("company keyword matches against the blob")
	}
}

func TestFilters_InactiveMatchesEverything(t *testing.T) {
	var f Filters
	if f.Active() {
		t.Fatal("empty filter set must be inactive")
	}
	if !f.Matches("", nil, nil, nil) {
		t.Fatal("inactive filters match everything")
	}
}

func TestBuildTextBlob(t *testing.T) {
	blob := BuildTextBlob([]string{"Title", ""}, []string{"Politics"})
	if blob != "title politics" {
		t.Fatalf("blob = %q", blob)
	}
}

func TestExtractTagNames(t *testing.T) {
	cases := []struct {
		name  string
		input any
		want  []string
	}{
		{"object list", []any{
			map[string]any{"name": "Politics"},
			map[string]any{"label": "Elections"},
		}, []string{"Politics", "Elections"}},
		{"scalar list", []any{"ai", 7.0}, []string{"ai", "7"}},
		{"single object", map[string]any{"tag": "Tech"}, []string{"Tech"}},
		{"nil", nil, nil},
		{"empty object", map[string]any{"id": ""}, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ExtractTagNames(tc.input)
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("ExtractTagNames(%v) = %v, want %v", tc.input, got, tc.want)
			}
		})
	}
}

func TestExtractList(t *testing.T) {
	wrapped := map[string]any{"markets": []any{map[string]any{"ticker": "A"}}}
	if items := extractList(wrapped, "markets", "data"); len(items) != 1 {
		t.Fatalf("wrapped list: got %d items", len(items))
	}
	bare := []any{map[string]any{"ticker": "A"}, "junk"}
	if items := extractList(bare); len(items) != 1 {
		t.Fatalf("bare list: got %d items", len(items))
	}
	if items := extractList(map[string]any{"other": 1}, "markets"); items != nil {
		t.Fatalf("missing key: got %v", items)
	}
}
