package terms

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/bilal/netvelocimeter/pkg/nverr"
)

func TestNewRequiresTextOrURL(t *testing.T) {
	if _, err := New(CategoryEULA, "", ""); !errors.Is(err, nverr.ErrInvalidConfiguration) {
		t.Fatalf("New() error = %v, want ErrInvalidConfiguration", err)
	}
	if _, err := New(CategoryEULA, "text only", ""); err != nil {
		t.Errorf("New(text) error = %v", err)
	}
	if _, err := New(CategoryEULA, "", "https://example.com/eula"); err != nil {
		t.Errorf("New(url) error = %v", err)
	}
}

func TestNewRejectsInvalidCategory(t *testing.T) {
	for _, c := range []Category{CategoryAll, "", "license"} {
		if _, err := New(c, "text", ""); !errors.Is(err, nverr.ErrInvalidConfiguration) {
			t.Errorf("New(%q) error = %v, want ErrInvalidConfiguration", c, err)
		}
	}
}

func TestUniqueIDStableForEqualContent(t *testing.T) {
	a := MustNew(CategoryEULA, "Test EULA", "https://example.com/eula")
	b := MustNew(CategoryEULA, "Test EULA", "https://example.com/eula")

	if a.UniqueID() != b.UniqueID() {
		t.Fatalf("ids differ: %s vs %s", a.UniqueID(), b.UniqueID())
	}
	if !strings.HasPrefix(a.UniqueID(), "1/") || len(a.UniqueID()) != 24 {
		t.Errorf("UniqueID() = %q, want 1/ followed by 22 chars", a.UniqueID())
	}
}

func TestUniqueIDKnownValue(t *testing.T) {
	// sha256("Sample terms||EULA"), base64url, first 22 chars. The category
	// is hashed by name so ids match those of methodology 1.
	const want = "1/zYWtcdMZfzlbsts1L3BQYZ"
	if got := MustNew(CategoryEULA, "Sample terms", "").UniqueID(); got != want {
		t.Errorf("UniqueID() = %q, want %q", got, want)
	}
}

func TestStringUsesCategoryName(t *testing.T) {
	got := MustNew(CategoryPrivacy, "Be nice", "https://example.com/privacy").String()
	want := "category: PRIVACY\ntext: Be nice\nurl: https://example.com/privacy"
	if got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
	if got := MustNew(CategoryNDA, "", "https://example.com/nda").String(); got != "category: NDA\nurl: https://example.com/nda" {
		t.Errorf("String() = %q", got)
	}
}

func TestUniqueIDChangesWithContent(t *testing.T) {
	base := MustNew(CategoryEULA, "Test EULA", "https://example.com/eula")
	variants := []LegalTerms{
		MustNew(CategoryEULA, "Test EULA v2", "https://example.com/eula"),
		MustNew(CategoryEULA, "Test EULA", "https://example.com/eula2"),
		MustNew(CategoryPrivacy, "Test EULA", "https://example.com/eula"),
	}
	for _, v := range variants {
		if v.UniqueID() == base.UniqueID() {
			t.Errorf("%v shares id with %v", v, base)
		}
	}
}

func TestParseCategory(t *testing.T) {
	tests := []struct {
		in      string
		want    Category
		wantErr bool
	}{
		{"eula", CategoryEULA, false},
		{"EULA", CategoryEULA, false},
		{" Privacy ", CategoryPrivacy, false},
		{"all", CategoryAll, false},
		{"nda", CategoryNDA, false},
		{"bogus", "", true},
	}
	for _, tt := range tests {
		got, err := ParseCategory(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseCategory(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseCategory(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestCollectionFilter(t *testing.T) {
	c := Collection{
		MustNew(CategoryEULA, "e", ""),
		MustNew(CategoryService, "s", ""),
		MustNew(CategoryPrivacy, "p", ""),
	}

	if got := c.Filter(); len(got) != 3 {
		t.Errorf("Filter() len = %d, want 3", len(got))
	}
	if got := c.Filter(CategoryAll); len(got) != 3 {
		t.Errorf("Filter(all) len = %d, want 3", len(got))
	}
	got := c.Filter(CategoryPrivacy, CategoryEULA)
	if len(got) != 2 || got[0].Category() != CategoryEULA || got[1].Category() != CategoryPrivacy {
		t.Errorf("Filter(privacy, eula) = %v, want eula then privacy in declaration order", got)
	}
	if got := c.Filter(CategoryNDA); len(got) != 0 {
		t.Errorf("Filter(nda) = %v, want empty", got)
	}
}

func TestJSONRoundTrip(t *testing.T) {
	c := Collection{
		MustNew(CategoryEULA, "Test EULA", "https://example.com/eula"),
		MustNew(CategoryPrivacy, "", "https://example.com/privacy"),
	}
	data, err := json.Marshal(c)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), `"text":""`) {
		t.Errorf("absent text should be omitted: %s", data)
	}

	parsed, err := ParseJSON(data)
	if err != nil {
		t.Fatalf("ParseJSON() error = %v", err)
	}
	for i := range c {
		if parsed[i].UniqueID() != c[i].UniqueID() {
			t.Errorf("term %d id changed across json round trip", i)
		}
	}
}

func TestParseJSON(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		wantLen int
		wantErr bool
	}{
		{"single object", `{"category":"eula","text":"x"}`, 1, false},
		{"array", `[{"category":"eula","text":"x"},{"category":"service","url":"u"}]`, 2, false},
		{"accepted member ignored", `{"category":"eula","text":"x","accepted":false}`, 1, false},
		{"empty input", "  ", 0, true},
		{"empty array", "[]", 0, true},
		{"not json", "{notjson", 0, true},
		{"missing content", `{"category":"eula"}`, 0, true},
		{"bad category", `{"category":"all","text":"x"}`, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseJSON([]byte(tt.in))
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseJSON() error = %v, wantErr %v", err, tt.wantErr)
			}
			if len(got) != tt.wantLen {
				t.Errorf("ParseJSON() len = %d, want %d", len(got), tt.wantLen)
			}
		})
	}
}

func TestString(t *testing.T) {
	got := MustNew(CategoryEULA, "Test", "https://example.com").String()
	want := "category: eula\ntext: Test\nurl: https://example.com"
	if got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}
