// Package terms models the legal terms a provider requires a user to accept
// and tracks which of them have been accepted.
//
// A [LegalTerms] value is immutable and has a content-derived identity
// ([LegalTerms.UniqueID]): two values with the same category, text and URL
// share an id across provider instances and process restarts, and any edit to
// the text yields a new id, which invalidates an earlier acceptance.
package terms

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/bilal/netvelocimeter/pkg/nverr"
)

// Category classifies a piece of legal text.
type Category string

const (
	CategoryEULA    Category = "eula"    // End User License Agreement
	CategoryService Category = "service" // Service terms of use
	CategoryPrivacy Category = "privacy" // Privacy policy
	CategoryNDA     Category = "nda"     // Non-disclosure agreement
	CategoryOther   Category = "other"   // Anything else

	// CategoryAll is a filter value meaning "no filter". It is never the
	// category of a LegalTerms value.
	CategoryAll Category = "all"
)

// Categories lists the concrete categories in declaration order.
var Categories = []Category{CategoryEULA, CategoryService, CategoryPrivacy, CategoryNDA, CategoryOther}

// ParseCategory parses a category name case-insensitively, including "all".
func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	if c == CategoryAll || c.Valid() {
		return c, nil
	}
	return "", nverr.Errorf("terms.parse_category", nverr.ErrInvalidConfiguration, "unknown category %q", s)
}

// Valid reports whether c is a concrete category.
func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// Name returns the upper-case category name, e.g. "EULA". Unique ids hash
// the name, not the value.
func (c Category) Name() string {
	return strings.ToUpper(string(c))
}

// idMethodology prefixes every unique id. It doubles as the first path
// partition of file-backed ledgers.
const idMethodology = "1"

// LegalTerms is one piece of legal text and/or a link to it.
type LegalTerms struct {
	category Category
	text     string
	url      string
}

// New returns LegalTerms for category. Empty text or url means absent; at
// least one must be set.
func New(category Category, text, url string) (LegalTerms, error) {
	if !category.Valid() {
		return LegalTerms{}, nverr.Errorf("terms.new", nverr.ErrInvalidConfiguration, "invalid legal terms category %q", category)
	}
	if text == "" && url == "" {
		return LegalTerms{}, nverr.Errorf("terms.new", nverr.ErrInvalidConfiguration, "legal terms text or url must be provided")
	}
	return LegalTerms{category: category, text: text, url: url}, nil
}

// MustNew is like New but panics on error. Intended for terms declared as
// package-level values by providers.
func MustNew(category Category, text, url string) LegalTerms {
	t, err := New(category, text, url)
	if err != nil {
		panic(err)
	}
	return t
}

func (t LegalTerms) Category() Category { return t.category }
func (t LegalTerms) Text() string       { return t.text }
func (t LegalTerms) URL() string        { return t.url }

// UniqueID returns a stable identifier for the content of t. The id is
// partitioned by "/" so ledgers may map it onto directories.
func (t LegalTerms) UniqueID() string {
	content := t.text + "|" + t.url + "|" + t.category.Name()
	sum := sha256.Sum256([]byte(content))

	// 22 base64 characters keep ~128 bits of the digest.
	encoded := base64.RawURLEncoding.EncodeToString(sum[:])
	return idMethodology + "/" + encoded[:22]
}

// String renders one "key: value" line per present field, the category by
// name.
func (t LegalTerms) String() string {
	parts := []string{"category: " + t.category.Name()}
	if t.text != "" {
		parts = append(parts, "text: "+t.text)
	}
	if t.url != "" {
		parts = append(parts, "url: "+t.url)
	}
	return strings.Join(parts, "\n")
}

type termsJSON struct {
	Category Category `json:"category"`
	Text     string   `json:"text,omitempty"`
	URL      string   `json:"url,omitempty"`
	Accepted *bool    `json:"accepted,omitempty"`
}

// MarshalJSON encodes t as {"category","text","url"} omitting absent fields.
func (t LegalTerms) MarshalJSON() ([]byte, error) {
	return json.Marshal(termsJSON{Category: t.category, Text: t.text, URL: t.url})
}

// UnmarshalJSON decodes and validates t. An "accepted" member is ignored.
func (t *LegalTerms) UnmarshalJSON(data []byte) error {
	var raw termsJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	category, err := ParseCategory(string(raw.Category))
	if err != nil {
		return err
	}
	parsed, err := New(category, raw.Text, raw.URL)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Collection is an ordered list of legal terms in the provider's declaration
// order. Duplicates are allowed.
type Collection []LegalTerms

// Filter returns the terms whose category is in categories. No categories,
// or any CategoryAll, returns a copy of c.
func (c Collection) Filter(categories ...Category) Collection {
	if len(categories) == 0 {
		return append(Collection(nil), c...)
	}
	want := make(map[Category]bool, len(categories))
	for _, cat := range categories {
		if cat == CategoryAll {
			return append(Collection(nil), c...)
		}
		want[cat] = true
	}

	out := make(Collection, 0, len(c))
	for _, t := range c {
		if want[t.category] {
			out = append(out, t)
		}
	}
	return out
}

// ParseJSON decodes either a single terms object or a non-empty array of
// them, which is what `legal list --format json` prints.
func ParseJSON(data []byte) (Collection, error) {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" {
		return nil, nverr.Errorf("terms.parse_json", nverr.ErrInvalidConfiguration, "no legal terms provided")
	}

	if strings.HasPrefix(trimmed, "[") {
		var c Collection
		if err := json.Unmarshal([]byte(trimmed), &c); err != nil {
			return nil, nverr.New("terms.parse_json", nverr.ErrInvalidConfiguration, fmt.Errorf("invalid json: %w", err))
		}
		if len(c) == 0 {
			return nil, nverr.Errorf("terms.parse_json", nverr.ErrInvalidConfiguration, "empty json array")
		}
		return c, nil
	}

	var t LegalTerms
	if err := json.Unmarshal([]byte(trimmed), &t); err != nil {
		return nil, nverr.New("terms.parse_json", nverr.ErrInvalidConfiguration, fmt.Errorf("invalid json: %w", err))
	}
	return Collection{t}, nil
}
