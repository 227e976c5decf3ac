// Package samples provides the demo announcements shown next to the chat for trying the
// announcement extraction path.
package samples

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
)

// Category groups samples by where such an announcement usually comes from.
type Category string

const (
	CategorySchool  Category = "school"
	CategorySociety Category = "society"
	CategoryOffice  Category = "office"
	CategoryFriends Category = "friends"
)

// Sample is one demo announcement.
type Sample struct {
	ID       string   `toml:"id" json:"id"`
	Category Category `toml:"category" json:"category"`
	Title    string   `toml:"title" json:"title"`
	Text     string   `toml:"text" json:"text"`
}

//go:embed samples.toml
var embedded string

type file struct {
	Sample []Sample `toml:"sample"`
}

// Load parses samples from TOML with [[sample]] tables.
func Load(data string) ([]Sample, error) {
	var f file
	if _, err := toml.Decode(data, &f); err != nil {
		return nil, fmt.Errorf("failed to decode samples: %w", err)
	}

	seen := make(map[string]bool, len(f.Sample))
	for i, s := range f.Sample {
		if s.ID == "" || s.Title == "" || strings.TrimSpace(s.Text) == "" {
			return nil, fmt.Errorf("sample %d: id, title and text are required", i)
		}
		if seen[s.ID] {
			return nil, fmt.Errorf("duplicate sample id %q", s.ID)
		}
		seen[s.ID] = true
		f.Sample[i].Text = strings.TrimSpace(s.Text)
	}
	return f.Sample, nil
}

var builtin = mustLoad(embedded)

func mustLoad(data string) []Sample {
	s, err := Load(data)
	if err != nil {
		panic(err)
	}
	return s
}

// All returns the built-in samples in file order.
func All() []Sample {
	return append([]Sample(nil), builtin...)
}

// ByCategory returns the built-in samples of one category.
func ByCategory(c Category) []Sample {
	var out []Sample
	for _, s := range builtin {
		if s.Category == c {
			out = append(out, s)
		}
	}
	return out
}

// Categories lists the categories present, sorted.
func Categories() []Category {
	set := make(map[Category]bool)
	for _, s := range builtin {
		set[s.Category] = true
	}
	out := make([]Category, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Find returns the built-in sample with id.
func Find(id string) (Sample, bool) {
	for _, s := range builtin {
		if s.ID == id {
			return s, true
		}
	}
	return Sample{}, false
}
