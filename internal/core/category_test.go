package core

import "testing"

func TestSlugify(t *testing.T) {
	cases := map[string]string{
		"Outside Food":      "outside-food",
		"  Pet   Supplies ": "pet-supplies",
		"Café & Bar":        "caf--bar",
		"Books/Magazines":   "booksmagazines",
		"!!!":               "category",
		"Tools-2":           "tools-2",
	}
	for in, want := range cases {
		if got := Slugify(in); got != want {
			t.Fatalf("Slugify(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestFallbackCategoryID(t *testing.T) {
	cases := []struct {
		name string
		cats []Category
		want string
		ok   bool
	}{
		{"other by id", []Category{{ID: "grocery"}, {ID: "other"}}, "other", true},
		{"other by name", []Category{{ID: "grocery", Name: "Grocery"}, {ID: "misc", Name: "Other"}}, "misc", true},
		{"first category", []Category{{ID: "grocery"}, {ID: "electronics"}}, "grocery", true},
		{"empty set", nil, "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := FallbackCategoryID(tc.cats)
			if got != tc.want || ok != tc.ok {
				t.Fatalf("got (%q, %v), want (%q, %v)", got, ok, tc.want, tc.ok)
			}
		})
	}
}

func TestDefaultCategoriesAreSlugs(t *testing.T) {
	seen := map[string]bool{}
	for _, c := range DefaultCategories() {
		if Slugify(c.Name) != c.ID {
			t.Fatalf("category %q id %q is not the slug of its name", c.Name, c.ID)
		}
		if seen[c.ID] {
			t.Fatalf("duplicate id %q", c.ID)
		}
		seen[c.ID] = true
	}
	if !seen[OtherCategoryID] {
		t.Fatalf("default categories must include %q", OtherCategoryID)
	}
}
