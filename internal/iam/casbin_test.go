package iam

import "testing"

func TestResourceMatch(t *testing.T) {
	cases := []struct {
		resource, pattern string
		want              bool
	}{
		{"public:DEFAULT_GROUP:cfg1", "public:DEFAULT_GROUP:cfg1", true},
		{"public:DEFAULT_GROUP:cfg1", "public:DEFAULT_GROUP:*", true},
		{"public:DEFAULT_GROUP:cfg1", "public:*:*", true},
		{"public:DEFAULT_GROUP:cfg1", "*:*:*", true},
		{"team-a:DEFAULT_GROUP:cfg1", "public:*:*", false},
		{"public:groupB:cfg1", "public:DEFAULT_GROUP:*", false},
		{"public:DEFAULT_GROUP:cfg1", "public:DEFAULT_GROUP", false},
	}
	for _, c := range cases {
		if got := ResourceMatch(c.resource, c.pattern); got != c.want {
			t.Errorf("ResourceMatch(%q, %q) = %v, want %v", c.resource, c.pattern, got, c.want)
		}
	}
}

func TestActionAllows(t *testing.T) {
	cases := []struct {
		granted, required string
		want              bool
	}{
		{"rw", "r", true},
		{"rw", "w", true},
		{"rw", "rw", true},
		{"r", "r", true},
		{"r", "w", false},
		{"r", "rw", false},
		{"w", "r", false},
	}
	for _, c := range cases {
		if got := ActionAllows(c.granted, c.required); got != c.want {
			t.Errorf("ActionAllows(%q, %q) = %v, want %v", c.granted, c.required, got, c.want)
		}
	}
}
