package firestore

import (
	"testing"

	"github.com/maplecart/api/internal/repositories"
)

func TestFoldName(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Widget", "widget"},
		{"  Café au Lait ", "cafe au lait"},
		{"Ñandú", "nandu"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := foldName(tc.in); got != tc.want {
			t.Errorf("foldName(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestMatchesName(t *testing.T) {
	if !matchesName("Café Grande", "cafe") {
		t.Error("expected accent-insensitive match")
	}
	if !matchesName("Widget", "") {
		t.Error("empty needle must match everything")
	}
	if matchesName("Widget", "gadget") {
		t.Error("unexpected match")
	}
}

func TestIncludeDeleted(t *testing.T) {
	cases := []struct {
		filter  repositories.DeletedFilter
		deleted bool
		want    bool
	}{
		{repositories.DeletedExclude, false, true},
		{repositories.DeletedExclude, true, false},
		{repositories.DeletedOnly, true, true},
		{repositories.DeletedOnly, false, false},
		{repositories.DeletedInclude, true, true},
		{repositories.DeletedInclude, false, true},
	}
	for _, tc := range cases {
		if got := includeDeleted(tc.filter, tc.deleted); got != tc.want {
			t.Errorf("includeDeleted(%q, %v) = %v, want %v", tc.filter, tc.deleted, got, tc.want)
		}
	}
}
