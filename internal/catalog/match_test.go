package catalog

import "testing"

func TestMatchExactAndWildcard(t *testing.T) {
	cases := []struct {
		granted   string
		requested string
		want      bool
	}{
		{"document.read", "document.read", true},
		{"document.read", "document.update", false},
		{"document.read", "project.read", false},
		{"document.*", "document.read", true},
		{"document.*", "document.delete", true},
		{"document.*", "project.read", false},
		{"*.read", "document.read", true},
		{"*.read", "project.read", true},
		{"*.read", "document.update", false},
		{"*.*", "document.read", true},
		{"*.*", "anything.at_all", true},
		{"", "document.read", false},
		{"document", "document.read", false},
		{"document.read.extra", "document.read", false},
	}
	for _, tc := range cases {
		if got := Match(tc.granted, tc.requested); got != tc.want {
			t.Errorf("Match(%q, %q) = %v, want %v", tc.granted, tc.requested, got, tc.want)
		}
	}
}

func TestMatchAny(t *testing.T) {
	codes := map[string]struct{}{
		"document.*":   {},
		"project.read": {},
	}
	if !MatchAny(codes, "document.delete") {
		t.Fatalf("expected wildcard grant to match document.delete")
	}
	if !MatchAny(codes, "project.read") {
		t.Fatalf("expected exact grant to match project.read")
	}
	if MatchAny(codes, "project.update") {
		t.Fatalf("project.update should not match")
	}
	if MatchAny(nil, "document.read") {
		t.Fatalf("empty set should match nothing")
	}
}

func TestResolveCodeValidation(t *testing.T) {
	code, err := ResolveCode("document", "read")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if code != "document.read" {
		t.Fatalf("expected document.read, got %s", code)
	}
	if _, err := ResolveCode("", "read"); err == nil {
		t.Fatalf("expected error for empty resource type")
	}
	if _, err := ResolveCode("Document", "read"); err == nil {
		t.Fatalf("expected error for uppercase resource type")
	}
	if _, err := ResolveCode("document", "re ad"); err == nil {
		t.Fatalf("expected error for whitespace in action")
	}
	if _, err := ResolveCode("*", "*"); err != nil {
		t.Fatalf("wildcard slots are legal codes: %v", err)
	}
}

func TestSplitCode(t *testing.T) {
	resourceType, action, err := SplitCode("project.update")
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	if resourceType != "project" || action != "update" {
		t.Fatalf("unexpected parts %s/%s", resourceType, action)
	}
	for _, bad := range []string{"", "project", "a.b.c", "pro ject.read"} {
		if _, _, err := SplitCode(bad); err == nil {
			t.Errorf("SplitCode(%q) should fail", bad)
		}
	}
}
