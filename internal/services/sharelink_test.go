package services

import (
	"strings"
	"testing"
)

func TestShareLinkRoundTrip(t *testing.T) {
	link := BuildShareLink("https://polls.example.com/app", "F1", "U1")
	if !strings.HasPrefix(link, "https://polls.example.com/app?") {
		t.Fatalf("unexpected link %q", link)
	}
	for _, want := range []string{"formId=F1", "authorId=U1", "mode=respond", "page=viewer"} {
		if !strings.Contains(link, want) {
			t.Fatalf("link %q missing %s", link, want)
		}
	}
	got, err := ParseShareLink(link)
	if err != nil {
		t.Fatalf("ParseShareLink returned error: %v", err)
	}
	if got.FormID != "F1" || got.AuthorID != "U1" {
		t.Fatalf("parsed %+v", got)
	}
}

func TestParseShareLinkMissingParams(t *testing.T) {
	for _, raw := range []string{
		"https://x.test/?formId=F1",
		"https://x.test/?authorId=U1",
		"formId=&authorId=U1",
		"",
	} {
		_, err := ParseShareLink(raw)
		if !HasCode(err, ErrorInvalidLink) {
			t.Fatalf("ParseShareLink(%q) error = %v, want invalid link", raw, err)
		}
	}
}

func TestParseShareLinkRejectsPathSegments(t *testing.T) {
	for _, raw := range []string{
		"formId=..&authorId=U1",
		"formId=.&authorId=U1",
		"formId=a/b&authorId=U1",
		"formId=F1&authorId=..",
		"formId=..%2F..%2F..%2Faccounts%2Fbob@x.io&authorId=a",
		"formId=F1&authorId=u1%2Fforms%2Fx",
		"formId=F1%00&authorId=U1",
	} {
		_, err := ParseShareLink(raw)
		if !HasCode(err, ErrorInvalidLink) {
			t.Fatalf("ParseShareLink(%q) error = %v, want invalid link", raw, err)
		}
	}
}

func TestValidDocID(t *testing.T) {
	cases := map[string]bool{
		"F1":                                   true,
		"3f2b9c1e0a4d4e7f8a1b":                 true,
		"9b2e6c1a-0f7d-4b8e-9c3a-5d1e2f3a4b5c": true,
		"bob@x.io":                             true,
		"":                                     false,
		".":                                    false,
		"..":                                   false,
		"a/b":                                  false,
		"a b":                                  false,
		`a"b`:                                  false,
		strings.Repeat("x", 129):               false,
	}
	for id, want := range cases {
		if got := ValidDocID(id); got != want {
			t.Fatalf("ValidDocID(%q) = %v, want %v", id, got, want)
		}
	}
}

func TestParseShareLinkBareQuery(t *testing.T) {
	got, err := ParseShareLink("formId=F2&authorId=U2")
	if err != nil {
		t.Fatalf("ParseShareLink returned error: %v", err)
	}
	if got.FormID != "F2" || got.AuthorID != "U2" {
		t.Fatalf("parsed %+v", got)
	}
}

func TestFormPaths(t *testing.T) {
	p := FormPath("app", "u1", "f1")
	if p != "artifacts/app/users/u1/forms/f1" {
		t.Fatalf("FormPath = %q", p)
	}
	if CommentsPath(p) != p+"/comments" || ResponsesPath(p) != p+"/responses" {
		t.Fatalf("unexpected sub-collection paths")
	}
}
