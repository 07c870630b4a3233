package irc

import (
	"testing"

	"github.com/quillirc/quill/internal/testutil/testlog"
)

func TestFoldNick(t *testing.T) {
	testlog.Start(t)
	cases := []struct{ in, want string }{
		{"Alice", "alice"},
		{"[Bob]", "{bob}"},
		{"back\\slash", "back|slash"},
		{"car^et", "car~et"},
		{"plain", "plain"},
	}
	for _, c := range cases {
		if got := foldNick(c.in); got != c.want {
			t.Fatalf("foldNick(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestUserFromNamesEntry(t *testing.T) {
	testlog.Start(t)
	u, ok := userFromNamesEntry("@alice")
	if !ok || u.Nick != "alice" || u.Access != Operator {
		t.Fatalf("unexpected user: %+v ok=%v", u, ok)
	}

	u, ok = userFromNamesEntry("~@bob")
	if !ok || u.Nick != "bob" || u.Access != Owner|Operator {
		t.Fatalf("stacked prefixes: %+v ok=%v", u, ok)
	}

	u, ok = userFromNamesEntry("carol")
	if !ok || u.Nick != "carol" || u.Access != 0 {
		t.Fatalf("plain entry: %+v ok=%v", u, ok)
	}

	if _, ok := userFromNamesEntry("@"); ok {
		t.Fatalf("prefix-only entry should be rejected")
	}
}

func TestUserFromSource(t *testing.T) {
	testlog.Start(t)
	u, ok := userFromSource("alice!ali@example.com")
	if !ok || u.Nick != "alice" || u.Username != "ali" || u.Hostname != "example.com" {
		t.Fatalf("unexpected user: %+v ok=%v", u, ok)
	}

	if _, ok := userFromSource("irc.libera.chat"); ok {
		t.Fatalf("server prefix should not yield a user")
	}
	if _, ok := userFromSource(""); ok {
		t.Fatalf("empty prefix should not yield a user")
	}
}

func TestAccessLevelSymbol(t *testing.T) {
	testlog.Start(t)
	cases := []struct {
		access AccessLevel
		want   string
	}{
		{Owner | Voice, "~"},
		{Admin, "&"},
		{Operator | Voice, "@"},
		{HalfOp, "%"},
		{Voice, "+"},
		{0, ""},
	}
	for _, c := range cases {
		if got := c.access.Symbol(); got != c.want {
			t.Fatalf("Symbol(%b) = %q, want %q", c.access, got, c.want)
		}
	}
}

func TestSortUsers(t *testing.T) {
	testlog.Start(t)
	users := []User{
		{Nick: "zoe"},
		{Nick: "Amy"},
		{Nick: "mod", Access: Operator},
		{Nick: "talker", Access: Voice},
		{Nick: "boss", Access: Owner},
	}
	sortUsers(users)
	want := []string{"boss", "mod", "talker", "Amy", "zoe"}
	for i, nick := range want {
		if users[i].Nick != nick {
			t.Fatalf("position %d = %q, want %q (got %v)", i, users[i].Nick, nick, users)
		}
	}
}
