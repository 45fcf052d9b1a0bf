package identity

import "testing"

func TestParseRole(t *testing.T) {
	cases := []struct {
		in   string
		want Role
		ok   bool
	}{
		{"ADMIN", RoleAdmin, true},
		{"staff", RoleStaff, true},
		{" user ", RoleUser, true},
		{"root", "", false},
		{"", "", false},
	}
	for _, c := range cases {
		got, ok := ParseRole(c.in)
		if got != c.want || ok != c.ok {
			t.Errorf("ParseRole(%q) = %q,%v, want %q,%v", c.in, got, ok, c.want, c.ok)
		}
	}
}

func TestSplitName(t *testing.T) {
	cases := []struct {
		in          string
		first, last string
	}{
		{"Ada Lovelace", "Ada", "Lovelace"},
		{"Ada Lovelace King", "Ada", "Lovelace King"},
		{"Ada", "Ada", ""},
		{"  Ada  ", "Ada", ""},
		{"", "", ""},
	}
	for _, c := range cases {
		first, last := SplitName(c.in)
		if first != c.first || last != c.last {
			t.Errorf("SplitName(%q) = %q,%q, want %q,%q", c.in, first, last, c.first, c.last)
		}
	}
}

func TestDisplayName(t *testing.T) {
	u := &RegisteredUser{FirstName: "Jo", LastName: "Doe"}
	if got := u.DisplayName(); got != "Jo Doe" {
		t.Errorf("DisplayName = %q", got)
	}
	u.LastName = ""
	if got := u.DisplayName(); got != "Jo" {
		t.Errorf("DisplayName = %q", got)
	}
}

func TestActive(t *testing.T) {
	u := &RegisteredUser{Enabled: true}
	if !u.Active() {
		t.Fatal("enabled user must be active")
	}
	for _, mutate := range []func(*RegisteredUser){
		func(u *RegisteredUser) { u.Enabled = false },
		func(u *RegisteredUser) { u.Locked = true },
		func(u *RegisteredUser) { u.Expired = true },
	} {
		v := &RegisteredUser{Enabled: true}
		mutate(v)
		if v.Active() {
			t.Errorf("user %+v must not be active", v)
		}
	}
}

func TestAuthorities(t *testing.T) {
	u := &RegisteredUser{Role: RoleAdmin}
	got := u.Authorities()
	if len(got) != 1 || got[0] != "ROLE_ADMIN" {
		t.Fatalf("authorities = %v", got)
	}
	p := &ProvisionalUser{}
	got = p.Authorities()
	if len(got) != 1 || got[0] != "ROLE_USER" {
		t.Fatalf("provisional authorities = %v", got)
	}
}

func TestNormalizeEmail(t *testing.T) {
	if got := NormalizeEmail("  Jo@Example.COM "); got != "jo@example.com" {
		t.Fatalf("NormalizeEmail = %q", got)
	}
}
