package server

import (
	"strings"
	"testing"
)

func TestParseConnect(t *testing.T) {
	cases := []struct {
		in       string
		cmd      string
		user     string
		password string
	}{
		{"connect Ash embers", "connect", "Ash", "embers"},
		{"CONNECT Ash embers", "connect", "Ash", "embers"},
		{"  create Brann forge  ", "create", "Brann", "forge"},
		{`connect "Lady Cinder" embers`, "connect", "Lady Cinder", "embers"},
		{"connect Ash", "connect", "Ash", ""},
		{"connect", "connect", "", ""},
		{"", "", "", ""},
		{"WHO", "who", "", ""},
	}
	for _, c := range cases {
		cmd, user, password := ParseConnect(c.in)
		if cmd != c.cmd || user != c.user || password != c.password {
			t.Errorf("ParseConnect(%q) = (%q, %q, %q), want (%q, %q, %q)",
				c.in, cmd, user, password, c.cmd, c.user, c.password)
		}
	}
}

func TestValidateName(t *testing.T) {
	good := []string{"Ash", "Brann", "Lady Cinder", "xy"}
	for _, name := range good {
		if reason, ok := ValidateName(name); !ok {
			t.Errorf("ValidateName(%q) rejected: %s", name, reason)
		}
	}

	bad := []struct {
		name   string
		reason string
	}{
		{"A", "too short"},
		{strings.Repeat("x", 25), "too long"},
		{`As"h`, "illegal"},
		{"As;h", "illegal"},
		{"As,h", "illegal"},
		{"#42", "illegal"},
		{"@wall", "illegal"},
		{"me", "not allowed"},
		{"GUEST", "not allowed"},
		{"here", "not allowed"},
	}
	for _, c := range bad {
		reason, ok := ValidateName(c.name)
		if ok {
			t.Errorf("ValidateName(%q) accepted, want rejection", c.name)
			continue
		}
		if !strings.Contains(reason, c.reason) {
			t.Errorf("ValidateName(%q) reason %q, want mention of %q", c.name, reason, c.reason)
		}
	}
}

func TestStripTelnet(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"look", "look"},
		{"\xff\xfb\x01look", "look"},           // IAC WILL ECHO prefix
		{"lo\xff\xfd\x03ok", "look"},           // negotiation mid-line
		{"say hi\x07", "say hi"},               // stray BEL dropped
		{"say\thi", "say\thi"},                 // tab survives
		{"", ""},
	}
	for _, c := range cases {
		if got := stripTelnet(c.in); got != c.want {
			t.Errorf("stripTelnet(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}
