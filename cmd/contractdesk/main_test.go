package main

import (
	"flag"
	"reflect"
	"testing"
	"time"

	"github.com/contractdesk/contractdesk/internal/contract"
)

func TestEnvOrDefault(t *testing.T) {
	t.Setenv("CONTRACTDESK_TEST_VALUE", "  http://api.example  ")
	if got := envOrDefault("CONTRACTDESK_TEST_VALUE", "fallback"); got != "http://api.example" {
		t.Fatalf("expected trimmed env value, got %q", got)
	}
	if got := envOrDefault("CONTRACTDESK_TEST_MISSING", "fallback"); got != "fallback" {
		t.Fatalf("expected fallback, got %q", got)
	}
}

func TestDurationEnv(t *testing.T) {
	t.Setenv("CONTRACTDESK_TEST_TIMEOUT", "30s")
	if got := durationEnv("CONTRACTDESK_TEST_TIMEOUT", time.Second); got != 30*time.Second {
		t.Fatalf("expected 30s, got %s", got)
	}
	t.Setenv("CONTRACTDESK_TEST_TIMEOUT_BAD", "soon")
	if got := durationEnv("CONTRACTDESK_TEST_TIMEOUT_BAD", 5*time.Second); got != 5*time.Second {
		t.Fatalf("expected fallback 5s, got %s", got)
	}
}

func TestDeriveWSURL(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"http://127.0.0.1:8080", "ws://127.0.0.1:8080"},
		{"https://mini-contract-api.fly.dev", "wss://mini-contract-api.fly.dev"},
		{"https://api.example/v1/", "wss://api.example/v1"},
		{"wss://already.example", "wss://already.example"},
	}
	for _, tc := range cases {
		got, err := deriveWSURL(tc.in)
		if err != nil {
			t.Fatalf("deriveWSURL(%q) failed: %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("deriveWSURL(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
	if _, err := deriveWSURL("ftp://nope"); err == nil {
		t.Fatalf("expected error for unsupported scheme")
	}
}

func TestBuildPatchOnlyIncludesSetFlags(t *testing.T) {
	fs := flag.NewFlagSet("update", flag.ContinueOnError)
	title := fs.String("title", "", "")
	description := fs.String("description", "", "")
	status := fs.String("status", "", "")
	content := fs.String("content", "", "")
	var parties stringListFlag
	fs.Var(&parties, "party", "")

	if err := fs.Parse([]string{"-status", "Finalized", "-party", "Acme", "-party", "Globex"}); err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	patch := buildPatch(fs, *title, *description, *status, *content, parties)
	if patch.Title != nil || patch.Description != nil || patch.Content != nil {
		t.Fatalf("expected unset flags excluded, got %+v", patch)
	}
	if patch.Status == nil || *patch.Status != contract.StatusFinalized {
		t.Fatalf("expected status patch, got %+v", patch.Status)
	}
	if !reflect.DeepEqual(patch.Parties, []string{"Acme", "Globex"}) {
		t.Fatalf("expected ordered parties, got %v", patch.Parties)
	}
}

func TestStringListFlagPreservesOrder(t *testing.T) {
	var parties stringListFlag
	for _, v := range []string{"Acme", "Globex", "Acme"} {
		if err := parties.Set(v); err != nil {
			t.Fatalf("set failed: %v", err)
		}
	}
	if !reflect.DeepEqual([]string(parties), []string{"Acme", "Globex", "Acme"}) {
		t.Fatalf("expected duplicates and order preserved, got %v", parties)
	}
}
