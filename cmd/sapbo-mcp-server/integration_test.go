//go:build integration

package main

import (
	"context"
	"os"
	"testing"
)

// clientOrSkip returns a logged-in apiClient configured from SAP_BO_*
// environment variables. Skips the test when no server is configured.
//
// Run with: SAP_BO_REST_API_URL=http://host:6405/biprws SAP_BO_USERNAME=u \
//
//	SAP_BO_PASSWORD=p go test -tags integration ./cmd/sapbo-mcp-server/
func clientOrSkip(t *testing.T) *apiClient {
	t.Helper()
	if os.Getenv("SAP_BO_REST_API_URL") == "" {
		t.Skip("SAP_BO_REST_API_URL not set — skipping integration test")
	}
	cfg, err := configFromEnv()
	if err != nil {
		t.Fatalf("config from env: %v", err)
	}
	c := newAPIClient(cfg)
	if err := c.login(context.Background()); err != nil {
		t.Fatalf("login: %v", err)
	}
	t.Cleanup(func() { c.logout(context.Background()) })
	return c
}

func TestLoginYieldsToken(t *testing.T) {
	c := clientOrSkip(t)
	if c.token == "" {
		t.Fatal("no logon token after successful login")
	}
}

func TestListUniverses(t *testing.T) {
	c := clientOrSkip(t)

	tables := c.getTables(context.Background())
	for _, tbl := range tables {
		if tbl.Name == "" {
			t.Errorf("listed universe with empty name (id=%q)", tbl.ID)
		}
		if tbl.ID == "" {
			t.Errorf("universe %q has no id", tbl.Name)
		}
	}
}

func TestListColumnsOfFirstUniverse(t *testing.T) {
	c := clientOrSkip(t)
	ctx := context.Background()

	tables := c.getTables(ctx)
	if len(tables) == 0 {
		t.Skip("server exposes no universes")
	}

	cols, err := c.getColumns(ctx, tables[0].Name)
	if err != nil {
		t.Fatalf("getColumns(%q): %v", tables[0].Name, err)
	}
	for _, col := range cols {
		if col.Name == "" {
			t.Error("column with empty name")
		}
		if col.DataType == "" {
			t.Errorf("column %q has empty data type, want at least the default", col.Name)
		}
	}
}
