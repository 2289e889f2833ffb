//go:build smoke

package smoke

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	appdb "github.com/codr1/Courtside/internal/db"
	"github.com/codr1/Courtside/internal/testutil"
)

func TestServerStartup(t *testing.T) {
	repoRoot := findRepoRoot(t)
	tempDir := t.TempDir()

	binPath := filepath.Join(tempDir, "courtside-server")
	dbPath := filepath.Join(tempDir, "db", "smoke.db")
	buildCmd := exec.Command("go", "build", "-o", binPath, "./cmd/server")
	buildCmd.Dir = repoRoot
	buildOutput, err := buildCmd.CombinedOutput()
	if err != nil {
		t.Fatalf("failed to build server: %v\n%s", err, buildOutput)
	}

	port := reservePort(t)
	configPath := filepath.Join(tempDir, "config.yaml")
	configBody := fmt.Sprintf(`app:
  name: "Courtside"
  environment: "development"
  port: %d
  base_url: "http://localhost:%d"
  secret_key: "test-secret-key-for-smoke-tests-only"

database:
  driver: "sqlite"
  filename: "%s"

booking:
  window_days: 14
  payment_timeout_minutes: 15

rate_limit:
  backend: "memory"
  max_attempts_per_minute: 10

scheduler:
  expiry_sweep_cron: "* * * * *"

features:
  enable_debug: true
`, port, port, filepath.ToSlash(dbPath))

	if err := os.WriteFile(configPath, []byte(configBody), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cmd := exec.Command(binPath, "-config", configPath)
	cmd.Dir = tempDir
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		t.Fatalf("failed to start server: %v", err)
	}

	waitDone := make(chan struct{})
	var waitErr error
	go func() {
		waitErr = cmd.Wait()
		close(waitDone)
	}()

	t.Cleanup(func() {
		if cmd.Process == nil {
			return
		}
		_ = cmd.Process.Signal(os.Interrupt)
		select {
		case <-waitDone:
			return
		case <-time.After(5 * time.Second):
		}
		_ = cmd.Process.Kill()
		select {
		case <-waitDone:
		case <-time.After(5 * time.Second):
			t.Logf("server process did not exit after kill")
		}
	})

	healthURL := fmt.Sprintf("http://localhost:%d/health", port)
	client := &http.Client{Timeout: 500 * time.Millisecond}
	deadline := time.Now().Add(10 * time.Second)

	for {
		select {
		case <-waitDone:
			t.Fatalf("server exited before health check: %v\nstdout:\n%s\nstderr:\n%s", waitErr, stdout.String(), stderr.String())
		default:
		}

		resp, err := client.Get(healthURL)
		if err == nil {
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				break
			}
		}

		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for health check\nstdout:\n%s\nstderr:\n%s", stdout.String(), stderr.String())
		}

		time.Sleep(100 * time.Millisecond)
	}

	t.Run("bookable dates", func(t *testing.T) {
		database, err := appdb.New(dbPath)
		if err != nil {
			t.Fatalf("open server database: %v", err)
		}
		defer database.Close()
		orgID, slug := testutil.SeedOrganization(t, database, testutil.OrgOptions{})
		testutil.SeedCourt(t, database, orgID, testutil.CourtOptions{BasePriceCents: 2000})

		base := fmt.Sprintf("http://localhost:%d/api/v1/orgs", port)
		resp, err := client.Get(base + "/" + slug + "/bookable-dates")
		if err != nil {
			t.Fatalf("get bookable dates: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(resp.Body)
			t.Fatalf("bookable dates status %d: %s", resp.StatusCode, body)
		}
		if resp.Header.Get("X-Request-ID") == "" {
			t.Error("expected a request id header")
		}
		var payload struct {
			WindowDays int      `json:"windowDays"`
			Dates      []string `json:"dates"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
			t.Fatalf("decode bookable dates: %v", err)
		}
		if payload.WindowDays != 14 || len(payload.Dates) != 14 {
			t.Fatalf("expected a 14 day window, got %d days and %d dates", payload.WindowDays, len(payload.Dates))
		}

		missing, err := client.Get(base + "/no-such-club/bookable-dates")
		if err != nil {
			t.Fatalf("get unknown organization: %v", err)
		}
		defer missing.Body.Close()
		var errBody struct {
			Error struct {
				Code string `json:"code"`
			} `json:"error"`
		}
		if err := json.NewDecoder(missing.Body).Decode(&errBody); err != nil {
			t.Fatalf("decode error body: %v", err)
		}
		if missing.StatusCode != http.StatusNotFound || errBody.Error.Code != "not_found" {
			t.Fatalf("unknown organization: status %d code %q", missing.StatusCode, errBody.Error.Code)
		}
	})

	select {
	case <-waitDone:
		t.Fatalf("server exited unexpectedly: %v\nstdout:\n%s\nstderr:\n%s", waitErr, stdout.String(), stderr.String())
	default:
	}
}

func reservePort(t *testing.T) int {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to reserve port: %v", err)
	}
	defer listener.Close()

	return listener.Addr().(*net.TCPAddr).Port
}

func findRepoRoot(t *testing.T) string {
	t.Helper()

	dir, err := os.Getwd()
	if err != nil {
		t.Fatalf("failed to get working directory: %v", err)
	}

	for i := 0; i < 6; i++ {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	t.Fatal("failed to locate repo root with go.mod")
	return ""
}

func TestMigrationsApplied(t *testing.T) {
	db := testutil.NewTestDB(t)

	expectedTables := []string{
		"organizations",
		"app_settings",
		"users",
		"organization_members",
		"courts",
		"court_blocks",
		"guests",
		"recurring_bookings",
		"bookings",
		"booking_slots",
		"payments",
		"audit_log",
		"processed_events",
	}

	for _, table := range expectedTables {
		var name string
		err := db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name = ?",
			table,
		).Scan(&name)
		if err == sql.ErrNoRows {
			t.Fatalf("missing expected table %q after migrations", table)
		}
		if err != nil {
			t.Fatalf("query table %q existence: %v", table, err)
		}
	}
}

func TestForeignKeyIntegrity(t *testing.T) {
	db := testutil.NewTestDB(t)

	var foreignKeysEnabled int
	if err := db.QueryRow("PRAGMA foreign_keys;").Scan(&foreignKeysEnabled); err != nil {
		t.Fatalf("query foreign_keys pragma: %v", err)
	}
	if foreignKeysEnabled != 1 {
		t.Fatalf("expected foreign_keys pragma enabled, got %d", foreignKeysEnabled)
	}

	_, err := db.Exec(
		`INSERT INTO courts (organization_id, name) VALUES (9999, 'Orphan Court')`,
	)
	if err == nil {
		t.Fatal("expected foreign key constraint failure for invalid organization_id")
	}
}
