package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	bmock "github.com/MrWong99/typofix/internal/backend/mock"
	"github.com/MrWong99/typofix/internal/config"
	"github.com/MrWong99/typofix/internal/profile"
	"github.com/MrWong99/typofix/pkg/types"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

const profilesConfig = `
correction:
  endpoint_url: "http://127.0.0.1:1"
profiles:
  apps:
    - app_id: com.example.Editor
      name: Example Editor
      preferred_strategy: scripted_automation
`

func TestRun_ProfilesJSON(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, profilesConfig)

	var stdout, stderr bytes.Buffer
	if code := run([]string{"profiles", "--json", "-c", path}, &stdout, &stderr); code != 0 {
		t.Fatalf("exit code = %d, stderr: %s", code, stderr.String())
	}
	var got []profile.Profile
	if err := json.Unmarshal(stdout.Bytes(), &got); err != nil {
		t.Fatalf("decode output: %v\n%s", err, stdout.String())
	}
	var found bool
	for _, p := range got {
		if p.AppID == "com.example.Editor" {
			found = true
			if p.PreferredStrategy != types.ScriptedAutomation || p.Source != "config" {
				t.Errorf("inline profile = %+v", p)
			}
		}
	}
	if !found {
		t.Error("inline profile missing from output")
	}
	if last := got[len(got)-1]; last.Source != "default" {
		t.Errorf("last profile = %+v, want the default profile", last)
	}
}

func TestRun_ProfilesTable(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, profilesConfig)

	var stdout, stderr bytes.Buffer
	if code := run([]string{"profiles", "--config", path}, &stdout, &stderr); code != 0 {
		t.Fatalf("exit code = %d, stderr: %s", code, stderr.String())
	}
	out := stdout.String()
	for _, want := range []string{"NAME", "Slack", "Example Editor", "scripted_automation"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestRun_InvalidConfig(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "server:\n  log_level: loud\n")

	var stdout, stderr bytes.Buffer
	if code := run([]string{"profiles", "-c", path}, &stdout, &stderr); code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
	if !strings.Contains(stderr.String(), "log_level") {
		t.Errorf("stderr does not name the invalid field: %s", stderr.String())
	}
}

func TestRun_UnknownCommand(t *testing.T) {
	t.Parallel()
	var stdout, stderr bytes.Buffer
	if code := run([]string{"frobnicate"}, &stdout, &stderr); code != 1 {
		t.Errorf("exit code = %d, want 1", code)
	}
}

func TestTrigger(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name      string
		wait      bool
		status    int
		wantQuery string
		wantErr   bool
	}{
		{name: "accepted", status: http.StatusAccepted},
		{name: "wait", wait: true, status: http.StatusOK, wantQuery: "wait=1"},
		{name: "busy", status: http.StatusConflict, wantErr: true},
		{name: "server error", status: http.StatusInternalServerError, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPost || r.URL.Path != "/trigger" {
					t.Errorf("got %s %s, want POST /trigger", r.Method, r.URL.Path)
				}
				if r.URL.RawQuery != tt.wantQuery {
					t.Errorf("query = %q, want %q", r.URL.RawQuery, tt.wantQuery)
				}
				w.WriteHeader(tt.status)
				w.Write([]byte(`{"status":"x"}`))
			}))
			defer srv.Close()

			var out bytes.Buffer
			addr := strings.TrimPrefix(srv.URL, "http://")
			err := trigger(context.Background(), srv.Client(), addr, tt.wait, &out)
			if (err != nil) != tt.wantErr {
				t.Errorf("trigger() error = %v, wantErr %v", err, tt.wantErr)
			}
			if out.String() != `{"status":"x"}` {
				t.Errorf("output = %q", out.String())
			}
		})
	}
}

func TestCorrect(t *testing.T) {
	t.Parallel()
	cfg := config.Default()
	tests := []struct {
		name        string
		corrected   string
		wantVerdict string
		wantErr     error
	}{
		{name: "accept", corrected: "I have an apple", wantVerdict: "accept"},
		{name: "no-op", corrected: "I has a appl", wantVerdict: "reject_no_op"},
		{name: "too long", corrected: "I have an apple and a very long rewrite", wantVerdict: "reject_unsafe_length_ratio", wantErr: types.ErrRejectUnsafeLengthRatio},
		{name: "empty", corrected: "   ", wantVerdict: "reject_empty", wantErr: types.ErrRejectEmpty},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			be := &bmock.Backend{IDValue: "remote/test", Result: types.CorrectionResult{CorrectedText: tt.corrected}}

			var out bytes.Buffer
			err := correct(context.Background(), cfg, be, "I has a appl", &out)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("correct() error = %v, want %v", err, tt.wantErr)
			}
			if !strings.Contains(out.String(), "verdict:   "+tt.wantVerdict) {
				t.Errorf("output missing verdict %q:\n%s", tt.wantVerdict, out.String())
			}
		})
	}
}

func TestCorrect_BackendError(t *testing.T) {
	t.Parallel()
	be := &bmock.Backend{IDValue: "remote/down", Err: types.ErrBackendUnavailable}

	var out bytes.Buffer
	err := correct(context.Background(), config.Default(), be, "teh cat", &out)
	if !errors.Is(err, types.ErrBackendUnavailable) {
		t.Errorf("correct() error = %v, want ErrBackendUnavailable", err)
	}
	if out.Len() != 0 {
		t.Errorf("unexpected output on failure: %q", out.String())
	}
}

func TestPrintStartupSummary(t *testing.T) {
	t.Parallel()
	cfg := config.Default()
	cfg.Correction.BackendKind = config.BackendOnDevice
	cfg.Correction.ModelPath = "/models/lexicon.yaml"
	cfg.Journal.Path = "/var/lib/typofix/outcomes.jsonl"

	var out bytes.Buffer
	printStartupSummary(&out, cfg)
	for _, want := range []string{"on_device / /models/lexicon.yaml", "outcomes.jsonl", config.DefaultListenAddr} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("summary missing %q:\n%s", want, out.String())
		}
	}
}
