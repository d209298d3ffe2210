package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/onnwee/docaudit/internal/auth"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

func TestClassifyCmd(t *testing.T) {
	before := writeFile(t, "before.yaml", `
name: Blade
abilities: [a1, a2]
updatedAt: "2024-01-01T00:00:00Z"
`)
	after := writeFile(t, "after.yaml", `
name: Blade
abilities: [a1, a3]
updatedAt: "2024-01-02T00:00:00Z"
updatedBy: editor-1
`)

	out, err := execute(t, "classify", "--collection", "Characters", "--before", before, "--after", after)
	if err != nil {
		t.Fatalf("classify error = %v (output %s)", err, out)
	}

	var rec map[string]any
	if err := json.Unmarshal([]byte(out), &rec); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	if rec["operation"] != "Update" || rec["field"] != "abilities" {
		t.Errorf("record = %v", rec)
	}
	if rec["updatedBy"] != "editor-1" {
		t.Errorf("updatedBy = %v", rec["updatedBy"])
	}
}

func TestClassifyCmd_Errors(t *testing.T) {
	valid := writeFile(t, "doc.yaml", "updatedAt: \"2024-01-01T00:00:00Z\"\n")
	broken := writeFile(t, "broken.yaml", "name: [unterminated\n")

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"unknown collection", []string{"classify", "-c", "Scenes", "--before", valid, "--after", valid}, "unknown collection"},
		{"missing file", []string{"classify", "-c", "Users", "--before", "/nonexistent.yaml", "--after", valid}, "read snapshot"},
		{"invalid yaml", []string{"classify", "-c", "Users", "--before", broken, "--after", valid}, "parse snapshot"},
		{"missing flag", []string{"classify", "-c", "Users"}, "required flag"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, tt.args...)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %v, want it to contain %q", err, tt.want)
			}
		})
	}
}

func TestCollectionsCmd(t *testing.T) {
	out, err := execute(t, "collections")
	if err != nil {
		t.Fatalf("collections error = %v", err)
	}
	for _, want := range []string{"COLLECTION", "Users", "Characters", "Weapons", "attributes"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestTokenCmd(t *testing.T) {
	t.Setenv("PUSH_TOKEN_SECRET", "env-secret")

	out, err := execute(t, "token", "--subject", "firestore-trigger", "--ttl", "5m")
	if err != nil {
		t.Fatalf("token error = %v", err)
	}

	v, _ := auth.NewPushTokenVerifier("env-secret", "")
	claims, err := v.Verify(strings.TrimSpace(out))
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if claims.Subject != "firestore-trigger" {
		t.Errorf("Subject = %q", claims.Subject)
	}
	if ttl := time.Until(claims.ExpiresAt.Time); ttl > 5*time.Minute || ttl < 4*time.Minute {
		t.Errorf("token expires in %v, want about 5m", ttl)
	}
}

func TestTokenCmd_SecretFlagOverridesEnv(t *testing.T) {
	t.Setenv("PUSH_TOKEN_SECRET", "env-secret")

	out, err := execute(t, "token", "-s", "publisher", "--secret", "flag-secret")
	if err != nil {
		t.Fatalf("token error = %v", err)
	}
	v, _ := auth.NewPushTokenVerifier("flag-secret", "")
	if _, err := v.Verify(strings.TrimSpace(out)); err != nil {
		t.Errorf("token not signed with flag secret: %v", err)
	}
}

func TestTokenCmd_NoSecret(t *testing.T) {
	t.Setenv("PUSH_TOKEN_SECRET", "")

	if _, err := execute(t, "token", "--subject", "x"); err == nil {
		t.Error("expected error without a secret")
	}
}
