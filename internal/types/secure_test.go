package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"testing"
)

const testSecret = "APP_USR-1234567890-secret"

func TestSecretString_String(t *testing.T) {
	s := SecretString(testSecret)

	if got := s.String(); got != redactedPlaceholder {
		t.Errorf("String() = %q, want %q", got, redactedPlaceholder)
	}
	if got := fmt.Sprintf("token=%s %v", s, s); strings.Contains(got, testSecret) {
		t.Errorf("fmt leaked the raw secret: %s", got)
	}
}

func TestSecretString_MarshalJSON(t *testing.T) {
	payload := struct {
		Token SecretString `json:"token"`
	}{Token: SecretString(testSecret)}

	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("json.Marshal returned error: %v", err)
	}
	if strings.Contains(string(data), testSecret) {
		t.Errorf("JSON leaked the raw secret: %s", data)
	}
	if string(data) != `{"token":"***REDACTED***"}` {
		t.Errorf("unexpected JSON: %s", data)
	}
}

func TestSecretString_SlogRedaction(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	logger.Info("gateway configured", "access_token", SecretString(testSecret))

	if strings.Contains(buf.String(), testSecret) {
		t.Errorf("slog output leaked the raw secret: %s", buf.String())
	}
	if !strings.Contains(buf.String(), redactedPlaceholder) {
		t.Errorf("slog output missing placeholder: %s", buf.String())
	}
}

func TestSecretString_UnmaskAndIsSet(t *testing.T) {
	s := SecretString(testSecret)
	if s.Unmask() != testSecret {
		t.Errorf("Unmask() = %q, want raw value", s.Unmask())
	}
	if !s.IsSet() {
		t.Error("IsSet() = false for non-empty secret")
	}
	if SecretString("").IsSet() {
		t.Error("IsSet() = true for empty secret")
	}
}
