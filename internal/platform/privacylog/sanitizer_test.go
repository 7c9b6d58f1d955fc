package privacylog

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestSanitizeArgsFingerprintsDisallowedIDs(t *testing.T) {
	args := SanitizeArgs(
		"address", "ct1alice123",
		"envelope_id", "env_123",
		"kind", "private",
	)
	if len(args) != 6 {
		t.Fatalf("unexpected args length: %d", len(args))
	}
	if got := args[0]; got != "address_fp" {
		t.Fatalf("unexpected key: %v", got)
	}
	if got := args[1].(string); !strings.HasPrefix(got, "fp_") {
		t.Fatalf("unexpected fingerprint value: %q", got)
	}
	if got := args[4]; got != "kind" {
		t.Fatalf("expected untouched key, got %v", got)
	}
}

func TestSanitizingHandlerRedactsSensitiveAndIDs(t *testing.T) {
	var buf bytes.Buffer
	base := slog.NewJSONHandler(&buf, nil)
	logger := slog.New(WrapHandler(base))
	logger.Info("test", "address", "ct1alice", "rpc_token", "secret", "status", "ok")

	var payload map[string]any
	if err := json.Unmarshal(buf.Bytes(), &payload); err != nil {
		t.Fatalf("decode log json: %v", err)
	}
	if _, ok := payload["address"]; ok {
		t.Fatal("address should not be present")
	}
	if _, ok := payload["address_fp"]; !ok {
		t.Fatal("address_fp should be present")
	}
	if got, _ := payload["rpc_token"].(string); got != redactedValue {
		t.Fatalf("expected redacted token, got %q", got)
	}
}

func TestSanitizingHandlerImplementsSlogHandlerContract(t *testing.T) {
	var buf bytes.Buffer
	h := WrapHandler(slog.NewJSONHandler(&buf, nil))
	if !h.Enabled(context.Background(), slog.LevelInfo) {
		t.Fatal("expected handler enabled for info")
	}
	rec := slog.NewRecord(time.Now().UTC(), slog.LevelInfo, "msg", 0)
	rec.AddAttrs(slog.String("sender_address", "ct1bob"))
	if err := h.Handle(context.Background(), rec); err != nil {
		t.Fatalf("handle failed: %v", err)
	}
	if !strings.Contains(buf.String(), "sender_address_fp") {
		t.Fatalf("expected sanitized sender_address key, got %s", buf.String())
	}
}
