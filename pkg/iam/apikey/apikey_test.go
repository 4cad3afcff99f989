package apikey

import (
	"strings"
	"testing"
	"time"
)

func TestGenerateAPIKey_Shape(t *testing.T) {
	generated, err := GenerateAPIKey()
	if err != nil {
		t.Fatal(err)
	}

	if !strings.HasPrefix(generated.Key, KeyPrefix) {
		t.Errorf("key must carry the fixed prefix: %s", generated.Key)
	}
	if !IsValidFormat(generated.Key) {
		t.Errorf("generated key must satisfy the key pattern: %s", generated.Key)
	}
	if len(generated.Key) != len(KeyPrefix)+32 {
		t.Errorf("key length: got %d", len(generated.Key))
	}
	if generated.KeyPrefix != generated.Key[:len(KeyPrefix)+8] {
		t.Errorf("display prefix: got %s", generated.KeyPrefix)
	}
}

func TestGenerateAPIKey_Unique(t *testing.T) {
	a, err := GenerateAPIKey()
	if err != nil {
		t.Fatal(err)
	}
	b, err := GenerateAPIKey()
	if err != nil {
		t.Fatal(err)
	}
	if a.Key == b.Key {
		t.Fatal("two generated keys must differ")
	}
}

func TestIsValidFormat(t *testing.T) {
	valid := []string{
		"xapi-0123456789abcdef0123456789abcdef",
	}
	invalid := []string{
		"",
		"xapi-",
		"0123456789abcdef0123456789abcdef",
		"xapi-0123456789ABCDEF0123456789ABCDEF",
		"xapi-0123456789abcdef0123456789abcde",
		"xapi-0123456789abcdef0123456789abcdef0",
		"key-0123456789abcdef0123456789abcdef",
		"Bearer xapi-0123456789abcdef0123456789abcdef",
	}

	for _, raw := range valid {
		if !IsValidFormat(raw) {
			t.Errorf("%q must be accepted", raw)
		}
	}
	for _, raw := range invalid {
		if IsValidFormat(raw) {
			t.Errorf("%q must be rejected", raw)
		}
	}
}

func TestHashAPIKey_StableAndDistinct(t *testing.T) {
	a := HashAPIKey("xapi-0123456789abcdef0123456789abcdef")
	if a != HashAPIKey("xapi-0123456789abcdef0123456789abcdef") {
		t.Fatal("hash must be deterministic")
	}
	if a == HashAPIKey("xapi-ffffffffffffffffffffffffffffffff") {
		t.Fatal("distinct keys must hash differently")
	}
	if len(a) != 64 {
		t.Fatalf("expected hex sha256 length 64, got %d", len(a))
	}
}

func TestAllowsIP(t *testing.T) {
	unrestricted := APIKey{}
	if !unrestricted.AllowsIP("203.0.113.7") {
		t.Error("empty allow-list must admit any IP")
	}

	restricted := APIKey{AllowedIPs: []string{"10.0.0.1", "10.0.0.2"}}
	if !restricted.AllowsIP("10.0.0.2") {
		t.Error("listed IP must be admitted")
	}
	if restricted.AllowsIP("10.0.0.3") {
		t.Error("unlisted IP must be refused")
	}
}

func TestCanAuthenticate(t *testing.T) {
	past := time.Now().Add(-time.Hour)
	future := time.Now().Add(time.Hour)

	live := APIKey{IsActive: true, ExpiresAt: &future}
	if !live.CanAuthenticate() {
		t.Error("active unexpired key must authenticate")
	}

	expired := APIKey{IsActive: true, ExpiresAt: &past}
	if expired.CanAuthenticate() {
		t.Error("expired key must not authenticate")
	}

	inactive := APIKey{IsActive: false}
	if inactive.CanAuthenticate() {
		t.Error("inactive key must not authenticate")
	}

	perpetual := APIKey{IsActive: true}
	if !perpetual.CanAuthenticate() {
		t.Error("key without expiry must authenticate while active")
	}
}
