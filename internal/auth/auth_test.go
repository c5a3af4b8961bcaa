package auth

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/blues/eos/internal/config"
)

func testAuthConfig() config.AuthConfig {
	return config.AuthConfig{
		JwtSecret:   "test-secret",
		TokenExpiry: 30,
	}
}

func TestHashAndVerifyPassword(t *testing.T) {
	hash, err := HashPassword("s3cret-pass")
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}
	if !VerifyPassword("s3cret-pass", hash) {
		t.Error("Correct password must verify")
	}
	if VerifyPassword("wrong-pass", hash) {
		t.Error("Wrong password must not verify")
	}
}

func TestHashPasswordLongInput(t *testing.T) {
	// 超过bcrypt的72字节上限也必须可用
	long := strings.Repeat("a", 100)
	hash, err := HashPassword(long)
	if err != nil {
		t.Fatalf("HashPassword failed on long input: %v", err)
	}
	if !VerifyPassword(long, hash) {
		t.Error("Long password must verify after truncation")
	}
}

func TestTokenRoundTrip(t *testing.T) {
	cfg := testAuthConfig()
	token, err := CreateAccessToken("0xABCDEF", cfg)
	if err != nil {
		t.Fatalf("CreateAccessToken failed: %v", err)
	}

	wallet, err := VerifyToken(token, cfg)
	if err != nil {
		t.Fatalf("VerifyToken failed: %v", err)
	}
	if wallet != "0xABCDEF" {
		t.Errorf("Expected wallet 0xABCDEF, got %s", wallet)
	}
}

func TestVerifyTokenWrongSecret(t *testing.T) {
	token, err := CreateAccessToken("0xABCDEF", testAuthConfig())
	if err != nil {
		t.Fatalf("CreateAccessToken failed: %v", err)
	}

	other := config.AuthConfig{JwtSecret: "other-secret", TokenExpiry: 30}
	if _, err := VerifyToken(token, other); err == nil {
		t.Error("Token signed with another secret must not verify")
	}
}

func TestVerifyTokenRejectsUnsignedAlgorithm(t *testing.T) {
	// 手工拼一个alg=none的令牌，签名方法未锁定时部分解析器会放行
	enc := func(s string) string {
		return base64.RawURLEncoding.EncodeToString([]byte(s))
	}
	token := enc(`{"alg":"none","typ":"JWT"}`) + "." + enc(`{"sub":"0xABCDEF"}`) + "."

	if _, err := VerifyToken(token, testAuthConfig()); err == nil {
		t.Error("Token with alg=none must not verify")
	}
}

func TestExtractBearer(t *testing.T) {
	cases := []struct {
		header string
		want   string
	}{
		{"Bearer abc123", "abc123"},
		{"bearer abc123", "abc123"},
		{"Basic abc123", ""},
		{"abc123", ""},
		{"", ""},
	}
	for _, c := range cases {
		if got := ExtractBearer(c.header); got != c.want {
			t.Errorf("ExtractBearer(%q) = %q, want %q", c.header, got, c.want)
		}
	}
}
