package auth

import (
	"encoding/base64"
	"strings"
	"testing"
	"time"
)

// newTestTokenService creates a TokenService with a fixed, known secret so
// tests are deterministic.
func newTestTokenService(t *testing.T) *TokenService {
	t.Helper()
	ts, err := NewTokenService("test-secret-at-least-16-chars!!")
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	return ts
}

var testSession = Session{
	Email:       "alice@example.com",
	Login:       "alice",
	Name:        "Alice",
	GitHubToken: "gho_abcdef0123456789",
}

// =========================================================================
// TOKEN SERVICE CONSTRUCTION TESTS
// =========================================================================

func TestNewTokenService_ShortSecret(t *testing.T) {
	_, err := NewTokenService("short")
	if err == nil {
		t.Fatal("NewTokenService() should reject secrets shorter than 16 chars")
	}
}

func TestNewTokenService_ValidSecret(t *testing.T) {
	_, err := NewTokenService("this-is-16-chars")
	if err != nil {
		t.Fatalf("NewTokenService() unexpected error for valid secret: %v", err)
	}
}

// =========================================================================
// GENERATE TESTS
// =========================================================================

func TestGenerate_ReturnsJWT(t *testing.T) {
	ts := newTestTokenService(t)

	token, err := ts.Generate(testSession)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if strings.Count(token, ".") != 2 {
		t.Errorf("Generate() token doesn't look like a JWT: %q", token)
	}
}

func TestGenerate_RequiresEmail(t *testing.T) {
	ts := newTestTokenService(t)

	if _, err := ts.Generate(Session{Login: "alice"}); err == nil {
		t.Fatal("Generate() should reject a session without email")
	}
}

func TestGenerate_GitHubTokenNotInPlaintext(t *testing.T) {
	ts := newTestTokenService(t)

	token, err := ts.Generate(testSession)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	payload, err := base64.RawURLEncoding.DecodeString(strings.Split(token, ".")[1])
	if err != nil {
		t.Fatalf("decoding payload: %v", err)
	}
	if strings.Contains(string(payload), testSession.GitHubToken) {
		t.Error("GitHub token readable in the JWT payload")
	}
}

// =========================================================================
// VALIDATE TESTS
// =========================================================================

func TestValidate_RoundTrip(t *testing.T) {
	ts := newTestTokenService(t)

	token, err := ts.Generate(testSession)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	got, err := ts.Validate(token)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if *got != testSession {
		t.Errorf("Validate() = %+v, want %+v", *got, testSession)
	}
}

func TestValidate_SessionWithoutGitHubToken(t *testing.T) {
	ts := newTestTokenService(t)

	token, _ := ts.Generate(Session{Email: "bob@example.com"})
	got, err := ts.Validate(token)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if got.GitHubToken != "" {
		t.Errorf("Validate() GitHubToken = %q, want empty", got.GitHubToken)
	}
}

func TestValidate_ExpiredToken(t *testing.T) {
	ts := newTestTokenService(t)

	token, err := ts.GenerateWithDuration(testSession, -1*time.Second)
	if err != nil {
		t.Fatalf("GenerateWithDuration() error = %v", err)
	}

	if _, err := ts.Validate(token); err == nil {
		t.Fatal("Validate() should return an error for an expired token")
	}
}

func TestValidate_TamperedToken(t *testing.T) {
	ts := newTestTokenService(t)

	token, _ := ts.Generate(testSession)

	// Change a character inside the signature. The final character is
	// avoided because its low bits are padding.
	i := len(token) - 10
	flipped := byte('A')
	if token[i] == 'A' {
		flipped = 'Q'
	}
	tampered := token[:i] + string(flipped) + token[i+1:]

	if _, err := ts.Validate(tampered); err == nil {
		t.Fatal("Validate() should reject a tampered token")
	}
}

func TestValidate_WrongSecret(t *testing.T) {
	ts1 := newTestTokenService(t)
	ts2, _ := NewTokenService("a-completely-different-secret!!")

	token, _ := ts1.Generate(testSession)

	if _, err := ts2.Validate(token); err == nil {
		t.Fatal("Validate() should reject a token signed with a different secret")
	}
}

func TestValidate_Garbage(t *testing.T) {
	ts := newTestTokenService(t)

	for _, input := range []string{"", "not-a-jwt", "a.b.c"} {
		if _, err := ts.Validate(input); err == nil {
			t.Errorf("Validate(%q) should fail", input)
		}
	}
}
