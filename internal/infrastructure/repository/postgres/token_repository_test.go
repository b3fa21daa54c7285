package postgres

import (
	"bytes"
	"context"
	"database/sql/driver"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/dmpolyakov/ai-drive-agent/internal/core/domain"
)

func testCipher(t *testing.T) *TokenCipher {
	t.Helper()
	cipher, err := NewTokenCipher(bytes.Repeat([]byte("k"), 32))
	if err != nil {
		t.Fatalf("NewTokenCipher() error = %v", err)
	}
	return cipher
}

func TestTokenRepositorySaveSealsTokens(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	repo := NewTokenRepository(db, testCipher(t))
	expiry := time.Now().Add(time.Hour).UTC()

	mock.ExpectExec("INSERT INTO oauth_tokens").
		WithArgs("u-1", tokenNotPlaintext("access-plain"), tokenNotPlaintext("refresh-plain"), expiry, "drive docs", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = repo.Save(context.Background(), domain.GoogleToken{
		UserID:       "u-1",
		AccessToken:  "access-plain",
		RefreshToken: "refresh-plain",
		Expiry:       expiry,
		Scope:        "drive docs",
	})
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestTokenRepositoryGetNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	repo := NewTokenRepository(db, testCipher(t))
	mock.ExpectQuery("FROM oauth_tokens").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "access_token", "refresh_token", "expiry", "scope", "updated_at"}))

	_, err = repo.Get(context.Background(), "missing")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestTokenRepositoryGetOpensSealedTokens(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	cipher := testCipher(t)
	repo := NewTokenRepository(db, cipher)

	sealedAccess, _ := cipher.Seal("access-plain")
	sealedRefresh, _ := cipher.Seal("refresh-plain")
	expiry := time.Now().Add(time.Hour).UTC()
	rows := sqlmock.NewRows([]string{"user_id", "access_token", "refresh_token", "expiry", "scope", "updated_at"}).
		AddRow("u-1", sealedAccess, sealedRefresh, expiry, "drive", time.Now().UTC())

	mock.ExpectQuery("FROM oauth_tokens").
		WithArgs("u-1").
		WillReturnRows(rows)

	token, err := repo.Get(context.Background(), "u-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if token.AccessToken != "access-plain" || token.RefreshToken != "refresh-plain" {
		t.Fatalf("expected tokens opened, got %#v", token)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestTokenCipherRoundTripAndTamper(t *testing.T) {
	cipher := testCipher(t)

	sealed, err := cipher.Seal("secret-token")
	if err != nil {
		t.Fatalf("Seal() error = %v", err)
	}
	if sealed == "secret-token" {
		t.Fatalf("sealed value must not equal plaintext")
	}

	opened, err := cipher.Open(sealed)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if opened != "secret-token" {
		t.Fatalf("round trip mismatch: %q", opened)
	}

	if _, err := cipher.Open(sealed[:len(sealed)-8] + "AAAAAAA="); err == nil {
		t.Fatalf("tampered ciphertext must not open")
	}
}

// tokenNotPlaintext matches any sealed argument that differs from the
// given plaintext.
type tokenNotPlaintext string

func (v tokenNotPlaintext) Match(arg driver.Value) bool {
	s, ok := arg.(string)
	return ok && s != "" && s != string(v)
}
