package webhook

import (
	"errors"
	"testing"
	"time"
)

func TestSignVerify_RoundTrip(t *testing.T) {
	s := NewSigner(300 * time.Second)
	body := []byte(`{"event_type":"product.price_changed"}`)
	now := time.Unix(1700000000, 0)

	header := s.Sign(body, "secret-1", now)
	if err := s.Verify(body, header, "secret-1", now); err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
}

func TestVerify_WrongSecretFails(t *testing.T) {
	s := NewSigner(300 * time.Second)
	body := []byte(`{"a":1}`)
	now := time.Unix(1700000000, 0)

	header := s.Sign(body, "secret-1", now)
	err := s.Verify(body, header, "wrong-secret", now)
	if !errors.Is(err, ErrSignatureMismatch) {
		t.Fatalf("Verify() error = %v, want ErrSignatureMismatch", err)
	}
}

func TestVerify_TamperedBodyFails(t *testing.T) {
	s := NewSigner(300 * time.Second)
	now := time.Unix(1700000000, 0)

	header := s.Sign([]byte(`{"a":1}`), "secret-1", now)
	err := s.Verify([]byte(`{"a":2}`), header, "secret-1", now)
	if !errors.Is(err, ErrSignatureMismatch) {
		t.Fatalf("Verify() error = %v, want ErrSignatureMismatch", err)
	}
}

func TestVerify_OutsideReplayWindowFails(t *testing.T) {
	s := NewSigner(300 * time.Second)
	body := []byte(`{"a":1}`)
	signedAt := time.Unix(1700000000, 0)
	verifiedAt := signedAt.Add(301 * time.Second)

	header := s.Sign(body, "secret-1", signedAt)
	err := s.Verify(body, header, "secret-1", verifiedAt)
	if !errors.Is(err, ErrReplayWindowExceeded) {
		t.Fatalf("Verify() error = %v, want ErrReplayWindowExceeded", err)
	}
}

func TestVerify_WithinReplayWindowSucceeds(t *testing.T) {
	s := NewSigner(300 * time.Second)
	body := []byte(`{"a":1}`)
	signedAt := time.Unix(1700000000, 0)
	verifiedAt := signedAt.Add(299 * time.Second)

	header := s.Sign(body, "secret-1", signedAt)
	if err := s.Verify(body, header, "secret-1", verifiedAt); err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
}

func TestVerify_MissingComponentFails(t *testing.T) {
	s := NewSigner(300 * time.Second)
	err := s.Verify([]byte("x"), "t=123", "secret", time.Unix(123, 0))
	if !errors.Is(err, ErrMissingComponent) {
		t.Fatalf("Verify() error = %v, want ErrMissingComponent", err)
	}
}

func TestVerifyWithRotation_FallsBackToPrevious(t *testing.T) {
	s := NewSigner(300 * time.Second)
	body := []byte(`{"a":1}`)
	now := time.Unix(1700000000, 0)

	header := s.Sign(body, "old-secret", now)
	previous := "old-secret"
	if err := s.VerifyWithRotation(body, header, "new-secret", &previous, now); err != nil {
		t.Fatalf("VerifyWithRotation() error = %v", err)
	}
}

func TestVerifyWithRotation_NoPreviousFails(t *testing.T) {
	s := NewSigner(300 * time.Second)
	body := []byte(`{"a":1}`)
	now := time.Unix(1700000000, 0)

	header := s.Sign(body, "old-secret", now)
	err := s.VerifyWithRotation(body, header, "new-secret", nil, now)
	if !errors.Is(err, ErrSignatureMismatch) {
		t.Fatalf("VerifyWithRotation() error = %v, want ErrSignatureMismatch", err)
	}
}

func TestVerifyWithRotation_BothFail(t *testing.T) {
	s := NewSigner(300 * time.Second)
	body := []byte(`{"a":1}`)
	now := time.Unix(1700000000, 0)

	header := s.Sign(body, "unrelated-secret", now)
	previous := "old-secret"
	err := s.VerifyWithRotation(body, header, "new-secret", &previous, now)
	if !errors.Is(err, ErrSignatureMismatch) {
		t.Fatalf("VerifyWithRotation() error = %v, want ErrSignatureMismatch", err)
	}
}
