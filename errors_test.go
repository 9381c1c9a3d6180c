package dirwatch

import (
	"errors"
	"testing"
)

func TestFileNotFoundError(t *testing.T) {
	err := &FileNotFound{Path: "/tmp/nope"}
	if err.Error() == "" {
		t.Fatalf("FileNotFound.Error() is empty")
	}
}

func TestUnspecifiedUnwraps(t *testing.T) {
	cause := errors.New("boom")
	err := unspecified("doing a thing", cause)
	if !errors.Is(err, cause) {
		t.Fatalf("errors.Is(unspecified, cause) = false, want true")
	}
}

func TestUnspecifiedWithoutCause(t *testing.T) {
	err := &Unspecified{Detail: "no underlying error"}
	if err.Error() != "no underlying error" {
		t.Fatalf("Error() = %q, want %q", err.Error(), "no underlying error")
	}
}
