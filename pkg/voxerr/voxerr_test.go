package voxerr_test

import (
	"errors"
	"testing"

	"github.com/lotlab/voxrelay/pkg/voxerr"
)

func TestIsMatchesKind(t *testing.T) {
	err := voxerr.New("session.readLoop", voxerr.KindTimeout, "inbound", nil)
	if !errors.Is(err, voxerr.KindTimeout) {
		t.Fatalf("expected errors.Is to match KindTimeout")
	}
	if errors.Is(err, voxerr.KindNoPing) {
		t.Fatalf("should not match a different kind")
	}
}

func TestUnwrap(t *testing.T) {
	inner := errors.New("pipe closed")
	err := voxerr.New("client.Send", voxerr.KindTimeout, "outbound", inner)
	if errors.Unwrap(err) != inner {
		t.Fatalf("Unwrap() did not return the wrapped error")
	}
}

func TestKindString(t *testing.T) {
	if voxerr.KindCryptDecrypt.String() != "CryptDecrypt" {
		t.Fatalf("got %q", voxerr.KindCryptDecrypt.String())
	}
}
