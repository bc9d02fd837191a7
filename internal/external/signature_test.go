package external

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSignatureVerifier(t *testing.T) {
	at := time.Unix(1704908010, 0)
	v := NewSignatureVerifier("whsec", 5*time.Minute)
	v.now = func() time.Time { return at.Add(time.Minute) }

	header := v.Sign("req-1", "123456", at)

	assert.NoError(t, v.Verify(header, "req-1", "123456"))
	assert.ErrorIs(t, v.Verify(header, "req-2", "123456"), ErrSignatureMismatch)
	assert.ErrorIs(t, v.Verify(header, "req-1", "999"), ErrSignatureMismatch)
	assert.ErrorIs(t, v.Verify("", "req-1", "123456"), ErrSignatureMissing)
	assert.ErrorIs(t, v.Verify("ts=1704908010", "req-1", "123456"), ErrSignatureMissing)

	other := NewSignatureVerifier("another", 0)
	assert.ErrorIs(t, other.Verify(header, "req-1", "123456"), ErrSignatureMismatch)
}

func TestSignatureVerifierTolerance(t *testing.T) {
	at := time.Unix(1704908010, 0)
	v := NewSignatureVerifier("whsec", time.Minute)
	v.now = func() time.Time { return at.Add(10 * time.Minute) }

	assert.ErrorIs(t, v.Verify(v.Sign("r", "1", at), "r", "1"), ErrSignatureOutOfDate)

	v.tolerance = 0
	assert.NoError(t, v.Verify(v.Sign("r", "1", at), "r", "1"))
}

func TestSignatureManifest(t *testing.T) {
	assert.Equal(t, "id:abc;request-id:r1;ts:10;", signatureManifest("ABC", "r1", "10"))
	assert.Equal(t, "id:5;ts:10;", signatureManifest("5", "", "10"))
}
