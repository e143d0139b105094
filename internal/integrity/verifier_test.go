package integrity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifyModule_UnregisteredIsUnknownWithWarning(t *testing.T) {
	reg := NewRegistry()
	v := New(reg, false)

	result, err := v.VerifyModule("pkg/unknown", "/src/pkg/unknown.core", []byte("content"), time.Now())
	require.NoError(t, err)
	assert.Equal(t, Unknown, result.TrustLevel)
	assert.NotEmpty(t, result.Warning)
}

func TestVerifyModule_MatchingChecksumGetsRegisteredTrust(t *testing.T) {
	reg := NewRegistry()
	content := []byte("module body")
	reg.Register("pkg/core", RegistryEntry{Checksum: Sha256Hex(content), TrustLevel: Trusted})
	v := New(reg, false)

	result, err := v.VerifyModule("pkg/core", "/src/pkg/core.core", content, time.Now())
	require.NoError(t, err)
	assert.Equal(t, Trusted, result.TrustLevel)
	assert.Empty(t, result.Warning)
}

func TestVerifyModule_ChecksumMismatchWithoutAllowUpdatesIsUnknown(t *testing.T) {
	reg := NewRegistry()
	reg.Register("pkg/core", RegistryEntry{Checksum: Sha256Hex([]byte("original")), TrustLevel: Trusted})
	v := New(reg, false)

	result, err := v.VerifyModule("pkg/core", "/src/pkg/core.core", []byte("tampered"), time.Now())
	require.NoError(t, err)
	assert.Equal(t, Unknown, result.TrustLevel)
	assert.Equal(t, "checksum mismatch", result.Warning)
}

func TestVerifyModule_AllowUpdatesRetainsTrustOnNewerMTime(t *testing.T) {
	reg := NewRegistry()
	recorded := time.Now().Add(-time.Hour)
	reg.Register("pkg/core", RegistryEntry{
		Checksum:      Sha256Hex([]byte("original")),
		TrustLevel:    Trusted,
		AllowUpdates:  true,
		RecordedMTime: recorded,
	})
	v := New(reg, false)

	result, err := v.VerifyModule("pkg/core", "/src/pkg/core.core", []byte("updated"), time.Now())
	require.NoError(t, err)
	assert.Equal(t, Trusted, result.TrustLevel)
	assert.NotEmpty(t, result.Warning)
}

func TestVerifyModule_EnforceIntegrityFailsClosedOnUnknown(t *testing.T) {
	reg := NewRegistry()
	v := New(reg, true)

	_, err := v.VerifyModule("pkg/unknown", "/src/pkg/unknown.core", []byte("x"), time.Now())
	require.Error(t, err)
}

func TestVerifyModule_MaxSizeOverridesToUnknown(t *testing.T) {
	reg := NewRegistry()
	content := []byte("0123456789")
	reg.Register("pkg/small", RegistryEntry{Checksum: Sha256Hex(content), TrustLevel: System, MaxSize: 4})
	v := New(reg, false)

	result, err := v.VerifyModule("pkg/small", "/src/pkg/small.core", content, time.Now())
	require.NoError(t, err)
	assert.Equal(t, Unknown, result.TrustLevel)
}

func TestVerifyModule_CachesResultByFilePath(t *testing.T) {
	reg := NewRegistry()
	v := New(reg, false)

	first, err := v.VerifyModule("pkg/a", "/src/pkg/a.core", []byte("a"), time.Now())
	require.NoError(t, err)

	second, err := v.VerifyModule("pkg/a", "/src/pkg/a.core", []byte("completely different bytes"), time.Now())
	require.NoError(t, err)
	assert.Equal(t, first.Checksum, second.Checksum, "cache hit must return the first result regardless of new content")
}

func TestSha256Hex_MatchesContent(t *testing.T) {
	content := []byte("hello corelang")
	digest := Sha256Hex(content)
	assert.Len(t, digest, 64)

	again := Sha256Hex(content)
	assert.Equal(t, digest, again)
}
