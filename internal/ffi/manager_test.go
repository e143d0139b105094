package ffi

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager() *Manager {
	return New(nil, []CallSignature{{Name: "read_file", Arity: 1}}, Config{})
}

func TestValidatePointer_RejectsNull(t *testing.T) {
	m := newTestManager()
	err := m.ValidatePointer(0, "Buffer", 0)
	require.Error(t, err)
}

func TestValidatePointer_RejectsBelowPlatformMinimum(t *testing.T) {
	m := newTestManager()
	err := m.ValidatePointer(1, "Buffer", 0)
	require.Error(t, err)
}

func TestValidatePointer_RejectsUnregistered(t *testing.T) {
	m := newTestManager()
	err := m.ValidatePointer(0x10000, "Buffer", 0)
	require.Error(t, err)
}

func TestValidatePointer_AcceptsRegisteredMatchingTag(t *testing.T) {
	m := newTestManager()
	m.RegisterPointer(0x10000, "Buffer", "alloc_site_1", time.Minute, 0)
	assert.NoError(t, m.ValidatePointer(0x10000, "Buffer", 0))
}

func TestRegisterPointer_ReturnsUniqueTokenPerRegistration(t *testing.T) {
	m := newTestManager()
	a := m.RegisterPointer(0x10000, "Buffer", "alloc_site_1", time.Minute, 0)
	b := m.RegisterPointer(0x20000, "Buffer", "alloc_site_2", time.Minute, 0)
	assert.NotEmpty(t, a)
	assert.NotEmpty(t, b)
	assert.NotEqual(t, a, b)
}

func TestValidatePointer_RejectsTypeMismatch(t *testing.T) {
	m := newTestManager()
	m.RegisterPointer(0x10000, "Buffer", "alloc_site_1", time.Minute, 0)
	err := m.ValidatePointer(0x10000, "Socket", 0)
	require.Error(t, err)
}

func TestValidatePointer_RejectsExpired(t *testing.T) {
	m := newTestManager()
	m.RegisterPointer(0x10000, "Buffer", "alloc_site_1", -time.Second, 0)
	err := m.ValidatePointer(0x10000, "Buffer", 0)
	require.Error(t, err)
}

func TestValidatePointer_RejectsCanaryMismatch(t *testing.T) {
	m := newTestManager()
	m.RegisterPointer(0x10000, "Buffer", "alloc_site_1", time.Minute, 0xDEAD)
	err := m.ValidatePointer(0x10000, "Buffer", 0xBEEF)
	require.Error(t, err)
}

func TestValidateFFICall_RejectsNotInAllowlist(t *testing.T) {
	m := newTestManager()
	err := m.ValidateFFICall("delete_everything", nil)
	require.Error(t, err)
}

func TestValidateFFICall_RejectsArityMismatch(t *testing.T) {
	m := newTestManager()
	err := m.ValidateFFICall("read_file", []any{})
	require.Error(t, err)
}

func TestValidateFFICall_AcceptsAllowedMatchingArity(t *testing.T) {
	m := newTestManager()
	assert.NoError(t, m.ValidateFFICall("read_file", []any{"path"}))
}

func TestValidateFFICall_RateLimited(t *testing.T) {
	m := New(nil, []CallSignature{{Name: "read_file", Arity: 1}}, Config{CallPerSecond: 1, CallBurst: 1})
	require.NoError(t, m.ValidateFFICall("read_file", []any{"a"}))
	err := m.ValidateFFICall("read_file", []any{"a"})
	assert.Error(t, err)
}

func TestCreateTask_RateLimited(t *testing.T) {
	m := New(nil, nil, Config{SpawnPerSecond: 1, SpawnBurst: 1})
	require.NoError(t, m.CreateTask("worker"))
	err := m.CreateTask("worker")
	assert.Error(t, err)
}

func TestCleanupExpiredResources_RemovesOnlyExpired(t *testing.T) {
	m := newTestManager()
	m.RegisterPointer(0x10000, "Buffer", "a", -time.Second, 0)
	m.RegisterPointer(0x20000, "Buffer", "b", time.Hour, 0)

	removed := m.CleanupExpiredResources(time.Now())
	assert.Equal(t, 1, removed)
	assert.NoError(t, m.ValidatePointer(0x20000, "Buffer", 0))
}
