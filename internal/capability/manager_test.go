package capability

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheck_ExplicitGrantAllowed(t *testing.T) {
	m := New(nil)
	m.Register("app", Untrusted, "")
	m.Grant("app", FileSystem{Op: FSRead, Pattern: PathPattern{Exact: "/data/in.txt"}})

	err := m.Check("app", FileSystem{Op: FSRead, Pattern: PathPattern{Exact: "/data/in.txt"}})
	assert.NoError(t, err)
}

func TestCheck_UngrantedDenied(t *testing.T) {
	m := New(nil)
	m.Register("app", Untrusted, "")

	err := m.Check("app", FileSystem{Op: FSWrite, Pattern: PathPattern{Exact: "/etc/passwd"}})
	require.Error(t, err)
}

func TestCheck_TrustLevelGatesClassBeforePermissionSet(t *testing.T) {
	m := New(nil)
	m.Register("sandboxed", Sandbox, "")
	m.Grant("sandboxed", Process{Op: ProcSpawn})

	err := m.Check("sandboxed", Process{Op: ProcSpawn})
	require.Error(t, err, "Sandbox trust must reject Process class even when explicitly granted")
}

func TestCheck_MinimalDefaultAlwaysAllowed(t *testing.T) {
	m := New(nil)
	m.Register("anything", Sandbox, "")

	assert.NoError(t, m.Check("anything", Resource{Kind: ResMemory}))
	assert.NoError(t, m.Check("anything", Resource{Kind: ResCPUMs}))
}

func TestCheck_InheritsFromParent(t *testing.T) {
	m := New(nil)
	m.Register("lib", Trusted, "")
	m.Grant("lib", FileSystem{Op: FSRead, Pattern: PathPattern{Any: true}})
	m.Register("app", Trusted, "lib")

	err := m.Check("app", FileSystem{Op: FSRead, Pattern: PathPattern{Any: true}})
	assert.NoError(t, err)
}

func TestCheck_RevokeRemovesOwnGrant(t *testing.T) {
	m := New(nil)
	m.Register("app", Trusted, "")
	cap := FileSystem{Op: FSRead, Pattern: PathPattern{Any: true}}
	m.Grant("app", cap)
	require.NoError(t, m.Check("app", cap))

	m.Revoke("app", cap)
	err := m.Check("app", cap)
	assert.Error(t, err)
}

func TestCheck_CustomRuleCanAllow(t *testing.T) {
	m := New(nil)
	m.Register("app", Trusted, "")
	m.AddRule("app", func(ctx Context) bool {
		net, ok := ctx.Capability.(Network)
		return ok && net.Op == NetConnect && net.Host.Matches("api.internal")
	})

	err := m.Check("app", Network{Op: NetConnect, Host: HostPattern{Exact: "api.internal"}})
	assert.NoError(t, err)

	err = m.Check("app", Network{Op: NetConnect, Host: HostPattern{Exact: "evil.example"}})
	assert.Error(t, err)
}

func TestCheck_AuditHookFiresOnEveryCheck(t *testing.T) {
	var events []AuditEvent
	m := New(func(ev AuditEvent) { events = append(events, ev) })
	m.Register("app", Trusted, "")
	m.Grant("app", Resource{Kind: ResThreads})

	_ = m.Check("app", Resource{Kind: ResThreads})
	_ = m.Check("app", Process{Op: ProcSpawn})

	require.Len(t, events, 2)
	assert.True(t, events[0].Allowed)
	assert.False(t, events[1].Allowed)
}

func TestPresets_TrustedGrantsExpectedCapabilities(t *testing.T) {
	m := New(nil)
	m.Register("app", Trusted, "")
	m.ApplyPreset("app", TrustedPreset())

	assert.NoError(t, m.Check("app", FileSystem{Op: FSRead, Pattern: PathPattern{Exact: "/any/file"}}))
	assert.NoError(t, m.Check("app", FileSystem{Op: FSWrite, Pattern: PathPattern{Prefix: "/tmp"}}))
	assert.NoError(t, m.Check("app", Network{Op: NetConnect, Host: HostPattern{Exact: "example.com"}}))
	assert.Error(t, m.Check("app", Process{Op: ProcSpawn}), "trusted preset must not grant process spawn")
}

func TestPresets_SystemSupersedesTrusted(t *testing.T) {
	m := New(nil)
	m.Register("daemon", System, "")
	m.ApplyPreset("daemon", SystemPreset())

	assert.NoError(t, m.Check("daemon", Process{Op: ProcSpawn}))
	assert.NoError(t, m.Check("daemon", FFI{Op: FFICall, Pattern: PathPattern{Any: true}}))
	assert.NoError(t, m.Check("daemon", ModuleInteraction{Op: ModDynamicLoad}))
}
