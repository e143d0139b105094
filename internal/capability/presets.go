package capability

// TrustedPreset returns the capability set spec.md §4.6 assigns to the
// "trusted" preset pack: any file read, writes under /tmp, any network
// connect, and module import anywhere.
func TrustedPreset() []Capability {
	return []Capability{
		FileSystem{Op: FSRead, Pattern: PathPattern{Any: true}},
		FileSystem{Op: FSWrite, Pattern: PathPattern{Prefix: "/tmp"}},
		Network{Op: NetConnect, Host: HostPattern{Any: true}},
		ModuleInteraction{Op: ModImport},
	}
}

// SystemPreset returns the "system" preset pack: a superset of Trusted
// adding arbitrary writes and execution, process spawn, FFI, reflection,
// and dynamic module loading (spec.md §4.6).
func SystemPreset() []Capability {
	preset := append([]Capability(nil), TrustedPreset()...)
	return append(preset,
		FileSystem{Op: FSWrite, Pattern: PathPattern{Any: true}},
		FileSystem{Op: FSExecute, Pattern: PathPattern{Any: true}},
		Process{Op: ProcSpawn},
		FFI{Op: FFICall, Pattern: PathPattern{Any: true}},
		FFI{Op: FFILoad, Pattern: PathPattern{Any: true}},
		ModuleInteraction{Op: ModReflect},
		ModuleInteraction{Op: ModDynamicLoad},
	)
}

// ApplyPreset grants every capability in a preset pack to module.
func (m *Manager) ApplyPreset(module string, preset []Capability) {
	for _, c := range preset {
		m.Grant(module, c)
	}
}
