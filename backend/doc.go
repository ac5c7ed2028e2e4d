// Package backend provides a registry of pluggable vidflow devices.
//
// Every backend implements [gpucore.Device]. Backends register a factory
// under a name, usually from an init function, and are selected at runtime:
//
//	import _ "github.com/gogpu/vidflow/backend/software"
//
//	dev, err := backend.Open("software")
//
// # Backend Selection
//
// [Default] opens the best available backend. The native (wgpu HAL) backend
// is preferred when a host has registered a device provider with
// native.Register; the software backend is the fallback.
package backend
