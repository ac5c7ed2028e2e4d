// Package native provides a vidflow device on a gogpu/wgpu HAL device.
//
// Textures live on the GPU. Uploads go through Queue.WriteTexture and
// read-backs copy into a 256-byte aligned staging buffer followed by a
// fence wait. Programs are compiled from WGSL to SPIR-V with naga and
// created as HAL shader modules, so shader errors surface when a program
// is built.
//
// Draws currently run the program's CPU kernel on read-back inputs and
// upload the result; the render pipeline path is not wired yet. The device
// cannot wrap external memory, so the capture and record zero-copy paths
// fall back to uploads and read-backs.
//
// A device is usually taken from a host that already owns one:
//
//	dev, err := native.FromProvider(provider)
//
// or registered with the backend registry:
//
//	native.Register(provider)
//	dev, name, err := backend.Default()
package native
