// Package gpucore defines the device contract shared by all vidflow backends.
//
// Components above this package (frame pools, the processing stream, graph
// operations, capture and recording) never talk to a GPU API directly. They
// create textures, upload and read back pixels, build programs and issue
// full-screen draws through the [Device] interface:
//
//	               +-------------------+
//	               | processing.Context|
//	               +---------+---------+
//	                         |
//	                 gpucore.Device
//	                         |
//	         +---------------+---------------+
//	         |                               |
//	+--------v---------+           +---------v--------+
//	| backend/software |           |  backend/native  |
//	|   (CPU memory)   |           |  (wgpu hal)      |
//	+------------------+           +------------------+
//
// # Resources
//
// Textures and programs are referenced by opaque IDs ([TextureID],
// [ProgramID]). Each device maintains the mapping between IDs and its own
// backing objects.
//
// # Programs
//
// A program pairs WGSL source with a CPU [Kernel] implementing the same
// fragment stage. Devices that cannot execute a draw natively run the kernel
// through [Execute], which samples every input the way a GPU sampler would
// (rotation, bilinear resampling, single/dual channel expansion).
package gpucore
