// Package processing provides the serialized GPU stream shared by every
// vidflow component.
//
// A [Context] owns the device, the frame pool and the built-in programs
// (passthrough, channel swizzle, YUV to RGB conversion). All GPU-affecting
// work is submitted to its stream with [Context.RunAsync] or
// [Context.RunSync] and executes on a single goroutine in submission order:
// frame N's commands always run before frame N+1's, whichever goroutine
// submitted them.
//
// Construct one Context at startup and pass it to the pool users, graph
// operations, capture sources and recording sinks; close it at shutdown.
package processing
