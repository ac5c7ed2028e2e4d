// Package vidflow is a real-time GPU image and video processing pipeline.
//
// # Overview
//
// Frames flow from a capture source through a graph of filter operations
// into one or more consumers, typically a recording sink that extracts the
// rendered result into externally owned pixel buffers:
//
//	camera -> capture.Source -> graph.Operation ... -> record.Sink
//
// All GPU work is funneled through a single [processing.Context], which
// executes submitted work in FIFO order on one goroutine. Frames are
// reference-counted [frame.Resource] values recycled by a [frame.Pool].
//
// # Packages
//
//   - gpucore: device contract shared by all backends
//   - backend/software, backend/native: CPU and wgpu HAL devices
//   - frame: frame resources, orientation, timestamps and the pool
//   - processing: the serialized GPU stream and built-in programs
//   - graph: sources, consumers, operations, groups
//   - filters: color, blur, edge and beautify operations
//   - capture: camera bridge with backpressure
//   - record: recording sink with timestamp de-duplication
//   - metrics: Prometheus instrumentation
//
// # Logging
//
// vidflow is silent by default. Call [SetLogger] to route diagnostics to a
// [log/slog] logger.
package vidflow

// Version is the library version reported by the vidflow tool.
const Version = "0.4.0"
