// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

// Package capture turns camera frames into graph input.
//
// A Camera delivers raw frames on its own goroutine and cadence. Source
// admits at most one frame at a time: while a frame is being converted
// every new delivery is dropped immediately, which is the pipeline's only
// flow control against a graph slower than the camera. Admitted frames are
// uploaded (or wrapped without copying when the device supports it),
// converted from NV12 to RGB when needed, stamped with their presentation
// time and pushed to the source's targets on the processing stream.
//
// Picture is a still image source for tests and previews.
package capture
