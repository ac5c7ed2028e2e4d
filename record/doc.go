// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

// Package record extracts graph output into externally owned pixel
// buffers for encoders.
//
// A Sink is a terminal graph node. While recording, every frame with a
// timestamp later than the previously accepted one is rendered through the
// swizzle program into a BGRA Buffer and handed to Config.OnBuffer as a
// Sample. Two paths exist:
//
//   - Zero-copy: one buffer from the pool is bound as a render target when
//     recording starts and reused for every frame. The sink waits for the
//     device to finish before handing it out.
//   - Read-back: a fresh buffer is taken from the pool per frame and the
//     rendered pixels are copied into it.
//
// StopRecording clears the recording flag on the processing stream and runs
// its completion after any frame already in flight has been handed out:
//
//	sink.StopRecording(func() {
//	    encoder.Finish()
//	})
package record
