// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

// Package graph wires operations into a directed processing graph.
//
// A node is a Source (it has Targets), a Consumer (it has numbered input
// slots and a Deliver entry point), or both. Edges are declared
// explicitly:
//
//	graph.Connect(camera, blur)          // lowest free slot
//	graph.ConnectAt(blur, blend, 1)      // explicit slot
//	graph.Chain(camera, []graph.Node{blur, sharpen}, sink)
//
// Ownership follows the frames: Deliver hands the consumer one reference
// that it must eventually release, and Targets.Push locks the resource
// once per target before dropping the producer's own hold.
//
// Delivery and firing are expected to run on the processing stream of the
// context the operations were built with. Producers such as the capture
// source submit their pushes there.
package graph
