// Package filters provides ready-made graph operations: color matrix
// adjustments, a bilateral blur, Sobel edge detection and the Beautify
// skin smoothing group built from them.
//
// Every constructor builds its program through the processing context and
// fails with processing.ErrProgramBuild when the program cannot be built.
// Programs are cached by label, so many instances of one filter share a
// program and differ only in their uniforms.
package filters
