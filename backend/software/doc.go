// Package software provides a CPU implementation of gpucore.Device.
//
// Textures live in host memory and draws run the program kernels through
// gpucore.Execute. The device is the reference backend for tests and for
// hosts without a GPU. Importing the package registers it with the backend
// registry under the name "software".
//
// The zero-copy capability can be switched off with WithTextureCache(false)
// so that callers exercise their upload and read-back paths.
package software
