package backend_test

import (
	"errors"
	"slices"
	"testing"

	"github.com/gogpu/vidflow/backend"
	_ "github.com/gogpu/vidflow/backend/software"
	"github.com/gogpu/vidflow/gpucore"
)

func TestSoftwareRegistered(t *testing.T) {
	if !backend.IsRegistered(backend.BackendSoftware) {
		t.Fatal("software backend not registered on import")
	}
	if !slices.Contains(backend.Available(), backend.BackendSoftware) {
		t.Errorf("Available() = %v", backend.Available())
	}
	dev, err := backend.Open(backend.BackendSoftware)
	if err != nil {
		t.Fatal(err)
	}
	defer dev.Close()
}

func TestOpenUnknown(t *testing.T) {
	_, err := backend.Open("quantum")
	if !errors.Is(err, backend.ErrBackendNotAvailable) {
		t.Fatalf("Open(unknown) = %v, want ErrBackendNotAvailable", err)
	}
}

func TestDefaultSkipsFailingBackend(t *testing.T) {
	backend.Register(backend.BackendNative, func() (gpucore.Device, error) {
		return nil, errors.New("no adapter")
	})
	t.Cleanup(func() { backend.Unregister(backend.BackendNative) })

	dev, name, err := backend.Default()
	if err != nil {
		t.Fatalf("Default() = %v", err)
	}
	defer dev.Close()
	if name != backend.BackendSoftware {
		t.Errorf("Default() picked %q, want software fallback", name)
	}
}
