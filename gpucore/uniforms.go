package gpucore

// Uniforms holds named uniform values. Scalars are stored as one-element
// vectors; matrices are stored column-major.
type Uniforms map[string][]float32

// Set stores a copy of v under name.
func (u Uniforms) Set(name string, v ...float32) {
	u[name] = append([]float32(nil), v...)
}

// SetFloat stores a scalar.
func (u Uniforms) SetFloat(name string, v float32) {
	u[name] = []float32{v}
}

// Get returns the value stored under name.
func (u Uniforms) Get(name string) ([]float32, bool) {
	v, ok := u[name]
	return v, ok
}

// Float returns the first component of name, or def when it is not set.
func (u Uniforms) Float(name string, def float32) float32 {
	if v, ok := u[name]; ok && len(v) > 0 {
		return v[0]
	}
	return def
}

// Clone returns a deep copy. Cloning a nil map returns an empty map.
func (u Uniforms) Clone() Uniforms {
	out := make(Uniforms, len(u))
	for k, v := range u {
		out[k] = append([]float32(nil), v...)
	}
	return out
}
