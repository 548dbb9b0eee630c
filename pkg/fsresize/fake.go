package fsresize

// FakeResizer records calls for tests; failures are injected per method.
type FakeResizer struct {
	Calls    []string
	FailWith map[string]error
}

func NewFakeResizer() *FakeResizer {
	return &FakeResizer{FailWith: map[string]error{}}
}

var _ Resizer = &FakeResizer{}

func (f *FakeResizer) call(name string) error {
	f.Calls = append(f.Calls, name)
	return f.FailWith[name]
}

func (f *FakeResizer) Shrink(device string) error            { return f.call("Shrink") }
func (f *FakeResizer) Expand(device string) error            { return f.call("Expand") }
func (f *FakeResizer) RecoverSuperblock(device string) error { return f.call("RecoverSuperblock") }
