package misc

// StageError is implemented by ir.Error and by the error src/compiler wraps
// around every failing pass, so cmd/pumac can map a failure back to the
// pipeline stage that raised it without inspecting error text.
type StageError interface {
	error
	Stage() string
	Entity() string
}
