package primitives

import "errors"

// Sentinel errors forming the engine's error taxonomy. Every error
// surfaced by the engine wraps one of these with fmt.Errorf("...: %w", ...)
// so callers can discriminate with errors.Is.
var (
	// ErrSchema: unknown attribute set/get by name, out-of-range index.
	ErrSchema = errors.New("schema error")
	// ErrState: nested start_substep without end_substep, freeze during
	// an active substep, or any other illegal substep transition.
	ErrState = errors.New("state error")
	// ErrType: wrong Value variant for an operation.
	ErrType = errors.New("type error")
	// ErrUnit: incompatible units in add/sub/compare without force.
	ErrUnit = errors.New("unit error")
	// ErrMath: divide-by-zero, domain error on log/sqrt.
	ErrMath = errors.New("math error")
	// ErrResolution: unknown identifier, missing attribute in another entity.
	ErrResolution = errors.New("resolution error")
	// ErrContention: lock acquisition timeout.
	ErrContention = errors.New("contention error")
	// ErrIO: external resource I/O failure.
	ErrIO = errors.New("io error")
	// ErrData: external resource returned malformed data.
	ErrData = errors.New("data error")
	// ErrProgram: unknown function/op in a compiled action; a builder bug.
	ErrProgram = errors.New("program error")
	// ErrParse: malformed numeric text handed to the value factory.
	ErrParse = errors.New("parse error")
)
