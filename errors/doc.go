// Package errors provides structured error types for the featurize module.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// The Error type carries the feature path, the Go and wire type names, and a cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseCompile, errors.KindTypeMismatch).
//		Path("user", "age").
//		GoType("chan int").
//		Detail("channels cannot be emitted as features").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.TypeMismatch(errors.PhaseCompile, path, "complex128", "number")
//	err := errors.Extraction(path, cause)
//
// Schema errors are raised while a serializer is compiled and prevent its construction.
// Extraction errors are raised per call and name the feature that failed:
//
//	errors.IsSchema(err)     // compile or discover phase, or an unsupported label
//	errors.IsExtraction(err) // serialize phase, extraction kind
//
// All errors implement the standard error interface and support errors.Is/As.
package errors
