// Package policy evaluates authorization decisions with an embedded Open Policy
// Agent engine. The bundled Rego module maps every public operation to the
// capability its caller must hold; operations absent from the table are
// denied.
//
// The package knows nothing about storage: callers resolve the caller's
// capabilities and pass them in the Input.
package policy
