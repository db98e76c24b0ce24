package sandbox

import _ "embed"

// bootstrapSource shadows forbidden globals inside a fresh goja.Runtime.
// Embedded so the binary stays self-contained, in the same spirit as
// executor.EmbeddedVersion's bundle embedding: the bundle travels with
// the binary rather than being read from disk at startup.
//
//go:embed bundle/bootstrap.js
var bootstrapSource string

// preludeSource wires $state/$emit/$view/$ext/$log onto the flat host
// primitives installed by bindHostFunctions. Run once per invocation,
// immediately after bootstrapSource.
//
//go:embed bundle/prelude.js
var preludeSource string
