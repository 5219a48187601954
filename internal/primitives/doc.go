// Package primitives provides the foundational, immutable data types shared
// by every tier of the Josh substep engine: tagged Values with Units,
// the Geometry abstraction, and the declarative EventKey / EventHandler
// vocabulary that entity declarations are built from.
//
// Nothing in this package holds a lock or mutates shared state after
// construction; mutability lives in internal/core.
package primitives
