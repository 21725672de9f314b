// Package render defines the backend-agnostic renderer contract.
//
// A backend registers a factory under a name (see Register) and applications
// obtain a concrete Renderer through New. All GPU semantics live behind the
// Renderer interface; the types in this package are plain descriptions of
// geometry, textures and draw state shared by every backend.
package render
