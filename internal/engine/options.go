package engine

// Options configures the native binding selected at build time.
type Options struct {
	// SharedLibraryPath points at the native runtime library. Empty uses
	// the binding's default lookup.
	SharedLibraryPath string
}
