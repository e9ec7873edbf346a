// Package retext translates the string constants of compiled code at
// runtime.
//
// Translations are declared in patch descriptors: each names a type, a
// method and a list of find/replace entries. An Engine resolves every
// declared method to the unit that actually holds its code, registers the
// entries for that unit and hands an Installer a transformation that
// rewrites the unit's string loads.
//
// Methods that return an iterator or a channel usually keep their strings
// in function literals, which the Go compiler emits as separate symbols.
// The resolver finds those by name ("Items.func1") and, failing that, by
// the shape of the enclosing method, and patches them instead.
//
// GoHost applies this to Go code in the running binary:
//
//	host := retext.DefaultHost()
//	host.Register(&Greeter{})
//	retext.Default().LoadAndApply(ctx, "Mods")
//
// Limitations:
//   - Code patching only works on linux/amd64
//   - Relies on internal Go APIs that can break at any time
//   - Inlined methods keep their original strings
//   - Generic types cannot be registered
//   - Only string constants loaded with a LEA and a length immediate are
//     found; strings the compiler stored in static data are not
//   - Replacement strings are never freed
package retext
