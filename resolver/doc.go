// Package resolver maps a declared (type, method) pair to the compiled unit
// that holds the method's code.
//
// Methods that produce lazy sequences or deferred results are usually
// compiled into a hidden type nested in the declaring type, and the strings
// the method uses live in that type's step method. The resolver finds such
// types first by name convention and then by capability, caches what it
// finds, and falls back to the declared method when nothing turns up.
//
// Discovery is strategy-major: each naming convention is tried against every
// nested type before the next convention, and the capability match runs
// only after all conventions have failed. A nested type matching an early
// convention therefore wins over one listed first that matches only a later
// convention or the capability.
//
// A synthesized type without a step method still resolves, with a nil
// Method. The resolver logs a warning and installing such a unit fails.
package resolver
