// Package apis holds the types shared by the retext engine components: unit
// identifiers, translation entries, resolved units, the type-descriptor seam
// that host bindings implement, and the error taxonomy.
package apis
