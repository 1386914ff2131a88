// Package schema holds the configuration schema registry: the embedded base
// schema plus one schema per installed extension, frozen by Finalize into a
// read-only Registry that validates values and lists leaf properties for
// CLI derivation.
package schema
