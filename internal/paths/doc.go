// Package paths converts between the placeholder path convention used by
// form authors (items.$.total) and the concrete, indexed paths used at
// runtime (items.2.total), and provides the segment algebra the derivation
// index needs.
//
// Placeholder matching is purely syntactic: a segment equal to "$" is a
// placeholder. A form field literally named "$" cannot be distinguished
// from one and is treated as a placeholder. This is a known limitation.
package paths
