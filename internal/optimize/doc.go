// Package optimize rewrites HTML documents with a fixed set of loading
// mitigations aimed at LCP, INP and CLS.
//
// The Controller is open-loop and separate from measurement: it never reads
// metrics. Per document it injects critical-resource preloads, defers
// non-critical stylesheets with the media=print swap, adds loading hints to
// images, sizes unsized media, reserves space for late-loading slots, gates
// third-party scripts behind interaction, idle or visibility triggers, and
// installs a cooperative-yield helper plus passive scroll/touch/wheel
// listeners. A marker meta tag keeps a document from being processed twice.
//
// The collector mounts it as ModifyResponse on its reverse proxy.
package optimize
