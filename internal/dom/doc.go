// Package dom provides the host document the page agent lives in.
//
// A Document wraps a golang.org/x/net/html tree together with the URL it was
// loaded from. Every structural change, whether made by the page agent or
// by a reload of the backing file, is announced to observers as a Mutation.
// Observers recompute derived state from these notifications instead of
// re-reading the tree on demand.
//
// The package also holds the tree helpers shared by extraction and result
// highlighting: CSS selector queries (github.com/andybalholm/cascadia),
// visible-text collection, class manipulation and text-node wrapping.
package dom
