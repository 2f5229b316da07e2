// Package extract turns a host document into a ScanRequest.
//
// Extraction is an ordered chain of strategies. Each strategy is a pure
// read of the tree; the first one producing a sender, subject or body wins:
//
//  1. Strict: the known mock layout (.sender, .subject, .body)
//  2. Site: per-host CSS selectors from the configuration file
//  3. Generic: structural heuristics that work on most mail views
//
// Links are every http(s) anchor address in document order without
// duplicates.
package extract
