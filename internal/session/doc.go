// Package session is the hosting environment of one document.
//
// A Session owns the message hub, the document, the relay and the stores.
// It runs the relay from the start and activates the page agent lazily,
// when a trigger sends an activate message. Activation is idempotent: at
// most one page agent is ever resident in the document.
package session
