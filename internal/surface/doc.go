// Package surface implements the isolated result panel.
//
// The panel is driven only by inbound messages and holds a small state
// machine:
//
//	Idle ──scan-start──▶ Scanning ──scan-result──▶ Result
//	  │                     │  ▲                      │
//	  │                     └──┼──scan-error──▶ Error │
//	  └──scan-result/error─────┘◀────scan-start───────┘
//
// Idle is never re-entered after the first start. A terminal message that
// overtakes its start message moves the panel straight to Result or Error,
// and a stray start after a terminal message begins a new cycle.
//
// Rendering is the pure function Render(state, layout). The panel never
// positions or destroys itself: drags are forwarded to the page agent as
// deltas and the close and dismiss controls ask the page agent to remove it.
package surface
