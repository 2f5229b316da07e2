package bus

// ProbeReply answers a probe.
type ProbeReply struct {
	Ready bool `json:"ready"`
}

// Ack acknowledges a trigger-scan request. Error is set when the page agent
// refused the request.
type Ack struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// Drag carries a pointer delta of a header drag gesture.
type Drag struct {
	DX float64 `json:"dx"`
	DY float64 `json:"dy"`
}
