package relay

import (
	"context"

	"github.com/nao1215/campusshield/internal/bus"
	"github.com/nao1215/campusshield/internal/model"
)

// Endpoint returns the relay's message endpoint. It answers every
// scan-request with exactly one ScanResult.
func (r *Relay) Endpoint(opts ...bus.EndpointOption) *bus.Endpoint {
	var ep *bus.Endpoint
	ep = bus.NewEndpoint(bus.NameRelay, func(ctx context.Context, msg bus.Message, rep *bus.Replier) {
		if msg.Kind != bus.KindScanRequest {
			r.logger.Warn("relay ignored message", "kind", string(msg.Kind))
			return
		}

		req, err := model.DecodeScanRequest(msg.Payload)
		if err != nil {
			_ = rep.Reply(model.ErrorResult(err))
			return
		}

		r.Start(ctx, req, func(result model.ScanResult) {
			// The reply is produced on the relay loop; if the loop is gone the
			// requester observes the closed channel instead.
			_ = ep.Post(func(context.Context) {
				_ = rep.Reply(result)
			})
		})
	}, opts...)
	return ep
}
