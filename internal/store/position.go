package store

import (
	"context"

	"github.com/nao1215/campusshield/internal/model"
)

// positionKeyPrefix namespaces panel positions in the KV table.
const positionKeyPrefix = "panelPosition:"

// PositionStore persists the result panel position per page origin.
type PositionStore struct {
	kv KV
}

// NewPositionStore creates a PositionStore on top of kv.
func NewPositionStore(kv KV) *PositionStore {
	return &PositionStore{kv: kv}
}

// Load returns the stored position for origin and whether one was stored.
// A missing or unreadable entry yields model.DefaultPanelPosition. The
// error is returned alongside so callers can log it.
func (p *PositionStore) Load(ctx context.Context, origin string) (model.PanelPosition, bool, error) {
	raw, ok, err := p.kv.Get(ctx, positionKeyPrefix+origin)
	if err != nil || !ok {
		return model.DefaultPanelPosition, false, err
	}
	pos, err := model.DecodePanelPosition(raw)
	if err != nil {
		return model.DefaultPanelPosition, false, err
	}
	return pos, true, nil
}

// Save stores pos for origin, replacing any previous value.
func (p *PositionStore) Save(ctx context.Context, origin string, pos model.PanelPosition) error {
	raw, err := pos.Encode()
	if err != nil {
		return err
	}
	return p.kv.Set(ctx, positionKeyPrefix+origin, raw)
}
