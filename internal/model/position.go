package model

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// PanelPosition is the on-screen location of the result panel, measured
// from the top and right edges of the viewport in CSS pixels.
type PanelPosition struct {
	Top   float64
	Right float64
}

// DefaultPanelPosition is used when nothing has been persisted for a page.
var DefaultPanelPosition = PanelPosition{Top: 20, Right: 20}

// Viewport is the size of the visible document area.
type Viewport struct {
	Width  float64 `yaml:"width"`
	Height float64 `yaml:"height"`
}

// Size is the rendered size of the result panel.
type Size struct {
	Width  float64 `yaml:"width"`
	Height float64 `yaml:"height"`
}

// storedPosition is the persisted schema: {top: string, right: string}.
type storedPosition struct {
	Top   string `json:"top"`
	Right string `json:"right"`
}

// Move returns the position after a pointer delta. A pointer moving right
// brings the panel closer to the right edge, so Right decreases.
func (p PanelPosition) Move(dx, dy float64) PanelPosition {
	return PanelPosition{Top: p.Top + dy, Right: p.Right - dx}
}

// Clamp keeps the panel fully inside the viewport:
// both coordinates end up in [0, viewport_dimension - panel_dimension].
func (p PanelPosition) Clamp(viewport Viewport, panel Size) PanelPosition {
	return PanelPosition{
		Top:   clamp(p.Top, 0, math.Max(0, viewport.Height-panel.Height)),
		Right: clamp(p.Right, 0, math.Max(0, viewport.Width-panel.Width)),
	}
}

// Style renders the position as an inline CSS declaration.
func (p PanelPosition) Style() string {
	return "top:" + px(p.Top) + ";right:" + px(p.Right)
}

// Encode serializes the position using the persisted schema.
func (p PanelPosition) Encode() (string, error) {
	data, err := json.Marshal(storedPosition{Top: px(p.Top), Right: px(p.Right)})
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// DecodePanelPosition parses a persisted position.
func DecodePanelPosition(s string) (PanelPosition, error) {
	var sp storedPosition
	if err := json.Unmarshal([]byte(s), &sp); err != nil {
		return PanelPosition{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	top, err := parsePx(sp.Top)
	if err != nil {
		return PanelPosition{}, err
	}
	right, err := parsePx(sp.Right)
	if err != nil {
		return PanelPosition{}, err
	}
	return PanelPosition{Top: top, Right: right}, nil
}

func px(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64) + "px"
}

func parsePx(s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(s), "px"), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid distance %q", ErrValidation, s)
	}
	return v, nil
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}
