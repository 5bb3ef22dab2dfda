package barcode

import (
	"bytes"
	"fmt"
	"image/png"

	symbology "github.com/boombuler/barcode"
	"github.com/boombuler/barcode/code128"
	"github.com/wareflow/wareflow-backend/pkg/errors"
)

const (
	DefaultLabelWidth  = 400
	DefaultLabelHeight = 120

	MaxLabelWidth  = 2000
	MaxLabelHeight = 600
)

// RenderLabel encodes code as a Code 128 symbol scaled to width x height PNG.
// Sizes above MaxLabelWidth x MaxLabelHeight are rejected.
func RenderLabel(code string, width, height int) ([]byte, error) {
	if width > MaxLabelWidth {
		return nil, errors.ValidationField("width", fmt.Sprintf("must be at most %d", MaxLabelWidth))
	}
	if height > MaxLabelHeight {
		return nil, errors.ValidationField("height", fmt.Sprintf("must be at most %d", MaxLabelHeight))
	}
	if width <= 0 {
		width = DefaultLabelWidth
	}
	if height <= 0 {
		height = DefaultLabelHeight
	}

	symbol, err := code128.Encode(code)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %q as code128: %w", code, err)
	}

	if natural := symbol.Bounds().Dx(); width < natural {
		width = natural
	}

	scaled, err := symbology.Scale(symbol, width, height)
	if err != nil {
		return nil, fmt.Errorf("failed to scale barcode: %w", err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, scaled); err != nil {
		return nil, fmt.Errorf("failed to encode png: %w", err)
	}
	return buf.Bytes(), nil
}
