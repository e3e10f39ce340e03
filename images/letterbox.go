package images

import (
	"github.com/chewxy/math32"
	"github.com/pkg/errors"
)

// Letterbox describes how a source frame was fitted into a fixed model input: a uniform scale
// followed by symmetric padding on the shorter side.
//
// One Letterbox is computed per frame and must be shared by the padding step and the decoder;
// decoding with values from a different frame produces misplaced boxes.
type Letterbox struct {
	// Ratio is min(targetW/sourceW, targetH/sourceH).
	Ratio float32
	// PadX is the left padding in target pixels.
	PadX float32
	// PadY is the top padding in target pixels.
	PadY float32
	// ScaledWidth is floor(Ratio*SourceWidth).
	ScaledWidth int
	// ScaledHeight is floor(Ratio*SourceHeight).
	ScaledHeight int
	// SourceWidth is the original frame width.
	SourceWidth int
	// SourceHeight is the original frame height.
	SourceHeight int
	// TargetWidth is the model input width.
	TargetWidth int
	// TargetHeight is the model input height.
	TargetHeight int
}

// ComputeLetterbox computes the aspect-preserving resize ratio and padding that fit a
// sourceW x sourceH frame into a targetW x targetH canvas.
//
// Arguments:
//   - sourceW, sourceH: The original frame size.
//   - targetW, targetH: The model input size.
//
// Returns:
//   - Letterbox: The per-frame geometry.
//   - error: ErrInvalidDimensions (wrapped) if any dimension is not positive.
func ComputeLetterbox(sourceW, sourceH, targetW, targetH int) (Letterbox, error) {
	if sourceW <= 0 || sourceH <= 0 {
		return Letterbox{}, errors.Wrapf(ErrInvalidDimensions, "source size %dx%d", sourceW, sourceH)
	}
	if targetW <= 0 || targetH <= 0 {
		return Letterbox{}, errors.Wrapf(ErrInvalidDimensions, "target size %dx%d", targetW, targetH)
	}

	ratio := math32.Min(float32(targetW)/float32(sourceW), float32(targetH)/float32(sourceH))
	nw := int(math32.Floor(ratio * float32(sourceW)))
	nh := int(math32.Floor(ratio * float32(sourceH)))

	return Letterbox{
		Ratio:        ratio,
		PadX:         math32.Floor(float32(targetW-nw) / 2),
		PadY:         math32.Floor(float32(targetH-nh) / 2),
		ScaledWidth:  nw,
		ScaledHeight: nh,
		SourceWidth:  sourceW,
		SourceHeight: sourceH,
		TargetWidth:  targetW,
		TargetHeight: targetH,
	}, nil
}

// ToSource maps a point in padded model-input space back to original frame pixels.
func (l Letterbox) ToSource(x, y float32) (float32, float32) {
	return (x - l.PadX) / l.Ratio, (y - l.PadY) / l.Ratio
}

// ToTarget maps a point in original frame pixels into padded model-input space.
func (l Letterbox) ToTarget(x, y float32) (float32, float32) {
	return x*l.Ratio + l.PadX, y*l.Ratio + l.PadY
}
