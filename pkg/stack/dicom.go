package stack

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/dicomtag"
	"github.com/suyashkumar/dicom/element"
)

// dicmOffset is where the "DICM" magic sits after the 128 byte preamble
const dicmOffset = 128

func isDICOM(data []byte) bool {
	return len(data) >= dicmOffset+4 && bytes.Equal(data[dicmOffset:dicmOffset+4], []byte("DICM"))
}

// decodeDICOM returns every native pixel frame of a DICOM file as a 16-bit
// page. Stored values are clipped to [0, 65535]. Parser panics on malformed
// input are returned as errors.
func decodeDICOM(data []byte) (pages []image.Image, err error) {
	defer func() {
		if panicErr := recover(); panicErr != nil {
			pages, err = nil, fmt.Errorf("parsing dicom: %v", panicErr)
		}
	}()

	p, err := dicom.NewParserFromBytes(data, nil)
	if err != nil {
		return nil, fmt.Errorf("parsing dicom: %w", err)
	}
	parsed, err := p.Parse(dicom.ParseOptions{DropPixelData: false})
	if parsed == nil || err != nil {
		return nil, fmt.Errorf("parsing dicom: %v", err)
	}

	for _, elem := range parsed.Elements {
		if elem.Tag != dicomtag.PixelData || len(elem.Value) == 0 {
			continue
		}
		info, ok := elem.Value[0].(element.PixelDataInfo)
		if !ok {
			return nil, fmt.Errorf("unexpected pixel data type %T", elem.Value[0])
		}
		for i, frame := range info.Frames {
			if frame.IsEncapsulated() {
				return nil, fmt.Errorf("frame %d is encapsulated, only native pixel data is supported", i)
			}
			nd := frame.NativeData
			img := image.NewGray16(image.Rect(0, 0, nd.Cols, nd.Rows))
			for j := 0; j < len(nd.Data) && j < nd.Cols*nd.Rows; j++ {
				val := math.Min(math.Max(float64(nd.Data[j][0]), 0), math.MaxUint16)
				img.SetGray16(j%nd.Cols, j/nd.Cols, color.Gray16{Y: uint16(val)})
			}
			pages = append(pages, img)
		}
	}
	if len(pages) == 0 {
		return nil, fmt.Errorf("%w: dicom file holds no pixel data", ErrNoPages)
	}
	return pages, nil
}
