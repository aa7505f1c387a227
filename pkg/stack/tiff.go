// Package stack reads and writes grayscale volumes stored as multi-page TIFF
// files or as directories of numbered 2D slices, locally or remotely.
package stack

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"

	"golang.org/x/image/tiff"

	"rockct3d/internal/models"
)

var (
	// ErrNoPages is returned when a stack holds no image
	ErrNoPages = errors.New("stack: no pages")
	// ErrShapeMismatch is returned when pages or slices differ in size
	ErrShapeMismatch = errors.New("stack: page dimensions differ")
)

const (
	tiffHeaderLen = 8
	ifdEntryLen   = 12
	maxPages      = 1 << 16
)

// pageOffsets walks the IFD chain of a classic TIFF file and returns the
// offset of every directory in file order
func pageOffsets(data []byte) (binary.ByteOrder, []uint32, error) {
	if len(data) < tiffHeaderLen {
		return nil, nil, fmt.Errorf("tiff: file too short (%d bytes)", len(data))
	}

	var order binary.ByteOrder
	switch string(data[:2]) {
	case "II":
		order = binary.LittleEndian
	case "MM":
		order = binary.BigEndian
	default:
		return nil, nil, fmt.Errorf("tiff: bad byte order marker %q", data[:2])
	}
	if magic := order.Uint16(data[2:4]); magic != 42 {
		return nil, nil, fmt.Errorf("tiff: unsupported magic %d", magic)
	}

	var offsets []uint32
	seen := make(map[uint32]bool)
	off := order.Uint32(data[4:8])
	for off != 0 {
		if seen[off] {
			return nil, nil, fmt.Errorf("tiff: IFD loop at offset %d", off)
		}
		if int(off)+2 > len(data) {
			return nil, nil, fmt.Errorf("tiff: IFD offset %d beyond end of file", off)
		}
		seen[off] = true
		offsets = append(offsets, off)
		if len(offsets) > maxPages {
			return nil, nil, fmt.Errorf("tiff: more than %d pages", maxPages)
		}

		n := int(order.Uint16(data[off : off+2]))
		next := int(off) + 2 + n*ifdEntryLen
		if next+4 > len(data) {
			return nil, nil, fmt.Errorf("tiff: truncated IFD at offset %d", off)
		}
		off = order.Uint32(data[next : next+4])
	}
	return order, offsets, nil
}

// pageReader presents the file to the single-image decoder as if the IFD at
// ifd were the first one
type pageReader struct {
	data  []byte
	order binary.ByteOrder
	ifd   uint32
	pos   int64
}

func (p *pageReader) ReadAt(b []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("tiff: negative offset %d", off)
	}
	if off >= int64(len(p.data)) {
		return 0, io.EOF
	}
	n := copy(b, p.data[off:])

	// patch the first-IFD pointer where it overlaps the request
	var ptr [4]byte
	p.order.PutUint32(ptr[:], p.ifd)
	for i := 0; i < 4; i++ {
		at := int64(4+i) - off
		if at >= 0 && at < int64(n) {
			b[at] = ptr[i]
		}
	}

	if n < len(b) {
		return n, io.EOF
	}
	return n, nil
}

func (p *pageReader) Read(b []byte) (int, error) {
	n, err := p.ReadAt(b, p.pos)
	p.pos += int64(n)
	return n, err
}

// Decode reads every page of a TIFF stack into a volume with one depth index
// per page. DICOM files give one page per pixel frame. Other data that is not
// TIFF is decoded as a single 2D image.
func Decode(data []byte) (*models.Volume, error) {
	if isDICOM(data) {
		pages, err := decodeDICOM(data)
		if err != nil {
			return nil, err
		}
		return fromImages(pages)
	}

	order, offsets, err := pageOffsets(data)
	if err != nil {
		img, _, ierr := image.Decode(bytes.NewReader(data))
		if ierr != nil {
			return nil, fmt.Errorf("decoding stack: %w", err)
		}
		return fromImages([]image.Image{img})
	}
	if len(offsets) == 0 {
		return nil, ErrNoPages
	}

	pages := make([]image.Image, 0, len(offsets))
	for i, off := range offsets {
		img, err := tiff.Decode(&pageReader{data: data, order: order, ifd: off})
		if err != nil {
			return nil, fmt.Errorf("decoding page %d: %w", i, err)
		}
		pages = append(pages, img)
	}
	return fromImages(pages)
}

// fromImages stacks equally sized images along depth. The sample type of the
// first page decides DType; colour pages are reduced to luminance.
func fromImages(pages []image.Image) (*models.Volume, error) {
	if len(pages) == 0 {
		return nil, ErrNoPages
	}

	b := pages[0].Bounds()
	width, height := b.Dx(), b.Dy()
	v := models.NewVolume(width, height, len(pages))

	switch pages[0].(type) {
	case *image.Gray16:
		v.DType = "uint16"
	default:
		v.DType = "uint8"
	}

	for z, img := range pages {
		pb := img.Bounds()
		if pb.Dx() != width || pb.Dy() != height {
			return nil, fmt.Errorf("%w: page %d is %dx%d, expected %dx%d",
				ErrShapeMismatch, z, pb.Dx(), pb.Dy(), width, height)
		}
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				v.Set(x, y, z, sample(img, pb.Min.X+x, pb.Min.Y+y, v.DType))
			}
		}
	}
	return v, nil
}

func sample(img image.Image, x, y int, dtype string) float64 {
	switch im := img.(type) {
	case *image.Gray:
		return float64(im.GrayAt(x, y).Y)
	case *image.Gray16:
		y16 := im.Gray16At(x, y).Y
		if dtype == "uint8" {
			return float64(y16 >> 8)
		}
		return float64(y16)
	}
	if dtype == "uint16" {
		return float64(color.Gray16Model.Convert(img.At(x, y)).(color.Gray16).Y)
	}
	return float64(color.GrayModel.Convert(img.At(x, y)).(color.Gray).Y)
}
