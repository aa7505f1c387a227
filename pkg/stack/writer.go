package stack

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	"rockct3d/internal/models"
)

// TIFF field types and tags written by encodePages
const (
	typeShort = 3
	typeLong  = 4

	tagNewSubfileType  = 254
	tagImageWidth      = 256
	tagImageLength     = 257
	tagBitsPerSample   = 258
	tagCompression     = 259
	tagPhotometric     = 262
	tagStripOffsets    = 273
	tagSamplesPerPixel = 277
	tagRowsPerStrip    = 278
	tagStripByteCounts = 279
	tagPlanarConfig    = 284
	tagPageNumber      = 297

	subfilePage    = 2
	blackIsZero    = 1
	noCompression  = 1
	chunkyPlanar   = 1
	ifdEntryCount  = 12
	ifdLen         = 2 + ifdEntryCount*ifdEntryLen + 4
	maxClassicTIFF = math.MaxUint32
)

type ifdEntry struct {
	tag, typ uint16
	count    uint32
	value    uint32
}

// encodePages writes width x height 8-bit gray pages as an uncompressed
// little-endian TIFF. Each page is stored as one strip followed by its IFD.
func encodePages(w io.Writer, pages [][]byte, width, height int) error {
	if len(pages) == 0 {
		return ErrNoPages
	}
	if len(pages) > math.MaxUint16 {
		return fmt.Errorf("tiff: %d pages exceed the PageNumber range", len(pages))
	}
	stripLen := width * height
	padded := stripLen + stripLen%2
	if total := int64(tiffHeaderLen) + int64(len(pages))*int64(padded+ifdLen); total > maxClassicTIFF {
		return fmt.Errorf("tiff: %d bytes exceed the classic TIFF limit", total)
	}

	bw := bufio.NewWriter(w)
	le := binary.LittleEndian

	header := []byte{'I', 'I', 42, 0, 0, 0, 0, 0}
	le.PutUint32(header[4:], uint32(tiffHeaderLen+padded))
	if _, err := bw.Write(header); err != nil {
		return err
	}

	offset := uint32(tiffHeaderLen)
	for i, page := range pages {
		if len(page) != stripLen {
			return fmt.Errorf("%w: page %d has %d bytes, expected %d", ErrShapeMismatch, i, len(page), stripLen)
		}
		stripOffset := offset
		if _, err := bw.Write(page); err != nil {
			return err
		}
		if padded != stripLen {
			if err := bw.WriteByte(0); err != nil {
				return err
			}
		}
		ifdOffset := stripOffset + uint32(padded)

		var next uint32
		if i < len(pages)-1 {
			next = ifdOffset + ifdLen + uint32(padded)
		}

		entries := []ifdEntry{
			{tagNewSubfileType, typeLong, 1, subfilePage},
			{tagImageWidth, typeLong, 1, uint32(width)},
			{tagImageLength, typeLong, 1, uint32(height)},
			{tagBitsPerSample, typeShort, 1, 8},
			{tagCompression, typeShort, 1, noCompression},
			{tagPhotometric, typeShort, 1, blackIsZero},
			{tagStripOffsets, typeLong, 1, stripOffset},
			{tagSamplesPerPixel, typeShort, 1, 1},
			{tagRowsPerStrip, typeLong, 1, uint32(height)},
			{tagStripByteCounts, typeLong, 1, uint32(stripLen)},
			{tagPlanarConfig, typeShort, 1, chunkyPlanar},
			// two SHORTs packed into the value field: page index, page count
			{tagPageNumber, typeShort, 2, uint32(i) | uint32(len(pages))<<16},
		}

		buf := make([]byte, ifdLen)
		le.PutUint16(buf[0:], uint16(len(entries)))
		for j, e := range entries {
			at := 2 + j*ifdEntryLen
			le.PutUint16(buf[at:], e.tag)
			le.PutUint16(buf[at+2:], e.typ)
			le.PutUint32(buf[at+4:], e.count)
			le.PutUint32(buf[at+8:], e.value)
		}
		le.PutUint32(buf[ifdLen-4:], next)
		if _, err := bw.Write(buf); err != nil {
			return err
		}

		offset = ifdOffset + ifdLen
	}

	return bw.Flush()
}

// EncodeMask writes m as an 8-bit multi-page TIFF with one page per depth
// index. Set voxels are 255, the rest 0.
func EncodeMask(w io.Writer, m *models.Mask) error {
	plane := m.Width * m.Height
	pages := make([][]byte, m.Depth)
	for z := range pages {
		page := make([]byte, plane)
		for i, on := range m.Data[z*plane : (z+1)*plane] {
			if on {
				page[i] = 255
			}
		}
		pages[z] = page
	}
	return encodePages(w, pages, m.Width, m.Height)
}

// EncodeVolume writes v as an 8-bit multi-page TIFF. Values are clipped to
// [0,255] and rounded half to even.
func EncodeVolume(w io.Writer, v *models.Volume) error {
	plane := v.Width * v.Height
	pages := make([][]byte, v.Depth)
	for z := range pages {
		page := make([]byte, plane)
		for i, val := range v.Data[z*plane : (z+1)*plane] {
			page[i] = uint8(math.RoundToEven(math.Max(0, math.Min(255, val))))
		}
		pages[z] = page
	}
	return encodePages(w, pages, v.Width, v.Height)
}

// WriteMask writes m to path, creating parent directories as needed
func WriteMask(path string, m *models.Mask) error {
	return writeFile(path, func(w io.Writer) error { return EncodeMask(w, m) })
}

// WriteVolume writes v to path, creating parent directories as needed
func WriteVolume(path string, v *models.Volume) error {
	return writeFile(path, func(w io.Writer) error { return EncodeVolume(w, v) })
}

func writeFile(path string, encode func(io.Writer) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := encode(f); err != nil {
		f.Close()
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	return f.Close()
}
