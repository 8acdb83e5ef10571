package raster

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/mstgis/geodata"
)

// TIFF header magic values.
const (
	byteOrderLittle   = 0x4949 // "II"
	byteOrderBig      = 0x4D4D // "MM"
	tiffIdentifier    = 42
	bigTiffIdentifier = 43
	bigTiffBytesize   = 8
)

type tiffTag uint16

// Tags needed to materialize a georeferenced single-band grid.
const (
	tagImageWidth      tiffTag = 256
	tagImageLength     tiffTag = 257
	tagBitsPerSample   tiffTag = 258
	tagCompression     tiffTag = 259
	tagStripOffsets    tiffTag = 273
	tagSamplesPerPixel tiffTag = 277
	tagRowsPerStrip    tiffTag = 278
	tagStripByteCounts tiffTag = 279
	tagPredictor       tiffTag = 317
	tagTileWidth       tiffTag = 322
	tagTileLength      tiffTag = 323
	tagTileOffsets     tiffTag = 324
	tagTileByteCounts  tiffTag = 325
	tagSampleFormat    tiffTag = 339
	tagModelPixelScale tiffTag = 33550
	tagModelTiepoint   tiffTag = 33922
	tagGeoKeyDirectory tiffTag = 34735
	tagGDALNoData      tiffTag = 42113
)

// GeoKey ids carrying the EPSG code.
const (
	geoKeyGeographicType  = 2048
	geoKeyProjectedCSType = 3072
	geoKeyUserDefined     = 32767
)

const (
	compressionNone    = 1
	compressionDeflate = 8
	compressionZlibOld = 32946

	sampleFormatUint  = 1
	sampleFormatInt   = 2
	sampleFormatFloat = 3

	predictorNone       = 1
	predictorHorizontal = 2
)

// fieldTypeSize is the size in bytes of each TIFF field type; 0 marks types
// this loader does not interpret.
var fieldTypeSize = [...]uint64{
	0, 1, 1, 2, 4, 8, 1, 1, 2, 4, 8, 4, 8, 0, 0, 0, 8, 8, 8,
}

const (
	ftByte   = 1
	ftASCII  = 2
	ftShort  = 3
	ftLong   = 4
	ftFloat  = 11
	ftDouble = 12
	ftLong8  = 16
	ftIFD8   = 18
)

// tagValue is a parsed tag in whichever representation its field type uses.
type tagValue struct {
	ftype   uint16
	uints   []uint64
	doubles []float64
	ascii   string
}

// LoadGeoTIFF opens a GeoTIFF or BigTIFF raster and reads its full pixel
// grid into memory. Strip and tile organizations are supported, uncompressed
// or DEFLATE, with 8/16/32-bit integer and 32/64-bit float samples. The
// file is opened and read once; the returned Grid needs no further I/O.
func LoadGeoTIFF(path string) (*Grid, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", geodata.ErrRasterUnavailable, err)
	}
	defer f.Close()
	g, err := readGeoTIFF(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", geodata.ErrRasterUnavailable, path, err)
	}
	return g, nil
}

type readAtSeeker interface {
	io.ReadSeeker
	io.ReaderAt
}

func readGeoTIFF(r readAtSeeker) (*Grid, error) {
	tags, order, err := readTags(r)
	if err != nil {
		return nil, err
	}

	width, ok := tagUint(tags, tagImageWidth)
	if !ok {
		return nil, fmt.Errorf("missing tag ImageWidth")
	}
	height, ok := tagUint(tags, tagImageLength)
	if !ok {
		return nil, fmt.Errorf("missing tag ImageLength")
	}
	if spp, ok := tagUint(tags, tagSamplesPerPixel); ok && spp != 1 {
		return nil, fmt.Errorf("unsupported band count %d, want single-band", spp)
	}

	bits := uint16(32)
	if v, ok := tagUint(tags, tagBitsPerSample); ok {
		bits = uint16(v)
	}
	format := uint16(sampleFormatUint) // TIFF default
	if v, ok := tagUint(tags, tagSampleFormat); ok {
		format = uint16(v)
	}
	compression := uint16(compressionNone)
	if v, ok := tagUint(tags, tagCompression); ok {
		compression = uint16(v)
	}
	predictor := uint16(predictorNone)
	if v, ok := tagUint(tags, tagPredictor); ok {
		predictor = uint16(v)
	}

	transform, err := geoTransform(tags)
	if err != nil {
		return nil, err
	}

	grid := &Grid{
		Width:     int(width),
		Height:    int(height),
		Data:      make([]float64, width*height),
		Transform: transform,
		CRS:       geoKeyCRS(tags),
	}
	if nd, ok := tags[tagGDALNoData]; ok {
		s := strings.TrimSpace(strings.Trim(nd.ascii, "\x00"))
		if v, err := strconv.ParseFloat(s, 64); err == nil {
			grid.NoData = v
			grid.HasNoData = true
		}
	}

	dec := sampleDecoder{order: order, bits: bits, format: format, predictor: predictor}
	if _, tiled := tags[tagTileOffsets]; tiled {
		err = readTiles(r, tags, grid, dec, compression)
	} else {
		err = readStrips(r, tags, grid, dec, compression)
	}
	if err != nil {
		return nil, err
	}
	return grid, nil
}

// geoTransform derives the affine transform from ModelPixelScale and
// ModelTiepoint; a raster missing either is not georeferenced.
func geoTransform(tags map[tiffTag]tagValue) (Affine, error) {
	scale, ok := tags[tagModelPixelScale]
	if !ok || len(scale.doubles) < 2 {
		return Affine{}, fmt.Errorf("not georeferenced: missing ModelPixelScale")
	}
	tie, ok := tags[tagModelTiepoint]
	if !ok || len(tie.doubles) < 6 {
		return Affine{}, fmt.Errorf("not georeferenced: missing ModelTiepoint")
	}
	scaleX, scaleY := scale.doubles[0], scale.doubles[1]
	if scaleX == 0 || scaleY == 0 {
		return Affine{}, fmt.Errorf("not georeferenced: zero pixel scale")
	}
	// North-up convention: grid rows advance toward decreasing Y.
	if scaleY > 0 {
		scaleY = -scaleY
	}
	tieI, tieJ := tie.doubles[0], tie.doubles[1]
	tieX, tieY := tie.doubles[3], tie.doubles[4]
	return Affine{
		A: scaleX,
		C: tieX - tieI*scaleX,
		E: scaleY,
		F: tieY - tieJ*scaleY,
	}, nil
}

// geoKeyCRS extracts the EPSG code from the GeoKey directory, preferring the
// projected CS key over the geographic one.
func geoKeyCRS(tags map[tiffTag]tagValue) geodata.CRS {
	dir, ok := tags[tagGeoKeyDirectory]
	if !ok || len(dir.uints) < 4 {
		return geodata.CRS{}
	}
	keys := dir.uints
	numKeys := int(keys[3])
	code := 0
	for k := 0; k < numKeys; k++ {
		base := 4 + k*4
		if base+3 >= len(keys) {
			break
		}
		keyID, loc, value := keys[base], keys[base+1], keys[base+3]
		if loc != 0 || value == geoKeyUserDefined {
			continue
		}
		switch keyID {
		case geoKeyProjectedCSType:
			return geodata.CRS{Code: int(value)}
		case geoKeyGeographicType:
			code = int(value)
		}
	}
	return geodata.CRS{Code: code}
}

func readStrips(r readAtSeeker, tags map[tiffTag]tagValue, grid *Grid, dec sampleDecoder, compression uint16) error {
	offsets, ok := tagUintSlice(tags, tagStripOffsets)
	if !ok {
		return fmt.Errorf("missing tag StripOffsets")
	}
	counts, ok := tagUintSlice(tags, tagStripByteCounts)
	if !ok || len(counts) != len(offsets) {
		return fmt.Errorf("missing or mismatched StripByteCounts")
	}
	rowsPerStrip := uint64(grid.Height)
	if v, ok := tagUint(tags, tagRowsPerStrip); ok && v > 0 {
		rowsPerStrip = v
	}

	row := 0
	for s := range offsets {
		raw, err := readBlock(r, offsets[s], counts[s], compression)
		if err != nil {
			return fmt.Errorf("strip %d: %w", s, err)
		}
		rows := int(rowsPerStrip)
		if row+rows > grid.Height {
			rows = grid.Height - row
		}
		vals, err := dec.decode(raw, grid.Width, rows)
		if err != nil {
			return fmt.Errorf("strip %d: %w", s, err)
		}
		copy(grid.Data[row*grid.Width:], vals[:rows*grid.Width])
		row += rows
		if row >= grid.Height {
			break
		}
	}
	if row < grid.Height {
		return fmt.Errorf("truncated raster: %d of %d rows", row, grid.Height)
	}
	return nil
}

func readTiles(r readAtSeeker, tags map[tiffTag]tagValue, grid *Grid, dec sampleDecoder, compression uint16) error {
	tileWidth, ok := tagUint(tags, tagTileWidth)
	if !ok {
		return fmt.Errorf("missing tag TileWidth")
	}
	tileLength, ok := tagUint(tags, tagTileLength)
	if !ok {
		return fmt.Errorf("missing tag TileLength")
	}
	offsets, _ := tagUintSlice(tags, tagTileOffsets)
	counts, ok := tagUintSlice(tags, tagTileByteCounts)
	if !ok || len(counts) != len(offsets) {
		return fmt.Errorf("missing or mismatched TileByteCounts")
	}

	tw, tl := int(tileWidth), int(tileLength)
	across := (grid.Width + tw - 1) / tw
	down := (grid.Height + tl - 1) / tl
	if across*down != len(offsets) {
		return fmt.Errorf("tile count %d does not cover %dx%d grid", len(offsets), grid.Width, grid.Height)
	}

	for ty := 0; ty < down; ty++ {
		for tx := 0; tx < across; tx++ {
			n := ty*across + tx
			raw, err := readBlock(r, offsets[n], counts[n], compression)
			if err != nil {
				return fmt.Errorf("tile %d: %w", n, err)
			}
			vals, err := dec.decode(raw, tw, tl)
			if err != nil {
				return fmt.Errorf("tile %d: %w", n, err)
			}
			// Copy the clipped tile window into the grid.
			for j := 0; j < tl; j++ {
				row := ty*tl + j
				if row >= grid.Height {
					break
				}
				cols := tw
				if tx*tw+cols > grid.Width {
					cols = grid.Width - tx*tw
				}
				copy(grid.Data[row*grid.Width+tx*tw:], vals[j*tw:j*tw+cols])
			}
		}
	}
	return nil
}

func readBlock(r io.ReaderAt, offset, count uint64, compression uint16) ([]byte, error) {
	raw := make([]byte, count)
	if _, err := r.ReadAt(raw, int64(offset)); err != nil {
		return nil, err
	}
	switch compression {
	case compressionNone:
		return raw, nil
	case compressionDeflate, compressionZlibOld:
		z, err := zlib.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, err
		}
		defer z.Close()
		return io.ReadAll(z)
	default:
		return nil, fmt.Errorf("unsupported compression %d", compression)
	}
}

// sampleDecoder converts a decompressed strip or tile into float64 samples.
type sampleDecoder struct {
	order     binary.ByteOrder
	bits      uint16
	format    uint16
	predictor uint16
}

func (d sampleDecoder) decode(raw []byte, width, rows int) ([]float64, error) {
	n := width * rows
	if len(raw) < n*int(d.bits)/8 {
		return nil, fmt.Errorf("short block: %d bytes for %d samples of %d bits", len(raw), n, d.bits)
	}
	if d.predictor == predictorHorizontal {
		if d.format == sampleFormatFloat {
			return nil, fmt.Errorf("horizontal predictor on float samples unsupported")
		}
		undoHorizontalPredictor(raw, width, rows, int(d.bits)/8, d.order)
	}

	out := make([]float64, n)
	switch {
	case d.bits == 8 && d.format == sampleFormatUint:
		for i := 0; i < n; i++ {
			out[i] = float64(raw[i])
		}
	case d.bits == 8 && d.format == sampleFormatInt:
		for i := 0; i < n; i++ {
			out[i] = float64(int8(raw[i]))
		}
	case d.bits == 16 && d.format == sampleFormatUint:
		for i := 0; i < n; i++ {
			out[i] = float64(d.order.Uint16(raw[2*i:]))
		}
	case d.bits == 16 && d.format == sampleFormatInt:
		for i := 0; i < n; i++ {
			out[i] = float64(int16(d.order.Uint16(raw[2*i:])))
		}
	case d.bits == 32 && d.format == sampleFormatUint:
		for i := 0; i < n; i++ {
			out[i] = float64(d.order.Uint32(raw[4*i:]))
		}
	case d.bits == 32 && d.format == sampleFormatInt:
		for i := 0; i < n; i++ {
			out[i] = float64(int32(d.order.Uint32(raw[4*i:])))
		}
	case d.bits == 32 && d.format == sampleFormatFloat:
		for i := 0; i < n; i++ {
			out[i] = float64(math.Float32frombits(d.order.Uint32(raw[4*i:])))
		}
	case d.bits == 64 && d.format == sampleFormatFloat:
		for i := 0; i < n; i++ {
			out[i] = math.Float64frombits(d.order.Uint64(raw[8*i:]))
		}
	default:
		return nil, fmt.Errorf("unsupported sample layout: format %d, %d bits", d.format, d.bits)
	}
	return out, nil
}

// undoHorizontalPredictor reverses horizontal differencing in place on the
// raw sample bytes. Differences are stored modulo the sample width, so the
// undo must run on the integer representation, not on converted floats.
func undoHorizontalPredictor(raw []byte, width, rows, sampleBytes int, order binary.ByteOrder) {
	for y := 0; y < rows; y++ {
		rowStart := y * width * sampleBytes
		if rowStart+width*sampleBytes > len(raw) {
			break
		}
		for x := 1; x < width; x++ {
			i := rowStart + x*sampleBytes
			switch sampleBytes {
			case 1:
				raw[i] += raw[i-1]
			case 2:
				order.PutUint16(raw[i:], order.Uint16(raw[i:])+order.Uint16(raw[i-2:]))
			case 4:
				order.PutUint32(raw[i:], order.Uint32(raw[i:])+order.Uint32(raw[i-4:]))
			}
		}
	}
}

// readTags parses the TIFF header and the first IFD. For cloud-optimized
// GeoTIFFs the first IFD is the full-resolution image; overview IFDs are
// deliberately not followed.
func readTags(r readAtSeeker) (map[tiffTag]tagValue, binary.ByteOrder, error) {
	var orderMagic uint16
	if err := binary.Read(r, binary.BigEndian, &orderMagic); err != nil {
		return nil, nil, err
	}
	var order binary.ByteOrder
	switch orderMagic {
	case byteOrderLittle:
		order = binary.LittleEndian
	case byteOrderBig:
		order = binary.BigEndian
	default:
		return nil, nil, fmt.Errorf("invalid byte order marker %#x", orderMagic)
	}

	var identifier uint16
	if err := binary.Read(r, order, &identifier); err != nil {
		return nil, nil, err
	}
	var big bool
	var ifdOffset uint64
	switch identifier {
	case tiffIdentifier:
		var off32 uint32
		if err := binary.Read(r, order, &off32); err != nil {
			return nil, nil, err
		}
		ifdOffset = uint64(off32)
	case bigTiffIdentifier:
		big = true
		var bytesize, reserved uint16
		if err := binary.Read(r, order, &bytesize); err != nil {
			return nil, nil, err
		}
		if bytesize != bigTiffBytesize {
			return nil, nil, fmt.Errorf("invalid BigTIFF bytesize %d", bytesize)
		}
		if err := binary.Read(r, order, &reserved); err != nil {
			return nil, nil, err
		}
		if err := binary.Read(r, order, &ifdOffset); err != nil {
			return nil, nil, err
		}
	default:
		return nil, nil, fmt.Errorf("invalid tiff identifier %d", identifier)
	}
	if ifdOffset == 0 {
		return nil, nil, fmt.Errorf("file contains no IFD")
	}

	if _, err := r.Seek(int64(ifdOffset), io.SeekStart); err != nil {
		return nil, nil, err
	}
	var numEntries uint64
	if big {
		if err := binary.Read(r, order, &numEntries); err != nil {
			return nil, nil, err
		}
	} else {
		var n16 uint16
		if err := binary.Read(r, order, &n16); err != nil {
			return nil, nil, err
		}
		numEntries = uint64(n16)
	}

	entryLen := 12
	inline := uint64(4)
	if big {
		entryLen = 20
		inline = 8
	}
	block := make([]byte, entryLen*int(numEntries))
	if _, err := io.ReadFull(r, block); err != nil {
		return nil, nil, fmt.Errorf("reading IFD block: %w", err)
	}

	tags := make(map[tiffTag]tagValue, numEntries)
	for i := uint64(0); i < numEntries; i++ {
		entry := block[int(i)*entryLen:]
		tag := tiffTag(order.Uint16(entry))
		ftype := order.Uint16(entry[2:])
		if int(ftype) >= len(fieldTypeSize) || fieldTypeSize[ftype] == 0 {
			continue // unknown field type, skip entry
		}
		var count, valueOffset uint64
		var valueBytes []byte
		if big {
			count = order.Uint64(entry[4:])
			valueOffset = order.Uint64(entry[12:])
			valueBytes = entry[12:20]
		} else {
			count = uint64(order.Uint32(entry[4:]))
			valueOffset = uint64(order.Uint32(entry[8:]))
			valueBytes = entry[8:12]
		}

		total := fieldTypeSize[ftype] * count
		var data []byte
		if total <= inline {
			data = valueBytes[:total]
		} else {
			data = make([]byte, total)
			if _, err := r.(io.ReaderAt).ReadAt(data, int64(valueOffset)); err != nil {
				return nil, nil, fmt.Errorf("tag %d value: %w", tag, err)
			}
		}
		tags[tag] = parseTagValue(ftype, count, data, order)
	}
	return tags, order, nil
}

func parseTagValue(ftype uint16, count uint64, data []byte, order binary.ByteOrder) tagValue {
	v := tagValue{ftype: ftype}
	n := int(count)
	switch ftype {
	case ftByte:
		v.uints = make([]uint64, n)
		for i := 0; i < n; i++ {
			v.uints[i] = uint64(data[i])
		}
	case ftASCII:
		v.ascii = string(bytes.Trim(data, "\x00"))
	case ftShort:
		v.uints = make([]uint64, n)
		for i := 0; i < n; i++ {
			v.uints[i] = uint64(order.Uint16(data[2*i:]))
		}
	case ftLong:
		v.uints = make([]uint64, n)
		for i := 0; i < n; i++ {
			v.uints[i] = uint64(order.Uint32(data[4*i:]))
		}
	case ftLong8, ftIFD8:
		v.uints = make([]uint64, n)
		for i := 0; i < n; i++ {
			v.uints[i] = order.Uint64(data[8*i:])
		}
	case ftFloat:
		v.doubles = make([]float64, n)
		for i := 0; i < n; i++ {
			v.doubles[i] = float64(math.Float32frombits(order.Uint32(data[4*i:])))
		}
	case ftDouble:
		v.doubles = make([]float64, n)
		for i := 0; i < n; i++ {
			v.doubles[i] = math.Float64frombits(order.Uint64(data[8*i:]))
		}
	}
	return v
}

func tagUint(tags map[tiffTag]tagValue, tag tiffTag) (uint64, bool) {
	v, ok := tags[tag]
	if !ok || len(v.uints) == 0 {
		return 0, false
	}
	return v.uints[0], true
}

func tagUintSlice(tags map[tiffTag]tagValue, tag tiffTag) ([]uint64, bool) {
	v, ok := tags[tag]
	if !ok || len(v.uints) == 0 {
		return nil, false
	}
	return v.uints, true
}
