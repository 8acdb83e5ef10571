package raster

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/mstgis/geodata"
)

// LoadASCIIGrid opens an ESRI ASCII grid raster. The header accepts either
// the corner (xllcorner/yllcorner) or cell-center (xllcenter/yllcenter)
// origin convention. ASCII grids carry no CRS of their own; the returned
// grid's CRS is undefined and must be declared by the caller before the
// layer can be reconciled against points in another system.
func LoadASCIIGrid(path string) (*Grid, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", geodata.ErrRasterUnavailable, err)
	}
	defer f.Close()

	g, err := readASCIIGrid(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", geodata.ErrRasterUnavailable, path, err)
	}
	return g, nil
}

func readASCIIGrid(f *os.File) (*Grid, error) {
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	sc.Split(bufio.ScanWords)

	next := func() (string, error) {
		if !sc.Scan() {
			if err := sc.Err(); err != nil {
				return "", err
			}
			return "", fmt.Errorf("unexpected end of file")
		}
		return sc.Text(), nil
	}

	var (
		ncols, nrows   int
		xll, yll       float64
		cellSize       float64
		noData         float64
		hasNoData      bool
		centered       bool
		haveX, haveY   bool
		haveDims       int
		haveCell       bool
		firstDataToken string
	)

	// Header: key/value pairs until the first numeric token that is not a
	// header value.
	for {
		tok, err := next()
		if err != nil {
			return nil, err
		}
		key := strings.ToLower(tok)
		isHeader := true
		switch key {
		case "ncols", "nrows", "xllcorner", "yllcorner", "xllcenter", "yllcenter", "cellsize", "nodata_value":
		default:
			isHeader = false
		}
		if !isHeader {
			firstDataToken = tok
			break
		}
		val, err := next()
		if err != nil {
			return nil, err
		}
		switch key {
		case "ncols":
			ncols, err = strconv.Atoi(val)
			haveDims++
		case "nrows":
			nrows, err = strconv.Atoi(val)
			haveDims++
		case "xllcorner":
			xll, err = strconv.ParseFloat(val, 64)
			haveX = true
		case "yllcorner":
			yll, err = strconv.ParseFloat(val, 64)
			haveY = true
		case "xllcenter":
			xll, err = strconv.ParseFloat(val, 64)
			haveX, centered = true, true
		case "yllcenter":
			yll, err = strconv.ParseFloat(val, 64)
			haveY, centered = true, true
		case "cellsize":
			cellSize, err = strconv.ParseFloat(val, 64)
			haveCell = true
		case "nodata_value":
			noData, err = strconv.ParseFloat(val, 64)
			hasNoData = true
		}
		if err != nil {
			return nil, fmt.Errorf("header %s: %v", key, err)
		}
	}

	if haveDims != 2 || !haveX || !haveY || !haveCell {
		return nil, fmt.Errorf("incomplete ASCII grid header")
	}
	if ncols <= 0 || nrows <= 0 || cellSize <= 0 {
		return nil, fmt.Errorf("invalid ASCII grid dimensions %dx%d cell %g", ncols, nrows, cellSize)
	}
	if centered {
		xll -= cellSize / 2
		yll -= cellSize / 2
	}

	data := make([]float64, ncols*nrows)
	v, err := strconv.ParseFloat(firstDataToken, 64)
	if err != nil {
		return nil, fmt.Errorf("data value 0: %v", err)
	}
	data[0] = v
	for i := 1; i < len(data); i++ {
		tok, err := next()
		if err != nil {
			return nil, fmt.Errorf("data value %d: %v", i, err)
		}
		if data[i], err = strconv.ParseFloat(tok, 64); err != nil {
			return nil, fmt.Errorf("data value %d: %v", i, err)
		}
	}

	// Values run top row first; yll is the bottom edge.
	top := yll + float64(nrows)*cellSize
	return &Grid{
		Width:     ncols,
		Height:    nrows,
		Data:      data,
		Transform: Affine{A: cellSize, C: xll, E: -cellSize, F: top},
		NoData:    noData,
		HasNoData: hasNoData,
	}, nil
}
