package voxel

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"reflect"

	"github.com/chazu/voxbrep/pkg/diag"
	v3 "github.com/deadsy/sdfx/vec/v3"
	"github.com/sbinet/npyio"
)

// Threshold separates occupied from empty when reading numeric arrays.
const Threshold = 0.5

const (
	// MaxNPYVoxels bounds the element count accepted from an NPY header.
	MaxNPYVoxels = 1 << 30

	// maxHeaderLen bounds the header dictionary length. numpy pads headers
	// to a few hundred bytes.
	maxHeaderLen = 1 << 16
)

// LoadNPY reads a three-dimensional .npy file into a Grid. Array axis 0 maps
// to x.
func LoadNPY(path string, spacing, origin v3.Vec) (*Grid, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("voxel: open %s: %w", path, err)
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("voxel: stat %s: %w", path, err)
	}
	return readNPY(f, spacing, origin, fi.Size())
}

// ReadNPY decodes an NPY stream. Booleans and all integer and float dtypes are
// accepted; values greater than Threshold are occupied.
func ReadNPY(r io.Reader, spacing, origin v3.Vec) (*Grid, error) {
	return readNPY(r, spacing, origin, -1)
}

// readNPY decodes r. When avail is not negative the payload may not exceed
// avail bytes, so a lying header fails before anything is allocated.
func readNPY(r io.Reader, spacing, origin v3.Vec, avail int64) (*Grid, error) {
	br := bufio.NewReaderSize(r, maxHeaderLen+16)
	if err := checkPreamble(br); err != nil {
		return nil, err
	}
	rd, err := newReader(br)
	if err != nil {
		return nil, diag.Errorf(diag.CodeInvalidGrid, diag.StageGrid, "npy header: %v", err)
	}
	hdr := rd.Header
	shape := hdr.Descr.Shape
	if len(shape) != 3 {
		return nil, diag.Errorf(diag.CodeInvalidGrid, diag.StageGrid,
			"npy array has %d dimensions, want 3", len(shape))
	}
	dims := [3]int{shape[0], shape[1], shape[2]}
	if err := checkShape(dims, spacing, origin); err != nil {
		return nil, err
	}
	n := dims[0] * dims[1] * dims[2]
	if n > MaxNPYVoxels {
		return nil, diag.Errorf(diag.CodeInvalidGrid, diag.StageGrid,
			"npy array has %d elements, limit is %d", n, MaxNPYVoxels)
	}

	et := npyio.TypeFrom(hdr.Descr.Type)
	if et == nil {
		return nil, diag.Errorf(diag.CodeInvalidGrid, diag.StageGrid, "unsupported npy dtype %q", hdr.Descr.Type)
	}
	switch et.Kind() {
	case reflect.Bool,
		reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
	default:
		return nil, diag.Errorf(diag.CodeInvalidGrid, diag.StageGrid, "unsupported npy dtype %q", hdr.Descr.Type)
	}
	if avail >= 0 && int64(n)*int64(et.Size()) > avail {
		return nil, diag.Errorf(diag.CodeInvalidGrid, diag.StageGrid,
			"npy payload truncated: %dx%dx%d %s needs %d bytes, file has %d",
			dims[0], dims[1], dims[2], hdr.Descr.Type, int64(n)*int64(et.Size()), avail)
	}

	vals := reflect.New(reflect.SliceOf(et))
	vals.Elem().Set(reflect.MakeSlice(reflect.SliceOf(et), n, n))
	if err := rd.Read(vals.Interface()); err != nil {
		return nil, diag.Errorf(diag.CodeInvalidGrid, diag.StageGrid, "npy payload truncated: %v", err)
	}

	occ := make([]bool, n)
	elems := vals.Elem()
	for i := 0; i < n; i++ {
		v := float64Of(elems.Index(i))
		if math.IsNaN(v) {
			return nil, diag.Errorf(diag.CodeInvalidGrid, diag.StageGrid,
				"npy element %d is NaN", i)
		}
		// Array element (i, j, k) lands at x=i, y=j, z=k.
		var x, y, z int
		if hdr.Descr.Fortran {
			x = i % dims[0]
			y = (i / dims[0]) % dims[1]
			z = i / (dims[0] * dims[1])
		} else {
			z = i % dims[2]
			y = (i / dims[2]) % dims[1]
			x = i / (dims[1] * dims[2])
		}
		occ[x+dims[0]*(y+dims[1]*z)] = v > Threshold
	}
	return newGrid(dims, occ, spacing, origin), nil
}

// checkPreamble validates the magic, version and header length without
// consuming br, and requires the whole header to be newline terminated.
func checkPreamble(br *bufio.Reader) error {
	pre, err := br.Peek(len(npyio.Magic) + 2)
	if err != nil {
		return diag.Errorf(diag.CodeInvalidGrid, diag.StageGrid, "npy preamble: %v", err)
	}
	if !bytes.Equal(pre[:len(npyio.Magic)], npyio.Magic[:]) {
		return diag.Errorf(diag.CodeInvalidGrid, diag.StageGrid, "not an npy file")
	}
	var lenSize int
	switch major := pre[len(npyio.Magic)]; major {
	case 1:
		lenSize = 2
	case 2:
		lenSize = 4
	default:
		return diag.Errorf(diag.CodeInvalidGrid, diag.StageGrid, "unsupported npy version %d", major)
	}
	prefix := len(pre) + lenSize
	head, err := br.Peek(prefix)
	if err != nil {
		return diag.Errorf(diag.CodeInvalidGrid, diag.StageGrid, "npy header length: %v", err)
	}
	var hlen uint64
	if lenSize == 2 {
		hlen = uint64(binary.LittleEndian.Uint16(head[len(pre):]))
	} else {
		hlen = uint64(binary.LittleEndian.Uint32(head[len(pre):]))
	}
	if hlen == 0 || hlen > maxHeaderLen {
		return diag.Errorf(diag.CodeInvalidGrid, diag.StageGrid, "npy header length %d out of range", hlen)
	}
	head, err = br.Peek(prefix + int(hlen))
	if err != nil {
		return diag.Errorf(diag.CodeInvalidGrid, diag.StageGrid, "npy header: %v", err)
	}
	if head[len(head)-1] != '\n' {
		return diag.Errorf(diag.CodeInvalidGrid, diag.StageGrid, "npy header is not newline terminated")
	}
	return nil
}

// newReader parses the header. npyio slices the header dictionary without
// bounds checks, so a malformed dictionary surfaces as a panic.
func newReader(r io.Reader) (rd *npyio.Reader, err error) {
	defer func() {
		if p := recover(); p != nil {
			rd, err = nil, fmt.Errorf("malformed dictionary: %v", p)
		}
	}()
	return npyio.NewReader(r)
}

func float64Of(v reflect.Value) float64 {
	switch v.Kind() {
	case reflect.Bool:
		if v.Bool() {
			return 1
		}
		return 0
	case reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(v.Int())
	case reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(v.Uint())
	default:
		return v.Float()
	}
}

// SaveNPY writes g to path as a boolean C-order array.
func SaveNPY(path string, g *Grid) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("voxel: create %s: %w", path, err)
	}
	w := bufio.NewWriter(f)
	if err := WriteNPY(w, g); err != nil {
		f.Close()
		return err
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("voxel: write %s: %w", path, err)
	}
	return f.Close()
}

// WriteNPY encodes g as an NPY stream with dtype |b1 and shape (nx, ny, nz).
func WriteNPY(w io.Writer, g *Grid) error {
	// A nested fixed-size array carries the shape into the header.
	row := reflect.ArrayOf(g.nz, reflect.TypeOf(false))
	arr := reflect.New(reflect.ArrayOf(g.nx, reflect.ArrayOf(g.ny, row))).Elem()
	line := make([]bool, g.nz)
	for x := 0; x < g.nx; x++ {
		for y := 0; y < g.ny; y++ {
			for z := range line {
				line[z] = g.At(x, y, z)
			}
			reflect.Copy(arr.Index(x).Index(y), reflect.ValueOf(line))
		}
	}
	if err := npyio.Write(w, arr.Interface()); err != nil {
		return fmt.Errorf("voxel: write npy: %w", err)
	}
	return nil
}
