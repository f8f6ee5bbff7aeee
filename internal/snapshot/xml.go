// Package snapshot writes and reads XML configuration snapshots.
//
// A snapshot file is a <data> document holding one <configuration> element
// per write. Per-atom fields are stored either as text rows or as base64
// little-endian blobs; topology is always stored as text rows. Fixes that
// carry restart state add a <fix> element with their attributes and
// parameter matrices. Files ending in .zst are zstd compressed.
package snapshot

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"encoding/xml"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var (
	ErrBadFormat     = errors.New("snapshot: unknown format")
	ErrCorrupt       = errors.New("snapshot: corrupt configuration")
	ErrNoSnapshot    = errors.New("snapshot: no configuration in file")
	ErrStateNotEmpty = errors.New("snapshot: state already has atoms")
	ErrTypeMismatch  = errors.New("snapshot: atom types disagree with state")
	ErrWriterClosed  = errors.New("snapshot: writer closed")
	ErrMissingField  = errors.New("snapshot: per-atom field missing")
)

// Format selects the encoding of per-atom fields.
type Format string

const (
	FormatText   Format = "text"
	FormatBase64 Format = "base64"
)

func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatText, "":
		return FormatText, nil
	case FormatBase64:
		return FormatBase64, nil
	}
	return "", fmt.Errorf("%w: %q", ErrBadFormat, s)
}

type configurationXML struct {
	XMLName    xml.Name      `xml:"configuration"`
	Turn       int64         `xml:"turn,attr"`
	NumAtoms   int           `xml:"numAtoms,attr"`
	Dimension  int           `xml:"dimension,attr"`
	Periodic   string        `xml:"periodic,attr"`
	Bounds     boundsXML     `xml:"bounds"`
	AtomParams atomParamsXML `xml:"atomParams"`
	Groups     []groupXML    `xml:"groups>group"`
	Fields     []blobXML     `xml:",any"`
	Bonds      *blobXML      `xml:"bond"`
	Angles     *blobXML      `xml:"angle"`
	Dihedrals  *blobXML      `xml:"dihedral"`
	Fixes      []fixXML      `xml:"fix"`
}

// boundsXML holds the origin and the three edge vectors, row by row.
type boundsXML struct {
	Base64 string `xml:"base64,attr"`
	Xlo    string `xml:"xlo,attr"`
	Ylo    string `xml:"ylo,attr"`
	Zlo    string `xml:"zlo,attr"`
	Sxx    string `xml:"sxx,attr"`
	Sxy    string `xml:"sxy,attr"`
	Sxz    string `xml:"sxz,attr"`
	Syx    string `xml:"syx,attr"`
	Syy    string `xml:"syy,attr"`
	Syz    string `xml:"syz,attr"`
	Szx    string `xml:"szx,attr"`
	Szy    string `xml:"szy,attr"`
	Szz    string `xml:"szz,attr"`
}

func (b *boundsXML) slots() [12]*string {
	return [12]*string{&b.Xlo, &b.Ylo, &b.Zlo, &b.Sxx, &b.Sxy, &b.Sxz, &b.Syx, &b.Syy, &b.Syz, &b.Szx, &b.Szy, &b.Szz}
}

type atomParamsXML struct {
	NumTypes int    `xml:"numTypes,attr"`
	Handle   string `xml:"handle"`
	Mass     string `xml:"mass"`
}

type groupXML struct {
	Handle string `xml:"handle,attr"`
	Tag    uint32 `xml:"tag,attr"`
}

// blobXML is a block of rows, either as text or as base64.
type blobXML struct {
	XMLName xml.Name
	Base64  string `xml:"base64,attr,omitempty"`
	Data    string `xml:",chardata"`
}

type fixXML struct {
	Type     string      `xml:"type,attr"`
	Handle   string      `xml:"handle,attr"`
	Attrs    []attrXML   `xml:"attr"`
	Matrices []matrixXML `xml:"matrix"`
}

type attrXML struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

type matrixXML struct {
	Label  string `xml:"label,attr"`
	Size   int    `xml:"size,attr"`
	Base64 string `xml:"base64,attr,omitempty"`
	Data   string `xml:",chardata"`
}

func formatFloat(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }

func encodeFloat64s(vs []float64) string {
	buf := make([]byte, 8*len(vs))
	for i, v := range vs {
		binary.LittleEndian.PutUint64(buf[8*i:], math.Float64bits(v))
	}
	return base64.StdEncoding.EncodeToString(buf)
}

func encodeFloat32s(vs []float32) string {
	buf := make([]byte, 4*len(vs))
	for i, v := range vs {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(v))
	}
	return base64.StdEncoding.EncodeToString(buf)
}

func encodeInt32s(vs []int64) string {
	buf := make([]byte, 4*len(vs))
	for i, v := range vs {
		binary.LittleEndian.PutUint32(buf[4*i:], uint32(v))
	}
	return base64.StdEncoding.EncodeToString(buf)
}

func decodeBase64(s string, width int) ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if len(b)%width != 0 {
		return nil, fmt.Errorf("%w: %d bytes is not a multiple of %d", ErrCorrupt, len(b), width)
	}
	return b, nil
}

func decodeFloat64s(s string) ([]float64, error) {
	b, err := decodeBase64(s, 8)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(b)/8)
	for i := range out {
		out[i] = math.Float64frombits(binary.LittleEndian.Uint64(b[8*i:]))
	}
	return out, nil
}

func decodeFloat32s(s string) ([]float32, error) {
	b, err := decodeBase64(s, 4)
	if err != nil {
		return nil, err
	}
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return out, nil
}

// decodeInt32s reads 32 bit words, sign extended when signed is set.
func decodeInt32s(s string, signed bool) ([]int64, error) {
	b, err := decodeBase64(s, 4)
	if err != nil {
		return nil, err
	}
	out := make([]int64, len(b)/4)
	for i := range out {
		w := binary.LittleEndian.Uint32(b[4*i:])
		if signed {
			out[i] = int64(int32(w))
		} else {
			out[i] = int64(w)
		}
	}
	return out, nil
}

// rows splits a text block into its non-empty lines, each split on spaces.
func rows(s string) [][]string {
	var out [][]string
	for _, line := range strings.Split(s, "\n") {
		if f := strings.Fields(line); len(f) > 0 {
			out = append(out, f)
		}
	}
	return out
}

func parseFloats(fields []string) ([]float64, error) {
	out := make([]float64, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		out[i] = v
	}
	return out, nil
}

func parseInts(fields []string) ([]int, error) {
	out := make([]int, len(fields))
	for i, f := range fields {
		v, err := strconv.Atoi(f)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		out[i] = v
	}
	return out, nil
}

func periodicString(p [3]bool) string {
	var b bytes.Buffer
	for _, on := range p {
		if on {
			b.WriteByte('1')
		} else {
			b.WriteByte('0')
		}
	}
	return b.String()
}

func parsePeriodic(s string) ([3]bool, error) {
	var p [3]bool
	if len(s) != 3 {
		return p, fmt.Errorf("%w: periodic flags %q", ErrCorrupt, s)
	}
	for i := range p {
		switch s[i] {
		case '1':
			p[i] = true
		case '0':
		default:
			return p, fmt.Errorf("%w: periodic flags %q", ErrCorrupt, s)
		}
	}
	return p, nil
}

// noHandle stands in for an empty fix handle in topology rows.
const noHandle = "-"

func handleField(h string) string {
	if h == "" {
		return noHandle
	}
	return h
}

func handleValue(f string) string {
	if f == noHandle {
		return ""
	}
	return f
}
