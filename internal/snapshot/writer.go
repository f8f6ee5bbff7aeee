package snapshot

import (
	"bufio"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zstd"

	"github.com/san-kum/mdsim/internal/fix"
	"github.com/san-kum/mdsim/internal/md"
)

// Writer appends configurations to one snapshot file.
type Writer struct {
	path     string
	format   Format
	compress bool
	fixes    *fix.List

	f     *os.File
	zw    io.WriteCloser
	buf   *bufio.Writer
	enc   *xml.Encoder
	count int
}

type WriterOption func(*Writer)

func WithFormat(f Format) WriterOption     { return func(w *Writer) { w.format = f } }
func WithCompression(on bool) WriterOption { return func(w *Writer) { w.compress = on } }

// WithFixes records the restart state of the fixes in every configuration.
func WithFixes(l *fix.List) WriterOption { return func(w *Writer) { w.fixes = l } }

// NewWriter truncates base.xml (base.xml.zst when compressed) and writes the
// document header.
func NewWriter(base string, opts ...WriterOption) (*Writer, error) {
	w := &Writer{format: FormatText}
	for _, opt := range opts {
		opt(w)
	}
	if _, err := ParseFormat(string(w.format)); err != nil {
		return nil, err
	}
	w.path = base
	if !strings.HasSuffix(w.path, ".xml") && !strings.HasSuffix(w.path, ".xml.zst") {
		w.path += ".xml"
	}
	if w.compress && !strings.HasSuffix(w.path, ".zst") {
		w.path += ".zst"
	}

	f, err := os.Create(w.path)
	if err != nil {
		return nil, fmt.Errorf("snapshot: create %s: %w", w.path, err)
	}
	w.f = f
	var out io.Writer = f
	if w.compress {
		zw, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("snapshot: zstd writer: %w", err)
		}
		w.zw = zw
		out = zw
	}
	w.buf = bufio.NewWriter(out)
	w.enc = xml.NewEncoder(w.buf)
	w.enc.Indent("", " ")
	if _, err := io.WriteString(w.buf, xml.Header+"<data>\n"); err != nil {
		w.Close()
		return nil, err
	}
	return w, nil
}

func (w *Writer) Path() string { return w.path }
func (w *Writer) Count() int   { return w.count }

// Write appends the current host state of s. Host atoms must be up to date.
func (w *Writer) Write(s *md.State) error {
	if w.enc == nil {
		return ErrWriterClosed
	}
	c := w.encode(s)
	if err := w.enc.Encode(c); err != nil {
		return fmt.Errorf("snapshot: encode turn %d: %w", s.Turn, err)
	}
	if _, err := w.buf.WriteString("\n"); err != nil {
		return err
	}
	if err := w.buf.Flush(); err != nil {
		return err
	}
	w.count++
	return nil
}

// WriteHook has the signature of an integrator data hook.
func (w *Writer) WriteHook(_ context.Context, s *md.State) error { return w.Write(s) }

// Close terminates the document and closes the file.
func (w *Writer) Close() error {
	if w.f == nil {
		return nil
	}
	var first error
	keep := func(err error) {
		if first == nil && err != nil {
			first = err
		}
	}
	if w.buf != nil {
		_, err := w.buf.WriteString("</data>\n")
		keep(err)
		keep(w.buf.Flush())
	}
	if w.zw != nil {
		keep(w.zw.Close())
	}
	keep(w.f.Close())
	w.f, w.zw, w.buf, w.enc = nil, nil, nil, nil
	return first
}

func (w *Writer) encode(s *md.State) configurationXML {
	c := configurationXML{
		Turn:      s.Turn,
		NumAtoms:  len(s.Atoms),
		Dimension: s.Dims(),
		Periodic:  periodicString(s.Periodic),
	}
	c.Bounds = w.encodeBounds(s.Bounds)

	var handles, masses strings.Builder
	handles.WriteString("\n")
	masses.WriteString("\n")
	for i, h := range s.AtomParams.Handles {
		handles.WriteString(h + "\n")
		masses.WriteString(formatFloat(s.AtomParams.Masses[i]) + "\n")
	}
	c.AtomParams = atomParamsXML{NumTypes: s.NumTypes(), Handle: handles.String(), Mass: masses.String()}

	for _, h := range s.GroupHandles() {
		tag, _ := s.GroupTag(h)
		c.Groups = append(c.Groups, groupXML{Handle: h, Tag: tag})
	}
	for _, f := range md.Fields() {
		c.Fields = append(c.Fields, w.encodeField(f, s.Atoms))
	}
	c.Bonds, c.Angles, c.Dihedrals = encodeTopology(s)
	if w.fixes != nil {
		for _, f := range w.fixes.All() {
			if r, ok := f.(fix.Restarter); ok {
				c.Fixes = append(c.Fixes, w.encodeRecord(r.RestartRecord()))
			}
		}
	}
	return c
}

func (w *Writer) encodeBounds(b md.Bounds) boundsXML {
	vals := [12]float64{b.Lo[0], b.Lo[1], b.Lo[2]}
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			vals[3+3*i+j] = b.Sides[i][j]
		}
	}
	out := boundsXML{Base64: "0"}
	if w.format == FormatBase64 {
		out.Base64 = "1"
	}
	for i, slot := range out.slots() {
		if w.format == FormatBase64 {
			*slot = encodeFloat64s(vals[i : i+1])
		} else {
			*slot = formatFloat(vals[i])
		}
	}
	return out
}

func (w *Writer) encodeField(f md.Field, atoms []md.Atom) blobXML {
	out := blobXML{XMLName: xml.Name{Local: f.Tag}}
	if w.format == FormatBase64 {
		out.Base64 = "1"
		if f.Kind == md.VecField {
			vals := make([]float64, 0, 3*len(atoms))
			for i := range atoms {
				v := f.Vec(&atoms[i])
				vals = append(vals, v[:]...)
			}
			out.Data = encodeFloat64s(vals)
		} else {
			vals := make([]int64, len(atoms))
			for i := range atoms {
				vals[i] = f.Int(&atoms[i])
			}
			out.Data = encodeInt32s(vals)
		}
		return out
	}

	var b strings.Builder
	b.WriteString("\n")
	for i := range atoms {
		if f.Kind == md.VecField {
			v := f.Vec(&atoms[i])
			fmt.Fprintf(&b, "%s %s %s\n", formatFloat(v[0]), formatFloat(v[1]), formatFloat(v[2]))
		} else {
			b.WriteString(strconv.FormatInt(f.Int(&atoms[i]), 10) + "\n")
		}
	}
	out.Data = b.String()
	return out
}

// encodeTopology writes one row per record: fix handle, atom ids, then the
// coefficients.
func encodeTopology(s *md.State) (bonds, angles, dihedrals *blobXML) {
	if len(s.Bonds) > 0 {
		var b strings.Builder
		b.WriteString("\n")
		for _, r := range s.Bonds {
			fmt.Fprintf(&b, "%s %d %d %s %s\n", handleField(r.FixHandle), r.IDs[0], r.IDs[1],
				formatFloat(r.K), formatFloat(r.R0))
		}
		bonds = &blobXML{Data: b.String()}
	}
	if len(s.Angles) > 0 {
		var b strings.Builder
		b.WriteString("\n")
		for _, r := range s.Angles {
			fmt.Fprintf(&b, "%s %d %d %d %s %s\n", handleField(r.FixHandle), r.IDs[0], r.IDs[1], r.IDs[2],
				formatFloat(r.K), formatFloat(r.ThetaEq))
		}
		angles = &blobXML{Data: b.String()}
	}
	if len(s.Dihedrals) > 0 {
		var b strings.Builder
		b.WriteString("\n")
		for _, r := range s.Dihedrals {
			fmt.Fprintf(&b, "%s %d %d %d %d %s %s %s %s\n", handleField(r.FixHandle),
				r.IDs[0], r.IDs[1], r.IDs[2], r.IDs[3],
				formatFloat(r.Coefs[0]), formatFloat(r.Coefs[1]), formatFloat(r.Coefs[2]), formatFloat(r.Coefs[3]))
		}
		dihedrals = &blobXML{Data: b.String()}
	}
	return bonds, angles, dihedrals
}

func (w *Writer) encodeRecord(r fix.Record) fixXML {
	out := fixXML{Type: r.Type, Handle: r.Handle}
	names := make([]string, 0, len(r.Attrs))
	for k := range r.Attrs {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, k := range names {
		out.Attrs = append(out.Attrs, attrXML{Name: k, Value: r.Attrs[k]})
	}
	for _, m := range r.Matrices {
		mx := matrixXML{Label: m.Label, Size: m.Size}
		if w.format == FormatBase64 {
			mx.Base64 = "1"
			mx.Data = encodeFloat32s(m.Values)
		} else {
			var b strings.Builder
			b.WriteString("\n")
			for i, v := range m.Values {
				b.WriteString(strconv.FormatFloat(float64(v), 'g', -1, 32))
				if m.Size > 0 && (i+1)%m.Size == 0 {
					b.WriteString("\n")
				} else {
					b.WriteString(" ")
				}
			}
			mx.Data = b.String()
		}
		out.Matrices = append(out.Matrices, mx)
	}
	return out
}
