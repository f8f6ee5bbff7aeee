package device

import (
	"errors"
	"testing"

	. "github.com/onsi/gomega"
)

func TestArrayCopyRoundTrip(t *testing.T) {
	g := NewWithT(t)
	b := NewHostBackend()

	arr, err := NewArray[float64](b, 4)
	g.Expect(err).NotTo(HaveOccurred())
	defer arr.Release()

	g.Expect(arr.Len()).To(Equal(4))
	g.Expect(arr.Bytes()).To(Equal(32))

	g.Expect(arr.CopyFrom([]float64{1, 2, 3, 4})).To(Succeed())

	out := make([]float64, 4)
	g.Expect(arr.CopyTo(out)).To(Succeed())
	g.Expect(out).To(Equal([]float64{1, 2, 3, 4}))
}

func TestArraySizeMismatch(t *testing.T) {
	g := NewWithT(t)
	arr, err := NewArray[int32](NewHostBackend(), 3)
	g.Expect(err).NotTo(HaveOccurred())

	err = arr.CopyFrom([]int32{1, 2})
	g.Expect(errors.Is(err, ErrSizeMismatch)).To(BeTrue())

	err = arr.CopyTo(make([]int32, 5))
	g.Expect(errors.Is(err, ErrSizeMismatch)).To(BeTrue())
}

func TestArrayAsyncTransfer(t *testing.T) {
	g := NewWithT(t)
	b := NewHostBackend()
	defer b.Cleanup()

	s, err := b.NewStream()
	g.Expect(err).NotTo(HaveOccurred())

	arr, err := NewArray[int32](b, 1000)
	g.Expect(err).NotTo(HaveOccurred())

	in := make([]int32, 1000)
	for i := range in {
		in[i] = int32(i * 3)
	}
	up, err := arr.CopyFromAsync(in, s)
	g.Expect(err).NotTo(HaveOccurred())

	out := make([]int32, 1000)
	down, err := arr.CopyToAsync(out, s)
	g.Expect(err).NotTo(HaveOccurred())

	g.Expect(WaitAll(up, down)).To(Succeed())
	g.Expect(out).To(Equal(in))
}

func TestArrayCloneIsDeep(t *testing.T) {
	g := NewWithT(t)
	b := NewHostBackend()

	a, err := NewArray[int32](b, 3)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(a.CopyFrom([]int32{7, 8, 9})).To(Succeed())

	c, err := a.Clone()
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(c.Ptr()).NotTo(Equal(a.Ptr()))

	g.Expect(a.CopyFrom([]int32{0, 0, 0})).To(Succeed())

	out := make([]int32, 3)
	g.Expect(c.CopyTo(out)).To(Succeed())
	g.Expect(out).To(Equal([]int32{7, 8, 9}))
}

func TestArrayMoveLeavesSourceEmpty(t *testing.T) {
	g := NewWithT(t)
	b := NewHostBackend()

	a, err := NewArray[float32](b, 5)
	g.Expect(err).NotTo(HaveOccurred())
	ptr := a.Ptr()

	m := a.Move()
	g.Expect(a.Empty()).To(BeTrue())
	g.Expect(a.Ptr()).To(Equal(Ptr(0)))
	g.Expect(m.Ptr()).To(Equal(ptr))
	g.Expect(m.Len()).To(Equal(5))

	a.Release()
	g.Expect(b.Used()).To(Equal(20))
	m.Release()
	g.Expect(b.Used()).To(Equal(0))
}

func TestArrayAssignReallocates(t *testing.T) {
	g := NewWithT(t)
	b := NewHostBackend()

	dst, err := NewArray[int64](b, 2)
	g.Expect(err).NotTo(HaveOccurred())
	src, err := NewArray[int64](b, 6)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(src.CopyFrom([]int64{1, 2, 3, 4, 5, 6})).To(Succeed())

	g.Expect(dst.Assign(src)).To(Succeed())
	g.Expect(dst.Len()).To(Equal(6))

	out := make([]int64, 6)
	g.Expect(dst.CopyTo(out)).To(Succeed())
	g.Expect(out).To(Equal([]int64{1, 2, 3, 4, 5, 6}))
	g.Expect(b.Used()).To(Equal(96))
}

func TestArrayReleaseIdempotent(t *testing.T) {
	g := NewWithT(t)
	b := NewHostBackend()

	a, err := NewArray[float64](b, 8)
	g.Expect(err).NotTo(HaveOccurred())
	a.Release()
	a.Release()
	g.Expect(b.Used()).To(Equal(0))
	g.Expect(a.Empty()).To(BeTrue())
}

func TestArrayFillBytes(t *testing.T) {
	g := NewWithT(t)
	a, err := NewArray[uint32](NewHostBackend(), 4)
	g.Expect(err).NotTo(HaveOccurred())

	g.Expect(a.FillBytes(0x01)).To(Succeed())
	out := make([]uint32, 4)
	g.Expect(a.CopyTo(out)).To(Succeed())
	for _, v := range out {
		g.Expect(v).To(Equal(uint32(0x01010101)))
	}
}

func TestArrayFillElements(t *testing.T) {
	g := NewWithT(t)
	b := NewHostBackend()

	f32, err := NewArray[float32](b, 7)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(f32.FillElements(2.5)).To(Succeed())
	out32 := make([]float32, 7)
	g.Expect(f32.CopyTo(out32)).To(Succeed())
	g.Expect(out32).To(HaveEach(float32(2.5)))

	v3, err := NewArray[[3]float32](b, 5)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(v3.FillElements([3]float32{1, 2, 3})).To(Succeed())
	outV3 := make([][3]float32, 5)
	g.Expect(v3.CopyTo(outV3)).To(Succeed())
	g.Expect(outV3).To(HaveEach([3]float32{1, 2, 3}))

	v4, err := NewArray[[4]float32](b, 3)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(v4.FillElements([4]float32{1, 0, 0, 1})).To(Succeed())

	wide, err := NewArray[[3]float64](b, 2)
	g.Expect(err).NotTo(HaveOccurred())
	err = wide.FillElements([3]float64{1, 1, 1})
	g.Expect(errors.Is(err, ErrUnsupportedWidth)).To(BeTrue())
}

func TestArrayAllocFailureCarriesContext(t *testing.T) {
	g := NewWithT(t)
	b := NewHostBackend(WithMemoryLimit(64))

	_, err := NewArray[float64](b, 100)
	g.Expect(err).To(HaveOccurred())

	var allocErr *AllocError
	g.Expect(errors.As(err, &allocErr)).To(BeTrue())
	g.Expect(allocErr.Bytes).To(Equal(800))
	g.Expect(allocErr.Backend).To(Equal("host"))
	g.Expect(allocErr.Site).To(ContainSubstring("array_test.go"))
	g.Expect(errors.Is(err, ErrOutOfMemory)).To(BeTrue())
}

func TestArrayViewAliasesDeviceMemory(t *testing.T) {
	g := NewWithT(t)
	a, err := NewArray[float64](NewHostBackend(), 3)
	g.Expect(err).NotTo(HaveOccurred())

	view, err := a.View()
	g.Expect(err).NotTo(HaveOccurred())
	view[1] = 42

	out := make([]float64, 3)
	g.Expect(a.CopyTo(out)).To(Succeed())
	g.Expect(out).To(Equal([]float64{0, 42, 0}))
}

func TestMirrorResizeAndSync(t *testing.T) {
	g := NewWithT(t)
	m := NewMirror[int32](NewHostBackend(), 2)
	m.Host[0], m.Host[1] = 1, 2
	g.Expect(m.DataToDevice()).To(Succeed())

	m.Resize(4)
	g.Expect(m.Host).To(Equal([]int32{1, 2, 0, 0}))
	m.Host[3] = 9
	g.Expect(m.DataToDevice()).To(Succeed())
	g.Expect(m.Device().Len()).To(Equal(4))

	for i := range m.Host {
		m.Host[i] = -1
	}
	g.Expect(m.DataToHost()).To(Succeed())
	g.Expect(m.Host).To(Equal([]int32{1, 2, 0, 9}))
}
