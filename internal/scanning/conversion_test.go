package scanning

import (
	"bytes"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Normalize", func() {
	sample := image.NewRGBA(image.Rect(0, 0, 4, 4))

	encode := func(enc func(*bytes.Buffer) error) []byte {
		var buf bytes.Buffer
		Expect(enc(&buf)).To(Succeed())
		return buf.Bytes()
	}

	It("should pass JPEG through unchanged", func() {
		data := encode(func(b *bytes.Buffer) error { return jpeg.Encode(b, sample, nil) })
		out, mimeType, err := Normalize(data, "image/jpeg")
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(Equal(data))
		Expect(mimeType).To(Equal("image/jpeg"))
	})

	It("should pass PNG through unchanged", func() {
		data := encode(func(b *bytes.Buffer) error { return png.Encode(b, sample) })
		out, mimeType, err := Normalize(data, " IMAGE/PNG ")
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(Equal(data))
		Expect(mimeType).To(Equal("image/png"))
	})

	It("should sniff the type when none is given", func() {
		data := encode(func(b *bytes.Buffer) error { return jpeg.Encode(b, sample, nil) })
		_, mimeType, err := Normalize(data, "application/octet-stream")
		Expect(err).NotTo(HaveOccurred())
		Expect(mimeType).To(Equal("image/jpeg"))
	})

	It("should convert GIF to PNG", func() {
		data := encode(func(b *bytes.Buffer) error { return gif.Encode(b, sample, nil) })
		out, mimeType, err := Normalize(data, "image/gif")
		Expect(err).NotTo(HaveOccurred())
		Expect(mimeType).To(Equal("image/png"))
		_, format, err := image.Decode(bytes.NewReader(out))
		Expect(err).NotTo(HaveOccurred())
		Expect(format).To(Equal("png"))
	})

	It("should reject data that is not an image", func() {
		_, _, err := Normalize([]byte("hello world"), "text/plain")
		Expect(err).To(MatchError(ContainSubstring("unsupported image format")))
	})
})

var _ = Describe("isHEICFormat", func() {
	It("should recognise a heic ftyp box", func() {
		data := append([]byte{0, 0, 0, 24}, []byte("ftypheic0000")...)
		Expect(isHEICFormat(data)).To(BeTrue())
	})

	It("should ignore other containers", func() {
		data := append([]byte{0, 0, 0, 24}, []byte("ftypisom0000")...)
		Expect(isHEICFormat(data)).To(BeFalse())
	})

	It("should ignore short data", func() {
		Expect(isHEICFormat([]byte("ftyp"))).To(BeFalse())
	})
})
