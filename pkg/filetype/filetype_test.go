package filetype_test

import (
	"docvision-service/pkg/filetype"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var pngHeader = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0x0d, 'I', 'H', 'D', 'R'}

var _ = Describe("Detect", func() {
	DescribeTable("known types",
		func(data []byte, mime, ext string) {
			detected, err := filetype.Detect(data)
			Expect(err).NotTo(HaveOccurred())
			Expect(detected.MimeType).To(Equal(mime))
			Expect(detected.Extension).To(Equal(ext))
		},
		Entry("png", pngHeader, "image/png", ".png"),
		Entry("pdf", []byte("%PDF-1.7\n%binary"), "application/pdf", ".pdf"),
		Entry("plain text drops the charset", []byte("hello world"), "text/plain", ".txt"),
	)

	It("rejects content without a known extension", func() {
		_, err := filetype.Detect([]byte{0x00, 0x01, 0x02, 0xff, 0xfe, 0x00, 0x9c})
		Expect(err).To(MatchError(filetype.ErrUnsupported))
	})
})
