package scanning

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif" // Register GIF decoder
	_ "image/jpeg"
	"image/png"
	"net/http"
	"strings"

	"github.com/gen2brain/go-fitz"
	"github.com/gen2brain/heic"
	_ "golang.org/x/image/webp" // Register WebP decoder
)

// Normalize prepares an upload for a vision model. JPEG and PNG pass
// through untouched; HEIC/HEIF photos, PDFs, GIF and WebP are rendered to
// PNG. It returns the bytes to extract from and their MIME type.
//
// Transports call this before handing bytes to the extractor, which never
// converts anything itself.
func Normalize(data []byte, contentType string) ([]byte, string, error) {
	mimeType := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.Index(mimeType, ";"); i >= 0 {
		mimeType = strings.TrimSpace(mimeType[:i])
	}
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = sniffMIME(data)
	}

	switch {
	case mimeType == "image/jpeg" || mimeType == "image/png":
		return data, mimeType, nil
	case mimeType == "application/pdf":
		out, err := pdfToPNG(data)
		if err != nil {
			return nil, "", fmt.Errorf("converting PDF to image: %w", err)
		}
		return out, "image/png", nil
	case isHEICFormat(data) || isHEICMimeType(mimeType):
		img, err := heic.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, "", fmt.Errorf("decoding HEIC/HEIF image: %w", err)
		}
		out, err := encodePNG(img)
		if err != nil {
			return nil, "", err
		}
		return out, "image/png", nil
	default:
		img, _, err := image.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, "", fmt.Errorf("unsupported image format %q. Supported formats: JPEG, PNG, GIF, WebP, HEIC, HEIF, PDF: %w", mimeType, err)
		}
		out, err := encodePNG(img)
		if err != nil {
			return nil, "", err
		}
		return out, "image/png", nil
	}
}

// sniffMIME guesses a MIME type from content, recognising HEIC which the
// standard sniffer does not
func sniffMIME(data []byte) string {
	if isHEICFormat(data) {
		return "image/heic"
	}
	return http.DetectContentType(data)
}

// pdfToPNG renders the first page of a PDF (most receipts are single page)
func pdfToPNG(pdfData []byte) ([]byte, error) {
	doc, err := fitz.NewFromMemory(pdfData)
	if err != nil {
		return nil, fmt.Errorf("opening PDF: %w", err)
	}
	defer doc.Close()

	img, err := doc.Image(0)
	if err != nil {
		return nil, fmt.Errorf("rendering PDF page: %w", err)
	}

	return encodePNG(img)
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encoding PNG: %w", err)
	}
	return buf.Bytes(), nil
}

// isHEICFormat checks for an ftyp box with a HEIC-family brand at offset 4
func isHEICFormat(data []byte) bool {
	if len(data) < 12 || string(data[4:8]) != "ftyp" {
		return false
	}
	switch string(data[8:12]) {
	case "heic", "heix", "heif", "mif1", "msf1":
		return true
	}
	return false
}

// isHEICMimeType checks if the MIME type indicates HEIC/HEIF format
func isHEICMimeType(mimeType string) bool {
	return strings.Contains(mimeType, "heic") || strings.Contains(mimeType, "heif")
}
