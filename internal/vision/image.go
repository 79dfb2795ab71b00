package vision

import "bytes"

// DetectMediaType sniffs the true image encoding from the byte header.
// The declared filename or content type is never trusted; the magic
// number decides the media type sent to the provider. Returns "" for
// unsupported or truncated input.
func DetectMediaType(data []byte) string {
	if len(data) < 12 {
		return ""
	}

	switch {
	case bytes.HasPrefix(data, []byte{0xFF, 0xD8, 0xFF}):
		return "image/jpeg"
	case bytes.HasPrefix(data, []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}):
		return "image/png"
	case bytes.HasPrefix(data, []byte("GIF87a")) || bytes.HasPrefix(data, []byte("GIF89a")):
		return "image/gif"
	case bytes.HasPrefix(data, []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WEBP")):
		return "image/webp"
	default:
		return ""
	}
}
