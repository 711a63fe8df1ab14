// Package imageinput converts uploaded images into the base64 form carried by
// an analysis request.
package imageinput

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"copydesk/internal/analysis"

	"github.com/gabriel-vasile/mimetype"
)

func Convert(r io.Reader, declaredMIME string, maxBytes int64) (analysis.Image, error) {
	if r == nil {
		return analysis.Image{}, conversionError("no file provided", nil)
	}
	data, err := io.ReadAll(io.LimitReader(r, maxBytes+1))
	if err != nil {
		return analysis.Image{}, conversionError("read image", err)
	}
	if int64(len(data)) > maxBytes {
		return analysis.Image{}, conversionError(fmt.Sprintf("image exceeds %d bytes", maxBytes), nil)
	}
	return encode(data, declaredMIME)
}

// Decode accepts plain base64 or a data URL and returns the normalized image.
func Decode(encoded, declaredMIME string, maxBytes int64) (analysis.Image, error) {
	encoded = strings.TrimSpace(encoded)
	if strings.HasPrefix(encoded, "data:") {
		// data:<mime>;base64,<payload>
		idx := strings.IndexByte(encoded, ',')
		if idx < 0 {
			return analysis.Image{}, conversionError("malformed data URL", nil)
		}
		meta := encoded[len("data:"):idx]
		if semi := strings.IndexByte(meta, ';'); semi >= 0 {
			meta = meta[:semi]
		}
		if strings.TrimSpace(declaredMIME) == "" {
			declaredMIME = meta
		}
		encoded = encoded[idx+1:]
	}
	if base64.StdEncoding.DecodedLen(len(encoded)) > int(maxBytes)+3 {
		return analysis.Image{}, conversionError(fmt.Sprintf("image exceeds %d bytes", maxBytes), nil)
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		var urlErr error
		data, urlErr = base64.URLEncoding.DecodeString(encoded)
		if urlErr != nil {
			return analysis.Image{}, conversionError("invalid base64 image data", err)
		}
	}
	if int64(len(data)) > maxBytes {
		return analysis.Image{}, conversionError(fmt.Sprintf("image exceeds %d bytes", maxBytes), nil)
	}
	return encode(data, declaredMIME)
}

func encode(data []byte, declaredMIME string) (analysis.Image, error) {
	if len(data) == 0 {
		return analysis.Image{}, conversionError("image is empty", nil)
	}
	detected := mimetype.Detect(data)
	if !isImage(detected.String()) {
		return analysis.Image{}, conversionError(fmt.Sprintf("unsupported file type %q", detected.String()), nil)
	}
	mimeType := detected.String()
	if declared := normalizeMIME(declaredMIME); isImage(declared) {
		mimeType = declared
	}
	return analysis.Image{
		MIMEType: mimeType,
		Base64:   base64.StdEncoding.EncodeToString(data),
	}, nil
}

func isImage(mimeType string) bool {
	return strings.HasPrefix(mimeType, "image/")
}

func normalizeMIME(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if semi := strings.IndexByte(s, ';'); semi >= 0 {
		s = strings.TrimSpace(s[:semi])
	}
	return s
}

func conversionError(msg string, cause error) error {
	return &analysis.Error{Kind: analysis.KindFileConversion, Message: msg, Cause: cause}
}

// IsConversionError reports whether err came from this package.
func IsConversionError(err error) bool {
	return errors.Is(err, analysis.ErrFileConversion)
}
