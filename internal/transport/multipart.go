package transport

import (
	"bytes"
	"fmt"
	"io"
	"mime/multipart"
	"net/textproto"
	"strings"
)

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

// MultipartFile builds a multipart/form-data body carrying a single file
// part. partType is the part's own Content-Type; empty means
// application/octet-stream. It returns the encoded body and the request
// Content-Type (with boundary) to send alongside it.
func MultipartFile(field, filename, partType string, r io.Reader) (body string, contentType string, err error) {
	if partType == "" {
		partType = "application/octet-stream"
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
		quoteEscaper.Replace(field), quoteEscaper.Replace(filename)))
	h.Set("Content-Type", partType)

	part, err := mw.CreatePart(h)
	if err != nil {
		return "", "", fmt.Errorf("creating form part: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return "", "", fmt.Errorf("copying file content: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", "", fmt.Errorf("closing multipart writer: %w", err)
	}

	return buf.String(), mw.FormDataContentType(), nil
}
