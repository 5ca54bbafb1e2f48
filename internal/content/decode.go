package content

import (
	"encoding/json"
	"fmt"
	"io"
	"mime"

	"github.com/vmihailenco/msgpack/v5"
)

// Content types the catalog backend declares.
const (
	ContentTypeMsgpack = "lynx/msgpack"
	ContentTypeJSON    = "application/json"
)

// ContentTypeFor returns the content type served for a file extension.
func ContentTypeFor(ext string) string {
	if ext == "json" {
		return ContentTypeJSON
	}
	return ContentTypeMsgpack
}

// Decode decodes body into v according to the declared content type. A missing
// or unknown content type is a decode failure.
func Decode(contentType string, body io.Reader, v any) error {
	if contentType == "" {
		return fmt.Errorf("missing content type")
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return fmt.Errorf("parse content type %q: %w", contentType, err)
	}

	switch mediaType {
	case ContentTypeMsgpack:
		if err := msgpack.NewDecoder(body).Decode(v); err != nil {
			return fmt.Errorf("decode msgpack: %w", err)
		}
	case ContentTypeJSON:
		if err := json.NewDecoder(body).Decode(v); err != nil {
			return fmt.Errorf("decode json: %w", err)
		}
	default:
		return fmt.Errorf("unexpected content type %q", mediaType)
	}
	return nil
}

// Encode writes v in the encoding selected by contentType.
func Encode(contentType string, w io.Writer, v any) error {
	switch contentType {
	case ContentTypeMsgpack:
		return msgpack.NewEncoder(w).Encode(v)
	case ContentTypeJSON:
		return json.NewEncoder(w).Encode(v)
	default:
		return fmt.Errorf("unexpected content type %q", contentType)
	}
}
