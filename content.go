package mcp

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
)

// TextContent builds a text content element.
func TextContent(text string) Content {
	return Content{Type: ContentTypeText, Text: text}
}

// ImageContent builds an image content element from raw bytes.
func ImageContent(data []byte, mimeType string) Content {
	return Content{Type: ContentTypeImage, Data: base64.StdEncoding.EncodeToString(data), MimeType: mimeType}
}

// AudioContent builds an audio content element from raw bytes.
func AudioContent(data []byte, mimeType string) Content {
	return Content{Type: ContentTypeAudio, Data: base64.StdEncoding.EncodeToString(data), MimeType: mimeType}
}

// EmbeddedResource builds a resource content element. body may be a
// string, []byte, or io.Reader.
func EmbeddedResource(uri string, body any, mimeType string) Content {
	rc := ResourceContents{URI: uri, MimeType: mimeType}
	switch b := body.(type) {
	case string:
		rc.Text = b
	case []byte:
		rc.Blob = base64.StdEncoding.EncodeToString(b)
	case io.Reader:
		data, err := io.ReadAll(b)
		if err == nil {
			rc.Blob = base64.StdEncoding.EncodeToString(data)
		}
	}
	return Content{Type: ContentTypeResource, Resource: &rc}
}

// normalizeContentList converts a handler's return value into a content
// list. It accepts a single value or a list; strings become text content,
// bytes and streams become embedded octet-stream resources, content-typed
// values are kept, and anything else is stringified as text.
func normalizeContentList(v any) []Content {
	if v == nil {
		return []Content{}
	}

	switch val := v.(type) {
	case []Content:
		return val
	case []string:
		out := make([]Content, 0, len(val))
		for _, s := range val {
			out = append(out, TextContent(s))
		}
		return out
	case []any:
		out := make([]Content, 0, len(val))
		for _, el := range val {
			out = append(out, normalizeContentList(el)...)
		}
		return out
	}
	return []Content{normalizeContent(v)}
}

func normalizeContent(v any) Content {
	switch val := v.(type) {
	case Content:
		return val
	case *Content:
		return *val
	case string:
		return TextContent(val)
	case []byte:
		return EmbeddedResource("", val, "application/octet-stream")
	case io.Reader:
		return EmbeddedResource("", val, "application/octet-stream")
	case json.Number:
		return TextContent(val.String())
	case bool, int, int32, int64, uint, uint32, uint64, float32, float64:
		return TextContent(fmt.Sprint(val))
	case error:
		return TextContent(val.Error())
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return TextContent(fmt.Sprint(val))
		}
		return TextContent(string(b))
	}
}
