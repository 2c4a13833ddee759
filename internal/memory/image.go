package memory

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

// ImageKind tags which representation an Image holds.
type ImageKind int

const (
	NoImage ImageKind = iota
	EmbeddedImage
	RemoteImage
)

// Image is either an embedded payload (from a data URI) or a
// server-relative path. The zero value is "no image".
type Image struct {
	Kind ImageKind
	MIME string // embedded only
	Data []byte // embedded only
	Path string // remote only
}

// Embedded returns an image holding raw bytes.
func Embedded(mime string, data []byte) Image {
	return Image{Kind: EmbeddedImage, MIME: mime, Data: data}
}

// Remote returns an image referring to a server-relative path.
func Remote(path string) Image {
	return Image{Kind: RemoteImage, Path: path}
}

// ParseImage classifies s by its "data:" prefix. Blank input yields no image.
func ParseImage(s string) (Image, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Image{}, nil
	}
	if !strings.HasPrefix(s, "data:") {
		return Remote(s), nil
	}

	header, payload, ok := strings.Cut(s, ",")
	if !ok {
		return Image{}, fmt.Errorf("malformed data uri")
	}
	meta := strings.TrimPrefix(header, "data:")
	mime, enc, _ := strings.Cut(meta, ";")
	if enc != "base64" {
		return Image{}, fmt.Errorf("unsupported data uri encoding %q", enc)
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return Image{}, fmt.Errorf("decoding data uri: %w", err)
	}
	if mime == "" {
		mime = "image/jpeg"
	}
	return Embedded(mime, data), nil
}

// IsZero reports whether the image is absent.
func (i Image) IsZero() bool { return i.Kind == NoImage }

// DataURI re-encodes an embedded image. Empty for other kinds.
func (i Image) DataURI() string {
	if i.Kind != EmbeddedImage {
		return ""
	}
	return "data:" + i.MIME + ";base64," + base64.StdEncoding.EncodeToString(i.Data)
}

// Src resolves a displayable source. Remote paths are prefixed with base.
func (i Image) Src(base string) string {
	switch i.Kind {
	case EmbeddedImage:
		return i.DataURI()
	case RemoteImage:
		return strings.TrimRight(base, "/") + i.Path
	default:
		return ""
	}
}

// Ext picks the upload file extension for an embedded image.
func (i Image) Ext() string {
	switch {
	case strings.Contains(i.MIME, "png"):
		return "png"
	case strings.Contains(i.MIME, "gif"):
		return "gif"
	case strings.Contains(i.MIME, "webp"):
		return "webp"
	default:
		return "jpg"
	}
}

func (i Image) String() string {
	switch i.Kind {
	case EmbeddedImage:
		return i.DataURI()
	case RemoteImage:
		return i.Path
	default:
		return ""
	}
}

func (i Image) MarshalJSON() ([]byte, error) {
	if i.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(i.String())
}

func (i *Image) UnmarshalJSON(data []byte) error {
	var s *string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("image must be a string or null: %w", err)
	}
	if s == nil {
		*i = Image{}
		return nil
	}
	img, err := ParseImage(*s)
	if err != nil {
		return err
	}
	*i = img
	return nil
}
