// Package codec converts between encoded images (files, URLs, data URLs) and
// the pixel buffers the crop engine works on.
package codec

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"inversecrop/internal/crop"
)

const (
	MimePNG  = "image/png"
	MimeJPEG = "image/jpeg"
	MimeWebP = "image/webp"
	MimeGIF  = "image/gif"
	MimeBMP  = "image/bmp"
	MimeTIFF = "image/tiff"
)

// DefaultQuality is used for lossy encodings when Options.Quality is unset.
const DefaultQuality = 90

// Options carries format-specific encoding parameters.
type Options struct {
	Quality  int  // 1-100; 0 selects DefaultQuality
	Lossless bool // WebP only
}

var fetchClient = &http.Client{Timeout: 30 * time.Second}

var (
	errNotDataURL  = errors.New("not a data URL")
	errNotAnImage  = errors.New("not an image")
	errUnsupported = errors.New("unknown or unsupported format")
)

// Decode loads an image from a data URL, an http(s) URL or a local file path.
// Any failure is reported as a *crop.DecodeError.
func Decode(ctx context.Context, handle string) (*image.NRGBA, error) {
	data, source, err := load(ctx, handle)
	if err != nil {
		return nil, &crop.DecodeError{Source: source, Err: err}
	}
	img, _, err := DecodeBytes(data)
	if err != nil {
		return nil, &crop.DecodeError{Source: source, Err: err}
	}
	return img, nil
}

// DecodeReader decodes an encoded image from r and returns it with the name
// of its format.
func DecodeReader(r io.Reader) (*image.NRGBA, string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, "", &crop.DecodeError{Err: fmt.Errorf("failed to read image data: %w", err)}
	}
	img, format, err := DecodeBytes(data)
	if err != nil {
		return nil, "", &crop.DecodeError{Err: err}
	}
	return img, format, nil
}

// DecodeBytes decodes an encoded image, honouring EXIF orientation. WebP
// files the registered decoder rejects are retried with libwebp.
func DecodeBytes(data []byte) (*image.NRGBA, string, error) {
	_, format, cfgErr := image.DecodeConfig(bytes.NewReader(data))
	if cfgErr == nil {
		img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
		if err == nil {
			return imaging.Clone(img), format, nil
		}
		if format != "webp" {
			return nil, "", fmt.Errorf("failed to decode %s image: %w", format, err)
		}
	}

	if img, err := webp.Decode(bytes.NewReader(data)); err == nil {
		return imaging.Clone(img), "webp", nil
	}
	if cfgErr != nil {
		return nil, "", fmt.Errorf("%w: %v", errUnsupported, cfgErr)
	}
	return nil, "", errUnsupported
}

// load resolves a handle to raw bytes and a short description of where they
// came from.
func load(ctx context.Context, handle string) ([]byte, string, error) {
	switch {
	case strings.HasPrefix(handle, "data:"):
		_, data, err := ParseDataURL(handle)
		return data, "data URL", err
	case strings.HasPrefix(handle, "http://"), strings.HasPrefix(handle, "https://"):
		data, err := fetch(ctx, handle)
		return data, handle, err
	default:
		data, err := os.ReadFile(handle)
		if err != nil {
			return nil, handle, fmt.Errorf("failed to read image file: %w", err)
		}
		return data, handle, nil
	}
}

func fetch(ctx context.Context, imageURL string) ([]byte, error) {
	if _, err := url.Parse(imageURL); err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "inversecrop/1.0")

	resp, err := fetchClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to download image: HTTP %d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "image/") {
		return nil, fmt.Errorf("%w: Content-Type %q", errNotAnImage, ct)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read image data: %w", err)
	}
	return data, nil
}

// ParseDataURL splits a data URL into its media type and decoded payload.
// Both base64 and percent-encoded payloads are accepted.
func ParseDataURL(s string) (mimeType string, data []byte, err error) {
	rest, ok := strings.CutPrefix(s, "data:")
	if !ok {
		return "", nil, errNotDataURL
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, fmt.Errorf("%w: missing payload", errNotDataURL)
	}

	isBase64 := false
	params := strings.Split(meta, ";")
	mimeType = strings.ToLower(strings.TrimSpace(params[0]))
	for _, p := range params[1:] {
		if strings.EqualFold(strings.TrimSpace(p), "base64") {
			isBase64 = true
		}
	}
	if mimeType == "" {
		mimeType = "text/plain"
	}

	if isBase64 {
		data, err = base64.StdEncoding.DecodeString(payload)
		if err != nil {
			// Some producers drop padding.
			data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "="))
		}
		if err != nil {
			return "", nil, fmt.Errorf("invalid base64 payload: %w", err)
		}
		return mimeType, data, nil
	}

	unescaped, err := url.PathUnescape(payload)
	if err != nil {
		return "", nil, fmt.Errorf("invalid payload: %w", err)
	}
	return mimeType, []byte(unescaped), nil
}

// Encode writes img to w in the format named by mimeType.
func Encode(w io.Writer, img image.Image, mimeType string, opts Options) error {
	quality := opts.Quality
	if quality <= 0 || quality > 100 {
		quality = DefaultQuality
	}

	switch NormalizeMime(mimeType) {
	case MimePNG:
		return imaging.Encode(w, img, imaging.PNG)
	case MimeJPEG:
		return imaging.Encode(w, img, imaging.JPEG, imaging.JPEGQuality(quality))
	case MimeGIF:
		return imaging.Encode(w, img, imaging.GIF)
	case MimeBMP:
		return imaging.Encode(w, img, imaging.BMP)
	case MimeTIFF:
		return imaging.Encode(w, img, imaging.TIFF)
	case MimeWebP:
		return webp.Encode(w, img, &webp.Options{Lossless: opts.Lossless, Quality: float32(quality)})
	default:
		return fmt.Errorf("unsupported output format: %q", mimeType)
	}
}

// EncodeDataURL encodes img and wraps it in a base64 data URL.
func EncodeDataURL(img image.Image, mimeType string, opts Options) (string, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, img, mimeType, opts); err != nil {
		return "", err
	}
	return "data:" + NormalizeMime(mimeType) + ";base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// NormalizeMime maps format names and mime aliases ("jpg", "image/jpg",
// "png", ...) to the canonical mime type. Unknown values are returned
// lower-cased.
func NormalizeMime(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	switch strings.TrimPrefix(strings.TrimPrefix(s, "image/"), ".") {
	case "png":
		return MimePNG
	case "jpg", "jpeg":
		return MimeJPEG
	case "webp":
		return MimeWebP
	case "gif":
		return MimeGIF
	case "bmp", "x-ms-bmp":
		return MimeBMP
	case "tif", "tiff":
		return MimeTIFF
	}
	return s
}

// Extension returns the file extension (without dot) for a mime type.
func Extension(mimeType string) string {
	switch NormalizeMime(mimeType) {
	case MimePNG:
		return "png"
	case MimeJPEG:
		return "jpg"
	case MimeWebP:
		return "webp"
	case MimeGIF:
		return "gif"
	case MimeBMP:
		return "bmp"
	case MimeTIFF:
		return "tif"
	}
	return "bin"
}

// DownloadName suggests a file name for an exported image derived from
// source, e.g. "photo.jpg" -> "photo-inverse-cropped.png".
func DownloadName(source, mimeType string) string {
	base := "image"
	switch {
	case source == "", strings.HasPrefix(source, "data:"):
	case strings.HasPrefix(source, "http://"), strings.HasPrefix(source, "https://"):
		if u, err := url.Parse(source); err == nil && path.Base(u.Path) != "/" && path.Base(u.Path) != "." {
			base = path.Base(u.Path)
		}
	default:
		base = filepath.Base(source)
	}
	base = strings.TrimSuffix(base, filepath.Ext(base))
	if base == "" {
		base = "image"
	}
	return fmt.Sprintf("%s-inverse-cropped.%s", base, Extension(mimeType))
}
