package services

import (
	"bytes"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"path"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

const (
	RecipeImageDir = "uploads/recipe"

	// Bounds decoding work for hostile headers.
	maxImagePixels = 50_000_000

	msgInvalidImage = "Upload a valid image. The file you uploaded was either not an image or a corrupted image."
)

// imageExtensions lists the file extensions accepted for each decodable format.
var imageExtensions = map[string][]string{
	"image/jpeg": {".jpg", ".jpeg", ".jpe"},
	"image/png":  {".png"},
	"image/gif":  {".gif"},
	"image/webp": {".webp"},
	"image/bmp":  {".bmp"},
}

// ImageInfo describes a validated upload.
type ImageInfo struct {
	MIME   string
	Ext    string
	Width  int
	Height int
}

// DetectImage checks that data holds a complete, decodable image.
func DetectImage(data []byte) (ImageInfo, error) {
	if len(data) == 0 {
		return ImageInfo{}, NewValidationError("image", "The submitted file is empty.")
	}

	mt := mimetype.Detect(data)
	if !strings.HasPrefix(mt.String(), "image/") {
		return ImageInfo{}, NewValidationError("image", msgInvalidImage)
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil || cfg.Width <= 0 || cfg.Height <= 0 {
		return ImageInfo{}, NewValidationError("image", msgInvalidImage)
	}
	if cfg.Width*cfg.Height > maxImagePixels {
		return ImageInfo{}, NewValidationError("image", "Image dimensions are too large.")
	}
	if _, _, err := image.Decode(bytes.NewReader(data)); err != nil {
		return ImageInfo{}, NewValidationError("image", msgInvalidImage)
	}

	return ImageInfo{
		MIME:   mt.String(),
		Ext:    mt.Extension(),
		Width:  cfg.Width,
		Height: cfg.Height,
	}, nil
}

// Extension is the extension to store the image under: the uploaded file's
// own when it names the detected format, the detected format's otherwise.
func (i ImageInfo) Extension(filename string) string {
	ext := strings.ToLower(path.Ext(strings.ReplaceAll(filename, "\\", "/")))
	for _, allowed := range imageExtensions[i.MIME] {
		if ext == allowed {
			return ext
		}
	}
	return i.Ext
}
