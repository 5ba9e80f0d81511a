package media

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ce-phus/atlas-path-relocation/pkg/apperrors"
)

// Store writes image bytes and returns a retrievable URL. Backed by S3 in
// production and by an in-process map in tests and dev.
type Store interface {
	Save(ctx context.Context, key, contentType string, data []byte) (string, error)
}

const thumbSize = 320

// Processor turns inline base64 image payloads into stored objects plus a
// rendered thumbnail.
type Processor struct {
	store  Store
	logger *zap.SugaredLogger
}

func NewProcessor(store Store, logger *zap.SugaredLogger) *Processor {
	return &Processor{store: store, logger: logger}
}

// ParseDataURL splits a "data:image/png;base64,..." payload into content type
// and raw bytes.
func ParseDataURL(payload string) (contentType string, data []byte, err error) {
	head, encoded, ok := strings.Cut(payload, ";base64,")
	if !ok {
		return "", nil, apperrors.Validation("image must be a base64 data URL")
	}
	contentType = strings.TrimPrefix(head, "data:")
	if !strings.HasPrefix(contentType, "image/") {
		return "", nil, apperrors.Validation("attachment is not an image")
	}
	data, err = base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", nil, apperrors.Validation("invalid base64 image data")
	}
	return contentType, data, nil
}

// SaveImage stores the decoded image and its thumbnail. A failed thumbnail
// render is logged and skipped; the original upload still counts.
func (p *Processor) SaveImage(ctx context.Context, payload string) (url, thumbURL string, err error) {
	contentType, data, err := ParseDataURL(payload)
	if err != nil {
		return "", "", err
	}
	ext := extFor(contentType)
	id := uuid.NewString()

	key := fmt.Sprintf("chat_images/%s.%s", id, ext)
	url, err = p.store.Save(ctx, key, contentType, data)
	if err != nil {
		return "", "", apperrors.Internal("image upload failed", err)
	}

	thumb, terr := renderThumbnail(data, ext)
	if terr != nil {
		p.logger.Warnw("thumbnail render failed", "key", key, "error", terr)
		return url, "", nil
	}
	thumbKey := fmt.Sprintf("chat_images/thumbs/%s.%s", id, ext)
	thumbURL, terr = p.store.Save(ctx, thumbKey, contentType, thumb)
	if terr != nil {
		p.logger.Warnw("thumbnail upload failed", "key", thumbKey, "error", terr)
		return url, "", nil
	}
	return url, thumbURL, nil
}

func renderThumbnail(data []byte, ext string) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	format, err := imaging.FormatFromExtension(ext)
	if err != nil {
		format = imaging.JPEG
	}
	small := imaging.Fit(img, thumbSize, thumbSize, imaging.Lanczos)
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, small, format); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func extFor(contentType string) string {
	ext := strings.TrimPrefix(contentType, "image/")
	if ext == "" || strings.ContainsAny(ext, "/+") {
		return "png"
	}
	if ext == "jpeg" {
		return "jpg"
	}
	return ext
}
