// Package media turns uploaded files and remote pages into inline image
// payloads and claim text for the verifier.
package media

import (
	"errors"
	"net/url"
	"path"
	"strings"

	"github.com/ppiankov/truthguard/internal/model"
)

// DefaultMIMEType is used whenever an image type cannot be derived
const DefaultMIMEType = "image/jpeg"

// ErrEmptyImage is returned for zero-length uploads or downloads
var ErrEmptyImage = errors.New("image is empty")

// uploadTypes maps upload extensions to MIME types
var uploadTypes = map[string]string{
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"png":  "image/png",
	"webp": "image/webp",
	"gif":  "image/gif",
	"heic": "image/heic",
	"heif": "image/heif",
}

// remoteTypes is the narrower set accepted for images scraped from pages
var remoteTypes = map[string]string{
	"jpeg": "image/jpeg",
	"png":  "image/png",
	"webp": "image/webp",
}

// FromUpload builds an inline payload from uploaded bytes
func FromUpload(fileName string, data []byte) (model.Media, error) {
	if len(data) == 0 {
		return model.Media{}, ErrEmptyImage
	}
	return model.Media{MIMEType: MIMEFromExtension(fileName), Data: data}, nil
}

// MIMEFromExtension derives an upload's MIME type from its file name.
// Unknown or missing extensions map to image/jpeg.
func MIMEFromExtension(fileName string) string {
	if mt, ok := uploadTypes[extension(fileName)]; ok {
		return mt
	}
	return DefaultMIMEType
}

// RemoteImageMIME derives the MIME type of a scraped image from its URL path.
// Only jpeg, png and webp are recognized; everything else is sent as jpeg.
func RemoteImageMIME(imageURL string) string {
	p := imageURL
	if u, err := url.Parse(imageURL); err == nil {
		p = u.Path
	} else if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	if mt, ok := remoteTypes[extension(p)]; ok {
		return mt
	}
	return DefaultMIMEType
}

// EnrichClaim joins page title, description and the user's claim, one per line
func EnrichClaim(title, description, claim string) string {
	return title + "\n" + description + "\n" + claim
}

func extension(name string) string {
	return strings.ToLower(strings.TrimPrefix(path.Ext(name), "."))
}
