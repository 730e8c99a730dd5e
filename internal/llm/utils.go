package llm

import (
	"encoding/base64"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"
)

// ImageFromFile reads an image and encodes it as a data URL for inline upload.
func ImageFromFile(path string, pageNo int, artifactID string) (Image, error) {
	u, _, err := readAsDataURL(path)
	if err != nil {
		return Image{}, fmt.Errorf("encode image %s: %w", filepath.Base(path), err)
	}
	return Image{DataURL: u, PageNo: pageNo, ArtifactID: artifactID}, nil
}

func readAsDataURL(path string) (string, string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", "", err
	}
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	mt := mime.TypeByExtension("." + ext)
	if mt == "" {
		// fallbacks
		switch ext {
		case "jpg", "jpeg":
			mt = "image/jpeg"
		case "webp":
			mt = "image/webp"
		default:
			mt = "image/png"
		}
	}
	// mime may append parameters (e.g. "; charset=utf-8"); data URLs only need the type
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}
	data := base64.StdEncoding.EncodeToString(b)
	return "data:" + mt + ";base64," + data, mt, nil
}
