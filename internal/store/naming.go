package store

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/MeKo-Tech/qrharvest/internal/utils"
)

const (
	// CropPrefix starts every crop filename.
	CropPrefix = "qr_"
	// StampLayout is the timestamp part of a crop filename.
	StampLayout = "20060102_150405"
)

// CropFilename returns "qr_<YYYYMMDD_HHMMSS>_<index><ext>". ext may be given
// with or without the leading dot.
func CropFilename(stamp time.Time, index int, ext string) string {
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return fmt.Sprintf("%s%s_%d%s", CropPrefix, stamp.Format(StampLayout), index, strings.ToLower(ext))
}

// IsCropName reports whether a file in an output location is a crop the
// rescan should decode.
func IsCropName(name string) bool {
	return strings.HasPrefix(name, CropPrefix) && utils.IsSupportedImage(name)
}

// suffixed inserts "_n" before the extension: qr_x_1.png -> qr_x_1_2.png.
func suffixed(name string, n int) string {
	ext := filepath.Ext(name)
	return fmt.Sprintf("%s_%d%s", strings.TrimSuffix(name, ext), n, ext)
}
