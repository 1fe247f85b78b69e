package media

import (
	"fmt"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"

	"github.com/gabriel-vasile/mimetype"
)

// supportedImageTypes maps accepted upload content types to the extension
// the stored file gets.
var supportedImageTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
}

// DetectImageType sniffs the content of an upload and returns its stored
// extension. The reader is rewound before returning.
func DetectImageType(r io.ReadSeeker) (string, error) {
	mtype, err := mimetype.DetectReader(r)
	if err != nil {
		return "", fmt.Errorf("failed to detect content type: %w", err)
	}
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("failed to rewind upload: %w", err)
	}

	for m := mtype; m != nil; m = m.Parent() {
		if ext, ok := supportedImageTypes[m.String()]; ok {
			return ext, nil
		}
	}
	return "", fmt.Errorf("unsupported file type %s", mtype.String())
}
