package capture

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/2beens/fitassess/internal/failure"

	"github.com/google/uuid"
)

const MaxPickedVideoBytes = 100 << 20

var allowedVideoExts = map[string]bool{
	".mp4":  true,
	".mov":  true,
	".avi":  true,
	".m4v":  true,
	".3gp":  true,
	".mkv":  true,
	".webm": true,
}

// Picked is a video chosen from storage instead of being recorded.
type Picked struct {
	Path     string `json:"path"`
	MIMEType string `json:"mimeType"`
	Size     int64  `json:"size"`
}

// PickVideo accepts an existing file when it is a video of at most 100MB.
func PickVideo(path string) (Picked, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Picked{}, failure.New(failure.KindNoMediaToSubmit, "selected video not found", err)
		}
		return Picked{}, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return Picked{}, failure.New(failure.KindNoMediaToSubmit, "selected path is not a file", nil)
	}
	if info.Size() > MaxPickedVideoBytes {
		return Picked{}, failure.New(failure.KindFileTooLarge, "Video file is too large. Please use a smaller file.", nil)
	}

	mimeType, err := videoMIMEType(path)
	if err != nil {
		return Picked{}, err
	}

	return Picked{
		Path:     path,
		MIMEType: mimeType,
		Size:     info.Size(),
	}, nil
}

func videoMIMEType(path string) (string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	mimeType := mime.TypeByExtension(ext)
	if mimeType == "" && allowedVideoExts[ext] {
		mimeType = "video/" + strings.TrimPrefix(ext, ".")
	}

	if mimeType == "" {
		f, err := os.Open(path)
		if err != nil {
			return "", fmt.Errorf("open %s: %w", path, err)
		}
		defer f.Close()
		head := make([]byte, 512)
		n, _ := io.ReadFull(f, head)
		mimeType = http.DetectContentType(head[:n])
	}

	mediaType, _, err := mime.ParseMediaType(mimeType)
	if err != nil || !strings.HasPrefix(mediaType, "video/") {
		return "", failure.New(failure.KindUnsupportedFormat, "Please select a video file.", nil)
	}
	return mediaType, nil
}

// SaveUpload stores an uploaded video in mediaDir and picks it. Uploads over
// the size limit are rejected without keeping the partial file.
func SaveUpload(r io.Reader, filename, mediaDir string) (Picked, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if ext == "" {
		ext = ".mp4"
	}
	if !allowedVideoExts[ext] {
		return Picked{}, failure.New(failure.KindUnsupportedFormat, "Please select a video file.", nil)
	}

	if err := os.MkdirAll(mediaDir, 0o755); err != nil {
		return Picked{}, fmt.Errorf("create media dir: %w", err)
	}
	path := filepath.Join(mediaDir, "upload-"+uuid.NewString()+ext)

	f, err := os.Create(path)
	if err != nil {
		return Picked{}, fmt.Errorf("create upload file: %w", err)
	}

	written, err := io.Copy(f, io.LimitReader(r, MaxPickedVideoBytes+1))
	closeErr := f.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(path)
		return Picked{}, fmt.Errorf("write upload file: %w", err)
	}
	if written > MaxPickedVideoBytes {
		_ = os.Remove(path)
		return Picked{}, failure.New(failure.KindFileTooLarge, "Video file is too large. Please use a smaller file.", nil)
	}

	picked, err := PickVideo(path)
	if err != nil {
		_ = os.Remove(path)
		return Picked{}, err
	}
	return picked, nil
}
