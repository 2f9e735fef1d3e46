package providers

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/crewclock/internal/filex"
	"github.com/dmitrijs2005/crewclock/internal/syncapi"
)

// CapturedPhoto is the metadata of a photo saved on the device.
type CapturedPhoto struct {
	URI                 string
	FileName            string
	MimeType            string
	Width, Height       int
	SizeBytes           int64
	CompressedSizeBytes *int64
	Location            *syncapi.GeoPoint
}

// PhotoCapture produces a photo stored on the device.
type PhotoCapture interface {
	Capture(ctx context.Context) (*CapturedPhoto, error)
}

var ErrNotAnImage = errors.New("file is not a supported image")

// FileCapture imports an existing image file: it is copied into Dir under a
// fresh name so the original can be moved or deleted.
type FileCapture struct {
	Dir  string
	Path string
}

// PhotoDir is the directory, relative to the working directory, where
// imported photos are kept.
const PhotoDir = "photos"

// NewFileCapture stores imported photos under PhotoDir.
func NewFileCapture(path string) (*FileCapture, error) {
	dir, err := filex.EnsureSubDir(PhotoDir)
	if err != nil {
		return nil, err
	}
	return &FileCapture{Dir: dir, Path: path}, nil
}

func (f *FileCapture) Capture(ctx context.Context) (*CapturedPhoto, error) {
	src, err := os.Open(f.Path)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	head := make([]byte, 512)
	n, err := io.ReadFull(src, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, fmt.Errorf("%w: %v", ErrNotAnImage, err)
	}
	mime := http.DetectContentType(head[:n])

	if _, err := src.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	cfg, _, err := image.DecodeConfig(src)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotAnImage, err)
	}

	if _, err := src.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	dst := filepath.Join(f.Dir, uuid.NewString()+filepath.Ext(f.Path))
	size, err := filex.CopyFile(ctx, dst, src)
	if err != nil {
		return nil, err
	}

	return &CapturedPhoto{
		URI:       dst,
		FileName:  filepath.Base(f.Path),
		MimeType:  mime,
		Width:     cfg.Width,
		Height:    cfg.Height,
		SizeBytes: size,
	}, nil
}
