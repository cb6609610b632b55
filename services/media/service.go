// Package media stores user imagery behind a filesystem abstraction and
// hands out durable URLs for it.
package media

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"log"
	"os"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/spf13/afero"
	"golang.org/x/image/draw"

	"playlog/config"
)

const (
	profilePhotoDir = "profile-photos"
	jpegQuality     = 85
)

var (
	ErrUserRequired    = errors.New("user id is required")
	ErrEmpty           = errors.New("image is empty")
	ErrTooLarge        = errors.New("image exceeds upload limit")
	ErrUnsupportedType = errors.New("unsupported image type")
	ErrNotFound        = errors.New("media not found")
)

var allowedTypes = []string{"image/png", "image/jpeg", "image/gif"}

// Service writes and reads objects under a single root.
type Service struct {
	mu            sync.Mutex
	fs            afero.Fs
	publicBaseURL string
	maxDimension  int
	maxBytes      int64
	now           func() time.Time
}

// NewService roots storage at settings.Directory on disk unless fs is given.
func NewService(fs afero.Fs, settings config.MediaSettings) (*Service, error) {
	if fs == nil {
		dir := strings.TrimSpace(settings.Directory)
		if dir == "" {
			return nil, errors.New("media directory is required")
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create media dir: %w", err)
		}
		fs = afero.NewBasePathFs(afero.NewOsFs(), dir)
	}

	maxDimension := settings.MaxDimension
	if maxDimension <= 0 {
		maxDimension = 512
	}
	maxBytes := int64(settings.MaxUploadMB) << 20
	if maxBytes <= 0 {
		maxBytes = 10 << 20
	}

	return &Service{
		fs:            fs,
		publicBaseURL: strings.TrimRight(settings.PublicBaseURL, "/"),
		maxDimension:  maxDimension,
		maxBytes:      maxBytes,
		now:           time.Now,
	}, nil
}

// SetClock overrides the time source used for object names.
func (s *Service) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// MaxBytes is the largest accepted upload.
func (s *Service) MaxBytes() int64 {
	return s.maxBytes
}

// UploadProfilePhoto normalizes the image to a bounded JPEG and returns its URL.
func (s *Service) UploadProfilePhoto(userID string, data []byte) (string, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" || strings.ContainsAny(userID, `/\`) || strings.HasPrefix(userID, ".") {
		return "", ErrUserRequired
	}
	if len(data) == 0 {
		return "", ErrEmpty
	}
	if int64(len(data)) > s.maxBytes {
		return "", ErrTooLarge
	}

	detected := mimetype.Detect(data)
	if !mimetype.EqualsAny(detected.String(), allowedTypes...) {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedType, detected.String())
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("decode image: %w", err)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, s.fit(img), &jpeg.Options{Quality: jpegQuality}); err != nil {
		return "", fmt.Errorf("encode image: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := path.Join(profilePhotoDir, fmt.Sprintf("%s-%d.jpg", userID, s.now().UnixMilli()))
	if err := s.write(key, buf.Bytes()); err != nil {
		return "", err
	}
	log.Printf("[media] stored %s (%d bytes, source %s)", key, buf.Len(), detected.String())
	return s.URL(key), nil
}

// URL maps an object key to its public address.
func (s *Service) URL(key string) string {
	return s.publicBaseURL + "/" + strings.TrimLeft(key, "/")
}

// Open returns a stored object for reading.
func (s *Service) Open(key string) (afero.File, os.FileInfo, error) {
	clean := path.Clean("/" + key)
	if clean == "/" {
		return nil, nil, ErrNotFound
	}
	clean = strings.TrimPrefix(clean, "/")

	info, err := s.fs.Stat(clean)
	if err != nil || info.IsDir() {
		return nil, nil, ErrNotFound
	}
	f, err := s.fs.Open(clean)
	if err != nil {
		return nil, nil, ErrNotFound
	}
	return f, info, nil
}

func (s *Service) write(key string, data []byte) error {
	if err := s.fs.MkdirAll(path.Dir(key), 0o755); err != nil {
		return fmt.Errorf("create media dir: %w", err)
	}
	tmp := key + ".tmp"
	if err := afero.WriteFile(s.fs, tmp, data, 0o644); err != nil {
		return fmt.Errorf("write media: %w", err)
	}
	if err := s.fs.Rename(tmp, key); err != nil {
		_ = s.fs.Remove(tmp)
		return fmt.Errorf("commit media: %w", err)
	}
	return nil
}

// fit flattens img onto white and scales it so neither side exceeds
// maxDimension.
func (s *Service) fit(img image.Image) image.Image {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if longest := max(width, height); longest > s.maxDimension {
		ratio := float64(s.maxDimension) / float64(longest)
		width = max(1, int(float64(width)*ratio))
		height = max(1, int(float64(height)*ratio))
	}

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(dst, dst.Bounds(), image.White, image.Point{}, draw.Src)
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)
	return dst
}
