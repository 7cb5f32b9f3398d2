package files

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/gabriel-vasile/mimetype"
	"github.com/pkg/errors"

	"github.com/Mavuisra/naklass-sub005/core"
)

var (
	AllowedExtensions = []string{"jpg", "jpeg", "png", "gif"}
	allowedMimeTypes  = []string{"image/jpeg", "image/png", "image/gif"}

	ErrExtension = errors.New("only jpg, jpeg, png and gif files are allowed")
	ErrTooLarge  = errors.New("the file is too large")
	ErrNotImage  = errors.New("the file is not a valid image")
	ErrBadName   = errors.New("invalid file name")
)

// LocalStore keeps uploaded images in a directory of the local filesystem.
type LocalStore struct {
	dir     string
	maxSize int64
	now     func() time.Time
}

var _ core.FileStore = (*LocalStore)(nil)

func NewLocalStore(dir string, maxSize int64) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "creating upload dir %s", dir)
	}
	return &LocalStore{dir: dir, maxSize: maxSize, now: time.Now}, nil
}

func fileError(err error) error {
	return core.NewValidationError(err, core.FieldError{Field: "file", Error: err.Error()})
}

// Save checks that r holds an allowed image of at most maxSize bytes and writes it
// as `{prefix}_{ownerID}_{unixTimestamp}.{ext}`, ext following the detected content type.
// JPEG files are stored with their EXIF orientation applied.
func (s *LocalStore) Save(prefix, ownerID, filename string, r io.Reader) (string, error) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
	if !core.StringsContain(AllowedExtensions, ext) {
		return "", fileError(ErrExtension)
	}

	data, err := io.ReadAll(io.LimitReader(r, s.maxSize+1))
	if err != nil {
		return "", errors.Wrap(err, "reading upload")
	}
	if int64(len(data)) > s.maxSize {
		return "", fileError(errors.Wrapf(ErrTooLarge, "max %d bytes", s.maxSize))
	}

	mtype := mimetype.Detect(data)
	if !mimetype.EqualsAny(mtype.String(), allowedMimeTypes...) {
		return "", fileError(ErrNotImage)
	}
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return "", fileError(ErrNotImage)
	}
	if mtype.Is("image/jpeg") {
		var buf bytes.Buffer
		if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(90)); err != nil {
			return "", errors.Wrap(err, "encoding jpeg")
		}
		data = buf.Bytes()
	}

	ext = strings.TrimPrefix(mtype.Extension(), ".")
	name := fmt.Sprintf("%s_%s_%d.%s", prefix, ownerID, s.now().Unix(), ext)
	if err := os.WriteFile(filepath.Join(s.dir, name), data, 0o644); err != nil {
		return "", errors.Wrapf(err, "writing %s", name)
	}
	return name, nil
}

// Delete removes a stored file. Missing files are ignored.
func (s *LocalStore) Delete(name string) error {
	if name == "" || filepath.Base(name) != name {
		return ErrBadName
	}
	if err := os.Remove(filepath.Join(s.dir, name)); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "removing %s", name)
	}
	return nil
}

func (s *LocalStore) Path(name string) string {
	return filepath.Join(s.dir, name)
}
