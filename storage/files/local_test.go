package files

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mavuisra/naklass-sub005/core"
)

func encodeImage(t *testing.T, format imaging.Format) []byte {
	img := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	img.Set(1, 1, color.NRGBA{R: 200, A: 255})
	var buf bytes.Buffer
	if format == imaging.PNG {
		require.NoError(t, png.Encode(&buf, img))
	} else {
		require.NoError(t, imaging.Encode(&buf, img, format))
	}
	return buf.Bytes()
}

func newStore(t *testing.T, maxSize int64) *LocalStore {
	s, err := NewLocalStore(filepath.Join(t.TempDir(), "uploads"), maxSize)
	require.NoError(t, err)
	s.now = func() time.Time { return time.Unix(1717171717, 0) }
	return s
}

func TestLocalStore_Save(t *testing.T) {
	s := newStore(t, 1<<20)

	tests := []struct {
		name     string
		filename string
		data     []byte
		want     string
		wantErr  error
	}{
		{name: "png", filename: "logo.PNG", data: encodeImage(t, imaging.PNG), want: "logo_abc_1717171717.png"},
		{name: "jpeg", filename: "photo.jpeg", data: encodeImage(t, imaging.JPEG), want: "logo_abc_1717171717.jpg"},
		{name: "gif", filename: "anim.gif", data: encodeImage(t, imaging.GIF), want: "logo_abc_1717171717.gif"},
		{name: "png named jpg", filename: "logo.jpg", data: encodeImage(t, imaging.PNG), want: "logo_abc_1717171717.png"},
		{name: "jpeg named gif", filename: "logo.gif", data: encodeImage(t, imaging.JPEG), want: "logo_abc_1717171717.jpg"},
		{name: "extension", filename: "logo.svg", data: []byte("<svg/>"), wantErr: ErrExtension},
		{name: "no extension", filename: "logo", data: encodeImage(t, imaging.PNG), wantErr: ErrExtension},
		{name: "not an image", filename: "logo.png", data: []byte("%PDF-1.4 hello"), wantErr: ErrNotImage},
		{name: "mismatched content", filename: "logo.jpg", data: []byte(strings.Repeat("a", 64)), wantErr: ErrNotImage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			name, err := s.Save("logo", "abc", tt.filename, bytes.NewReader(tt.data))
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.True(t, core.IsValidation(err))
				assert.Equal(t, tt.wantErr, err.(*core.ValidationError).Err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, name)
			_, err = os.Stat(s.Path(name))
			assert.NoError(t, err)
		})
	}
}

func TestLocalStore_SaveTooLarge(t *testing.T) {
	data := encodeImage(t, imaging.PNG)
	s := newStore(t, int64(len(data)-1))

	_, err := s.Save("photo", "abc", "photo.png", bytes.NewReader(data))
	require.Error(t, err)
	vErr := err.(*core.ValidationError)
	assert.ErrorIs(t, vErr.Err, ErrTooLarge)
	assert.Equal(t, "file", vErr.Fields[0].Field)
}

func TestLocalStore_Delete(t *testing.T) {
	s := newStore(t, 1<<20)
	name, err := s.Save("photo", "abc", "photo.png", bytes.NewReader(encodeImage(t, imaging.PNG)))
	require.NoError(t, err)

	require.NoError(t, s.Delete(name))
	_, err = os.Stat(s.Path(name))
	assert.True(t, os.IsNotExist(err))

	assert.NoError(t, s.Delete(name), "missing files are ignored")
	assert.Equal(t, ErrBadName, s.Delete(""))
	assert.Equal(t, ErrBadName, s.Delete("../naklass.db"))
}
