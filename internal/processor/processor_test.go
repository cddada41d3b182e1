package processor

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/resizr/resizr/internal/model"
	"github.com/resizr/resizr/internal/storage/file"
)

// newTestImage renders a PNG of the given dimensions into a buffer.
func newTestImage(t *testing.T, width, height int) *bytes.Buffer {
	t.Helper()

	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for x := 0; x < width; x++ {
		for y := 0; y < height; y++ {
			img.Set(x, y, color.NRGBA{R: uint8(x % 256), G: uint8(y % 256), B: 100, A: 255})
		}
	}

	buf := bytes.NewBuffer(nil)
	require.NoError(t, png.Encode(buf, img))

	return buf
}

func TestGenerate(t *testing.T) {
	ctx := context.Background()
	store := file.NewStorage(t.TempDir())

	originalPath, err := store.Save(ctx, "original", "src.png", newTestImage(t, 500, 400))
	require.NoError(t, err)

	id := uuid.New()
	p := New(store)

	thumbnails, err := p.Generate(ctx, id, originalPath)
	require.NoError(t, err)
	require.Len(t, thumbnails, 3)

	// Fit preserves the 5:4 aspect ratio within each box and never upscales.
	expected := map[string][2]int{
		"100x100":   {100, 80},
		"300x300":   {300, 240},
		"1200x1200": {500, 400},
	}

	for label, dims := range expected {
		path, ok := thumbnails[label]
		require.True(t, ok, "missing thumbnail %s", label)
		assert.Equal(t, id.String()+"_"+label+".jpg", filepath.Base(path))

		thumb, err := imaging.Open(path)
		require.NoError(t, err, "thumbnail %s not readable", label)

		bounds := thumb.Bounds()
		assert.Equal(t, dims[0], bounds.Dx(), "%s width", label)
		assert.Equal(t, dims[1], bounds.Dy(), "%s height", label)
	}
}

func TestGenerateBounds(t *testing.T) {
	ctx := context.Background()
	store := file.NewStorage(t.TempDir())

	// A tall image: aspect must be preserved against the height bound.
	originalPath, err := store.Save(ctx, "original", "tall.png", newTestImage(t, 200, 800))
	require.NoError(t, err)

	thumbnails, err := New(store).Generate(ctx, uuid.New(), originalPath)
	require.NoError(t, err)

	for _, size := range model.ThumbSizes {
		thumb, err := imaging.Open(thumbnails[size.Label()])
		require.NoError(t, err)

		bounds := thumb.Bounds()
		assert.LessOrEqual(t, bounds.Dx(), size.Width, "%s width bound", size.Label())
		assert.LessOrEqual(t, bounds.Dy(), size.Height, "%s height bound", size.Label())
	}
}

func TestGenerateMissingOriginal(t *testing.T) {
	store := file.NewStorage(t.TempDir())

	_, err := New(store).Generate(context.Background(), uuid.New(), "/nowhere/missing.jpg")
	assert.Error(t, err)
}

func TestGenerateCorruptOriginal(t *testing.T) {
	ctx := context.Background()
	store := file.NewStorage(t.TempDir())

	originalPath, err := store.Save(ctx, "original", "bad.jpg", bytes.NewBufferString("not an image"))
	require.NoError(t, err)

	_, err = New(store).Generate(ctx, uuid.New(), originalPath)
	assert.Error(t, err)
}
