package image_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/resizr/resizr/internal/api/handlers/health"
	"github.com/resizr/resizr/internal/api/handlers/image"
	"github.com/resizr/resizr/internal/api/router"
	"github.com/resizr/resizr/internal/model"
	imagerepo "github.com/resizr/resizr/internal/repository/image"
	imagesvc "github.com/resizr/resizr/internal/service/image"
)

type mockService struct {
	MockUpload      func(ctx context.Context, filename, contentType string, file io.Reader) (model.Image, error)
	MockGet         func(ctx context.Context, id uuid.UUID) (model.Image, error)
	MockResolveFile func(ctx context.Context, id uuid.UUID, size string) (io.ReadCloser, string, error)
	MockDelete      func(ctx context.Context, id uuid.UUID) error
}

func (m *mockService) Upload(ctx context.Context, filename, contentType string, file io.Reader) (model.Image, error) {
	return m.MockUpload(ctx, filename, contentType, file)
}
func (m *mockService) Get(ctx context.Context, id uuid.UUID) (model.Image, error) {
	return m.MockGet(ctx, id)
}
func (m *mockService) ResolveFile(ctx context.Context, id uuid.UUID, size string) (io.ReadCloser, string, error) {
	return m.MockResolveFile(ctx, id, size)
}
func (m *mockService) Delete(ctx context.Context, id uuid.UUID) error {
	return m.MockDelete(ctx, id)
}

type okPinger struct{}

func (okPinger) PingContext(context.Context) error { return nil }
func (okPinger) Ping() error                       { return nil }

func newServer(t *testing.T, svc *mockService) *httptest.Server {
	t.Helper()

	r := router.Setup(image.NewHandler(svc), health.NewHandler(okPinger{}, okPinger{}))
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	return srv
}

// multipartBody builds a multipart form with a single "file" field carrying
// the given declared content type.
func multipartBody(t *testing.T, filename, contentType, content string) (*bytes.Buffer, string) {
	t.Helper()

	buf := bytes.NewBuffer(nil)
	w := multipart.NewWriter(buf)

	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", `form-data; name="file"; filename="`+filename+`"`)
	header.Set("Content-Type", contentType)

	part, err := w.CreatePart(header)
	require.NoError(t, err)
	_, err = io.WriteString(part, content)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	return buf, w.FormDataContentType()
}

func decodeError(t *testing.T, resp *http.Response) string {
	t.Helper()

	var body struct {
		Message string `json:"message"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))

	return body.Message
}

func TestUpload(t *testing.T) {
	id := uuid.New()

	srv := newServer(t, &mockService{
		MockUpload: func(_ context.Context, filename, contentType string, _ io.Reader) (model.Image, error) {
			assert.Equal(t, "cat.jpg", filename)
			assert.Equal(t, "image/jpeg", contentType)
			return model.Image{ID: id, Status: model.StatusProcessing}, nil
		},
	})

	body, formType := multipartBody(t, "cat.jpg", "image/jpeg", "jpeg-bytes")
	resp, err := http.Post(srv.URL+"/api/v1/images", formType, body)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var task struct {
		TaskID uuid.UUID `json:"task_id"`
		Status string    `json:"status"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&task))
	assert.Equal(t, id, task.TaskID)
	assert.Equal(t, "PROCESSING", task.Status)
}

func TestUploadUnsupportedType(t *testing.T) {
	srv := newServer(t, &mockService{
		MockUpload: func(context.Context, string, string, io.Reader) (model.Image, error) {
			return model.Image{}, imagesvc.ErrUnsupportedType
		},
	})

	body, formType := multipartBody(t, "note.txt", "text/plain", "hello")
	resp, err := http.Post(srv.URL+"/api/v1/images", formType, body)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, decodeError(t, resp), "Only JPEG/PNG allowed")
}

func TestGet(t *testing.T) {
	id := uuid.New()

	srv := newServer(t, &mockService{
		MockGet: func(_ context.Context, gotID uuid.UUID) (model.Image, error) {
			assert.Equal(t, id, gotID)
			return model.Image{
				ID:          id,
				Status:      model.StatusDone,
				OriginalURL: "/storage/original/x.jpg",
				Thumbnails:  map[string]string{"100x100": "/storage/thumbs/100x100/x.jpg"},
			}, nil
		},
	})

	resp, err := http.Get(srv.URL + "/api/v1/images/" + id.String())
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var img model.Image
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&img))
	assert.Equal(t, model.StatusDone, img.Status)
	assert.Equal(t, "/storage/original/x.jpg", img.OriginalURL)
}

func TestGetMalformedID(t *testing.T) {
	srv := newServer(t, &mockService{})

	for _, path := range []string{
		"/api/v1/images/not-a-uuid",
		"/api/v1/images/not-a-uuid/file",
		"/api/v1/images/not-a-uuid/download",
	} {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err)

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, path)
		assert.Contains(t, decodeError(t, resp), "Invalid UUID")
		resp.Body.Close()
	}
}

func TestGetNotFound(t *testing.T) {
	srv := newServer(t, &mockService{
		MockGet: func(context.Context, uuid.UUID) (model.Image, error) {
			return model.Image{}, imagerepo.ErrImageNotFound
		},
		MockResolveFile: func(context.Context, uuid.UUID, string) (io.ReadCloser, string, error) {
			return nil, "", imagerepo.ErrImageNotFound
		},
	})

	for _, path := range []string{
		"/api/v1/images/" + uuid.NewString(),
		"/api/v1/images/" + uuid.NewString() + "/file",
		"/api/v1/images/" + uuid.NewString() + "/download",
	} {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err)

		assert.Equal(t, http.StatusNotFound, resp.StatusCode, path)
		resp.Body.Close()
	}
}

func TestViewFileNotReady(t *testing.T) {
	srv := newServer(t, &mockService{
		MockResolveFile: func(context.Context, uuid.UUID, string) (io.ReadCloser, string, error) {
			return nil, "", &imagesvc.NotReadyError{Status: model.StatusProcessing}
		},
	})

	resp, err := http.Get(srv.URL + "/api/v1/images/" + uuid.NewString() + "/file")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Contains(t, decodeError(t, resp), "Status: PROCESSING")
}

func TestViewFileInvalidSize(t *testing.T) {
	srv := newServer(t, &mockService{
		MockResolveFile: func(_ context.Context, _ uuid.UUID, size string) (io.ReadCloser, string, error) {
			assert.Equal(t, "999x999", size)
			return nil, "", imagesvc.ErrInvalidSize
		},
	})

	resp, err := http.Get(srv.URL + "/api/v1/images/" + uuid.NewString() + "/file?size=999x999")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, decodeError(t, resp), "Invalid size")
}

func TestViewFileThumbnailMissing(t *testing.T) {
	srv := newServer(t, &mockService{
		MockResolveFile: func(context.Context, uuid.UUID, string) (io.ReadCloser, string, error) {
			return nil, "", imagesvc.ErrThumbnailNotFound
		},
	})

	resp, err := http.Get(srv.URL + "/api/v1/images/" + uuid.NewString() + "/file?size=300x300")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, decodeError(t, resp), "Thumbnail 300x300 not found")
}

func TestViewFile(t *testing.T) {
	srv := newServer(t, &mockService{
		MockResolveFile: func(context.Context, uuid.UUID, string) (io.ReadCloser, string, error) {
			return io.NopCloser(strings.NewReader("jpeg-bytes")), "abc_100x100.jpg", nil
		},
	})

	resp, err := http.Get(srv.URL + "/api/v1/images/" + uuid.NewString() + "/file?size=100x100")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/jpeg", resp.Header.Get("Content-Type"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "inline")

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "jpeg-bytes", string(data))
}

func TestDownloadFile(t *testing.T) {
	srv := newServer(t, &mockService{
		MockResolveFile: func(context.Context, uuid.UUID, string) (io.ReadCloser, string, error) {
			return io.NopCloser(strings.NewReader("jpeg-bytes")), "abc_300x300.jpg", nil
		},
	})

	resp, err := http.Get(srv.URL + "/api/v1/images/" + uuid.NewString() + "/download?size=300x300")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/octet-stream", resp.Header.Get("Content-Type"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "attachment; filename=abc_300x300.jpg")
}

func TestDelete(t *testing.T) {
	id := uuid.New()

	srv := newServer(t, &mockService{
		MockDelete: func(_ context.Context, gotID uuid.UUID) error {
			assert.Equal(t, id, gotID)
			return nil
		},
	})

	req, err := http.NewRequest(http.MethodDelete, srv.URL+"/api/v1/images/"+id.String(), nil)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestDeleteFailureIsNotMappedByMessage(t *testing.T) {
	srv := newServer(t, &mockService{
		MockDelete: func(context.Context, uuid.UUID) error {
			return errors.New("boom: " + imagerepo.ErrImageNotFound.Error())
		},
	})

	req, err := http.NewRequest(http.MethodDelete, srv.URL+"/api/v1/images/"+uuid.NewString(), nil)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	// Only a genuine ErrImageNotFound maps to 404; other failures are 500.
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestRoot(t *testing.T) {
	srv := newServer(t, &mockService{})

	resp, err := http.Get(srv.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "Image Processing Service", body["message"])
}
