package handler

import (
	"bytes"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"path/filepath"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/library-lending/internal/config"
)

// multipartForm builds a form with the given fields and one valid PNG part,
// so any rejection comes from a field, not the file.
func multipartForm(t *testing.T, fields map[string]string, fileField string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	if fileField != "" {
		hdr := textproto.MIMEHeader{}
		hdr.Set("Content-Disposition",
			fmt.Sprintf(`form-data; name=%q; filename=%q`, fileField, "cover.png"))
		hdr.Set("Content-Type", "image/png")
		part, err := w.CreatePart(hdr)
		require.NoError(t, err)
		_, err = part.Write([]byte("png-bytes"))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func postForm(body *bytes.Buffer, contentType string, fn echo.HandlerFunc) (*httptest.ResponseRecorder, error) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/", body)
	req.Header.Set(echo.HeaderContentType, contentType)
	rec := httptest.NewRecorder()
	return rec, fn(e.NewContext(req, rec))
}

func assertNoUploads(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return
	}
	require.NoError(t, err)
	assert.Empty(t, entries, "a rejected submission must not leave stored files")
}

func TestRegisterRejectedFormStoresNoUpload(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "uploads")
	h := NewAuthHandler(config.Config{UploadDir: dir, MaxImageBytes: 1 << 20}, nil, nil, nil)

	// Name too short; picture itself is fine.
	body, ctype := multipartForm(t, map[string]string{
		"name":     "x",
		"username": "reader_one",
		"email":    "reader@example.com",
		"password": "passw0rd1",
	}, "profile_picture")

	rec, err := postForm(body, ctype, h.Register)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "name")
	assertNoUploads(t, dir)
}

func TestCreateSectionRejectedFormStoresNoUpload(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "uploads")
	h := NewLibrarianCatalogHandler(config.Config{UploadDir: dir, MaxImageBytes: 1 << 20}, nil, nil, nil)

	body, ctype := multipartForm(t, map[string]string{
		"title":       "OK Title",
		"description": "too short",
	}, "picture")

	rec, err := postForm(body, ctype, h.CreateSection)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "description")
	assertNoUploads(t, dir)
}
