package api

import (
	"bytes"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/keithlinneman/linnemanlabs-api/internal/apierr"
	"github.com/keithlinneman/linnemanlabs-api/internal/log"
	"github.com/keithlinneman/linnemanlabs-api/internal/pathutil"
	"github.com/keithlinneman/linnemanlabs-api/internal/sanitize"
	"github.com/keithlinneman/linnemanlabs-api/internal/xerrors"
)

const uploadField = "file"

var allowedExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".pdf":  true,
}

var invalidTypeMessage = func() string {
	exts := make([]string, 0, len(allowedExtensions))
	for e := range allowedExtensions {
		exts = append(exts, e)
	}
	sort.Strings(exts)
	return "Invalid file type. Allowed: " + strings.Join(exts, ", ")
}()

type uploadResponse struct {
	Filename         string `json:"filename"`
	OriginalFilename string `json:"original_filename"`
	SizeBytes        int64  `json:"size_bytes"`
	SHA256           string `json:"sha256"`
}

func (a *API) upload(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()
	L := log.FromContext(ctx)

	mr, err := r.MultipartReader()
	if err != nil {
		return apierr.NewBadRequest("Invalid multipart form")
	}
	part, err := findPart(mr, uploadField)
	if err != nil {
		return err
	}
	defer part.Close()

	original := part.FileName()
	if original == "" {
		return apierr.NewValidation(apierr.FieldError{Field: uploadField, Message: "must be a file"})
	}
	if !allowedExtensions[strings.ToLower(path.Ext(pathutil.Base(original)))] {
		return apierr.NewBadRequest(invalidTypeMessage)
	}

	// one byte past the limit is enough to know it is too large
	data, err := io.ReadAll(io.LimitReader(part, a.maxUpload+1))
	if err != nil {
		return xerrors.Wrap(err, "read upload")
	}
	if int64(len(data)) > a.maxUpload {
		return apierr.NewBadRequest("File too large. Max size: " + formatMB(a.maxUpload))
	}

	name := sanitize.Filename(original)
	obj, err := a.files.Put(ctx, name, bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return xerrors.Wrap(err, "store upload")
	}

	a.hooks.ObserveUpload(a.files.Kind(), obj.Size)
	L.Info(ctx, "file uploaded",
		"filename", obj.Name,
		"original_filename", sanitize.Text(original),
		"size_bytes", obj.Size,
		"content_type", obj.ContentType,
		"sha256", obj.SHA256,
	)
	apierr.WriteJSON(w, http.StatusOK, uploadResponse{
		Filename:         obj.Name,
		OriginalFilename: sanitize.Text(original),
		SizeBytes:        obj.Size,
		SHA256:           obj.SHA256,
	})
	return nil
}

// findPart skips to the named form part.
func findPart(mr *multipart.Reader, field string) (*multipart.Part, error) {
	for {
		p, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return nil, apierr.NewValidation(apierr.FieldError{Field: field, Message: "field required"})
		}
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return nil, err
		}
		if err != nil {
			return nil, apierr.NewBadRequest("Invalid multipart form")
		}
		if p.FormName() == field {
			return p, nil
		}
		_ = p.Close()
	}
}

func formatMB(n int64) string {
	const mb = 1 << 20
	if n%mb == 0 {
		return strconv.FormatInt(n/mb, 10) + " MB"
	}
	return strconv.FormatInt(n, 10) + " bytes"
}
