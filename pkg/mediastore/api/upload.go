package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/tendant/simple-media/pkg/mediastore"
)

// readUploadFiles reads every file part of a multipart request in body
// order. Parts without a file name are form fields and are ignored. The
// part's Content-Type header is the client-declared type.
func readUploadFiles(r *http.Request) ([]mediastore.UploadFile, error) {
	reader, err := r.MultipartReader()
	if err != nil {
		return nil, err
	}

	var files []mediastore.UploadFile
	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			return files, nil
		}
		if err != nil {
			return nil, err
		}

		if part.FileName() == "" {
			part.Close()
			continue
		}

		data, err := io.ReadAll(part)
		part.Close()
		if err != nil {
			return nil, err
		}
		files = append(files, mediastore.UploadFile{
			FileName:    part.FileName(),
			ContentType: part.Header.Get("Content-Type"),
			Data:        data,
		})
	}
}
