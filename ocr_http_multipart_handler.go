package autosense

import (
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	imageFormField   = "image"
	sessionFormField = "session"
)

// extractParts reads the image file and the optional session id out of a
// multipart/form-data scan request.
func (s *Server) extractParts(req *http.Request) (scanRequest, []byte, error) {
	scanReq := scanRequest{}

	contentType, attrs, err := mime.ParseMediaType(req.Header.Get("Content-Type"))
	if err != nil {
		return scanReq, nil, errors.Wrap(err, "unparsable content type")
	}
	log.Debug().Str("component", "SCAN_HTTP").Str("content_type", contentType).Msg("content type")
	if contentType != "multipart/form-data" || attrs["boundary"] == "" {
		return scanReq, nil, errors.Errorf("expected multipart/form-data, got %q", contentType)
	}

	reader, err := req.MultipartReader()
	if err != nil {
		return scanReq, nil, errors.Wrap(err, "failed to open multipart reader")
	}

	var imgBytes []byte
	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return scanReq, nil, errors.Wrap(err, "failed to read mime part")
		}

		switch part.FormName() {
		case sessionFormField:
			value, err := io.ReadAll(io.LimitReader(part, 256))
			if err != nil {
				return scanReq, nil, errors.Wrap(err, "failed to read session field")
			}
			scanReq.Session = strings.TrimSpace(string(value))
		case imageFormField:
			partType := part.Header.Get("Content-Type")
			if partType != "" && !strings.HasPrefix(partType, "image/") && partType != "application/octet-stream" {
				return scanReq, nil, errors.Errorf("expected content-type: image/*, got %q", partType)
			}
			if imgBytes, err = io.ReadAll(part); err != nil {
				return scanReq, nil, errors.Wrap(err, "failed to read image part")
			}
		default:
			log.Debug().Str("component", "SCAN_HTTP").Str("field", part.FormName()).Msg("ignoring form field")
		}
		_ = part.Close()
	}

	if len(imgBytes) == 0 {
		return scanReq, nil, errors.Errorf("form field %q with an image is required", imageFormField)
	}
	return scanReq, imgBytes, nil
}
