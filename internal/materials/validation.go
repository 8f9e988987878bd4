package materials

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"github.com/mivahub/mivahub-backend/pkg/enums"
	pkgerrors "github.com/mivahub/mivahub-backend/pkg/errors"
)

const (
	sniffLen      = 3072
	maxTitleLen   = 255
	maxWeekNumber = 52
)

var supportedTypes = map[string]enums.FileType{
	"application/pdf": enums.FileTypePDF,
	"text/plain":      enums.FileTypeText,
	"text/markdown":   enums.FileTypeText,
	"video/mp4":       enums.FileTypeVideo,
	"video/x-msvideo": enums.FileTypeVideo,
	"video/avi":       enums.FileTypeVideo,
	"video/quicktime": enums.FileTypeVideo,
	"audio/mpeg":      enums.FileTypeAudio,
	"audio/mp3":       enums.FileTypeAudio,
	"audio/wav":       enums.FileTypeAudio,
	"audio/x-wav":     enums.FileTypeAudio,
	"audio/wave":      enums.FileTypeAudio,
	"audio/mp4":       enums.FileTypeAudio,
	"audio/x-m4a":     enums.FileTypeAudio,
	"image/jpeg":      enums.FileTypeImage,
	"image/png":       enums.FileTypeImage,
}

// FileTypeFor maps a declared content type to its file family.
func FileTypeFor(contentType string) (enums.FileType, bool) {
	base := baseType(contentType)
	ft, ok := supportedTypes[base]
	return ft, ok
}

// SupportedContentTypes lists the accepted declared content types.
func SupportedContentTypes() []string {
	out := make([]string, 0, len(supportedTypes))
	for ct := range supportedTypes {
		out = append(out, ct)
	}
	return out
}

func baseType(contentType string) string {
	contentType = strings.TrimSpace(contentType)
	if contentType == "" {
		return ""
	}
	parsed, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.ToLower(contentType)
	}
	return strings.ToLower(parsed)
}

// sniff reads the head of body, checks that the detected type belongs to
// the declared family and returns a reader that replays the full stream.
func sniff(body io.Reader, declared enums.FileType) (io.Reader, string, error) {
	head := make([]byte, sniffLen)
	n, err := io.ReadFull(body, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unable to read upload")
	}
	head = head[:n]
	if n == 0 {
		return nil, "", pkgerrors.New(pkgerrors.CodeValidation, "file is empty")
	}

	detected := mimetype.Detect(head)
	for m := detected; m != nil; m = m.Parent() {
		if ft, ok := FileTypeFor(m.String()); ok && ft == declared {
			return io.MultiReader(bytes.NewReader(head), body), baseType(detected.String()), nil
		}
	}
	return nil, "", pkgerrors.New(pkgerrors.CodeValidation,
		fmt.Sprintf("file content (%s) does not match declared type %s", baseType(detected.String()), declared)).
		WithDetails(map[string]any{"detected": baseType(detected.String()), "declared": declared})
}

func validateUpload(in UploadInput, maxBytes int64) (enums.FileType, error) {
	details := map[string]string{}
	if in.UserID == uuid.Nil {
		details["user_id"] = "required"
	}
	title := strings.TrimSpace(in.Title)
	switch {
	case title == "":
		details["title"] = "required"
	case len(title) > maxTitleLen:
		details["title"] = fmt.Sprintf("must be at most %d characters", maxTitleLen)
	}
	if strings.TrimSpace(in.FileName) == "" {
		details["file"] = "file name is required"
	}
	if in.WeekNumber != nil && (*in.WeekNumber < 1 || *in.WeekNumber > maxWeekNumber) {
		details["week_number"] = fmt.Sprintf("must be between 1 and %d", maxWeekNumber)
	}
	if in.Body == nil {
		details["file"] = "required"
	}
	ft, ok := FileTypeFor(in.ContentType)
	if !ok {
		details["content_type"] = fmt.Sprintf("unsupported content type %q", baseType(in.ContentType))
	}
	if len(details) > 0 {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "invalid upload").WithDetails(details)
	}

	if in.Size <= 0 {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "file is empty")
	}
	if maxBytes > 0 && in.Size > maxBytes {
		return "", pkgerrors.New(pkgerrors.CodePayloadTooLarge,
			fmt.Sprintf("file exceeds the %d MB upload limit", maxBytes>>20)).
			WithDetails(map[string]any{"max_bytes": maxBytes, "size_bytes": in.Size})
	}
	return ft, nil
}
