package validators

import (
	"net/http"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"

	pkgerrors "github.com/mivahub/mivahub-backend/pkg/errors"
)

// OptionalFormUUID reads a multipart or urlencoded field as a uuid. A blank
// field yields nil.
func OptionalFormUUID(r *http.Request, key string) (*uuid.UUID, error) {
	raw := strings.TrimSpace(r.FormValue(key))
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "form field must be a uuid").WithDetails(map[string]any{"field": key})
	}
	return &id, nil
}

// OptionalFormInt reads a form field as an integer. A blank field yields nil;
// range checks belong to the service.
func OptionalFormInt(r *http.Request, key string) (*int, error) {
	raw := strings.TrimSpace(r.FormValue(key))
	if raw == "" {
		return nil, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "form field must be numeric").WithDetails(map[string]any{"field": key})
	}
	return &value, nil
}

// OptionalFormBool reads a form or query flag. A blank field is false.
func OptionalFormBool(r *http.Request, key string) (bool, error) {
	raw := strings.TrimSpace(r.FormValue(key))
	if raw == "" {
		return false, nil
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "field must be a boolean").WithDetails(map[string]any{"field": key})
	}
	return value, nil
}

// SanitizeText trims input, drops control characters other than newlines and
// tabs, and cuts it to at most maxRunes runes.
func SanitizeText(input string, maxRunes int) string {
	cleaned := strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) || r == utf8.RuneError {
			return -1
		}
		return r
	}, strings.TrimSpace(input))

	if maxRunes > 0 && utf8.RuneCountInString(cleaned) > maxRunes {
		cleaned = string([]rune(cleaned)[:maxRunes])
	}
	return strings.TrimSpace(cleaned)
}
