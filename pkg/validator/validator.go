package validator

import (
	"mime"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
)

var (
	validate  = validator.New()
	sanitizer = bluemonday.UGCPolicy()

	tableNamePattern = regexp.MustCompile(`^[a-z][a-z0-9_]{0,63}$`)
)

var renderContexts = map[string]struct{}{
	"image":  {},
	"figure": {},
	"link":   {},
}

func Init() {
	validate = validator.New()

	sanitizer = bluemonday.UGCPolicy()

	registerCustomValidations(validate)

	if engine, ok := binding.Validator.Engine().(*validator.Validate); ok {
		registerCustomValidations(engine)
	}
}

func registerCustomValidations(v *validator.Validate) {
	v.RegisterValidation("render_context", validateRenderContext)
	v.RegisterValidation("table_name", validateTableName)
}

func Validate(s interface{}) error {
	return validate.Struct(s)
}

func SanitizeHTML(html string) string {
	return sanitizer.Sanitize(html)
}

func validateRenderContext(fl validator.FieldLevel) bool {
	_, ok := renderContexts[strings.ToLower(strings.TrimSpace(fl.Field().String()))]
	return ok
}

func validateTableName(fl validator.FieldLevel) bool {
	return ValidTableName(fl.Field().String())
}

// ValidTableName reports whether name is a plain lowercase table identifier.
func ValidTableName(name string) bool {
	return tableNamePattern.MatchString(name)
}

// ValidateContentType validates that the provided MIME type is in the allowed list
func ValidateContentType(contentType string, allowedMimeTypes []string) bool {
	if contentType == "" || len(allowedMimeTypes) == 0 {
		return false
	}

	mimeType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}

	mimeType = strings.ToLower(strings.TrimSpace(mimeType))

	for _, allowed := range allowedMimeTypes {
		allowed = strings.ToLower(strings.TrimSpace(allowed))

		if mimeType == allowed {
			return true
		}

		// Wildcard match (e.g., "image/*" matches "image/png")
		if strings.HasSuffix(allowed, "/*") {
			prefix := strings.TrimSuffix(allowed, "/*")
			if strings.HasPrefix(mimeType, prefix+"/") {
				return true
			}
		}
	}

	return false
}

// ValidateImageContentType validates the MIME types the image processor accepts.
func ValidateImageContentType(contentType string) bool {
	allowedMimeTypes := []string{
		"image/jpeg",
		"image/png",
		"image/gif",
		"image/webp",
		"image/svg+xml",
	}
	return ValidateContentType(contentType, allowedMimeTypes)
}
