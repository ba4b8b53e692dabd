package media

import (
	"mime"
	"path"
	"regexp"
	"strings"
)

// DefaultFilename is used when the response carries no usable name.
const DefaultFilename = "video"

var dispositionFilename = regexp.MustCompile(`filename[^;=\n]*=(?:"([^"]*)"|'([^']*)'|([^;\n]*))`)

// FilenameFromHeaders derives a local file name from the Content-Disposition
// and Content-Type headers of a download response. It never fails: missing or
// malformed headers fall back to DefaultFilename with an extension inferred
// from the content type.
func FilenameFromHeaders(disposition, contentType string) string {
	name := sanitizeFilename(parseDisposition(disposition))
	if name == "" {
		name = DefaultFilename
	}
	if path.Ext(name) == "" {
		name += "." + ExtensionForContentType(contentType)
	}
	return name
}

// ExtensionForContentType maps a media content type to a file extension,
// defaulting to mp4.
func ExtensionForContentType(contentType string) string {
	ct := strings.ToLower(contentType)
	switch {
	case strings.Contains(ct, "mp4"):
		return "mp4"
	case strings.Contains(ct, "webm"):
		return "webm"
	case strings.Contains(ct, "mkv"), strings.Contains(ct, "matroska"):
		return "mkv"
	default:
		return "mp4"
	}
}

func parseDisposition(disposition string) string {
	disposition = strings.TrimSpace(disposition)
	if disposition == "" {
		return ""
	}
	if _, params, err := mime.ParseMediaType(disposition); err == nil {
		if name := strings.Trim(strings.TrimSpace(params["filename"]), `"'`); name != "" {
			return name
		}
	}
	m := dispositionFilename.FindStringSubmatch(disposition)
	if m == nil {
		return ""
	}
	for _, group := range m[1:] {
		if v := strings.TrimSpace(group); v != "" {
			return strings.Trim(v, `"'`)
		}
	}
	return ""
}

func sanitizeFilename(name string) string {
	name = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\':
			return '_'
		case 0:
			return -1
		}
		return r
	}, name)
	name = strings.TrimSpace(name)
	if name == "." || name == ".." {
		return ""
	}
	return name
}
