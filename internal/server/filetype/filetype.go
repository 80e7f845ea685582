// Package filetype resolves MIME types and virtual paths for uploads.
// A virtual path either names the exact destination file (/docs/report.pdf)
// or just a target catalog (/docs/), in which case the filename comes from
// the uploaded file itself.
package filetype

import (
	"fmt"
	"mime"
	"path"
	"strings"

	"github.com/avezhov/filestorage/internal/common"
)

// ExtensionsForType returns the filename extensions associated with the
// declared content type. An unknown type, or one that maps to no known
// extension, fails with ErrFileType.
func ExtensionsForType(contentType string) ([]string, error) {
	if contentType == "" {
		return nil, fmt.Errorf("%w: no content type declared", common.ErrFileType)
	}
	exts, err := mime.ExtensionsByType(contentType)
	if err != nil || len(exts) == 0 {
		return nil, fmt.Errorf("%w: %s", common.ErrFileType, contentType)
	}
	return exts, nil
}

// TypeFromPath guesses a MIME type from the trailing extension of a path.
// Returns "" when the path carries no recognizable extension.
func TypeFromPath(p string) string {
	ext := path.Ext(p)
	if ext == "" {
		return ""
	}
	t := mime.TypeByExtension(ext)
	if t == "" {
		return ""
	}
	return baseMediaType(t)
}

// Reconcile checks a declared content type against the type implied by the
// raw path. A present-but-different implied type fails with
// ErrFileTypeMismatch. On success it returns the effective type (the
// path-implied one when present, the declared one otherwise) and whether
// the path already names a file.
func Reconcile(declaredType, rawPath string) (string, bool, error) {
	declared := baseMediaType(declaredType)

	implied := TypeFromPath(rawPath)
	if implied == "" {
		return declared, false, nil
	}
	if implied != declared {
		return "", false, fmt.Errorf("%w: %s vs %s", common.ErrFileTypeMismatch, declared, implied)
	}
	return implied, true, nil
}

// ResolvePath derives the final stored path, display filename and catalog
// from the raw virtual path. When hasTypeInPath is set, the raw path already
// ends in a filename and is used unchanged; otherwise the raw path is a pure
// catalog and uploadedName supplies the filename (ErrFileNameMissing when
// absent). Paths with empty, "." or ".." segments fail with ErrFilePath:
// the virtual path maps onto storage locations, so traversal segments must
// never survive resolution.
func ResolvePath(rawPath, uploadedName string, hasTypeInPath bool) (finalPath, fileName, catalog string, err error) {
	if !validVirtualPath(rawPath) {
		return "", "", "", fmt.Errorf("%w: %s", common.ErrFilePath, rawPath)
	}

	if hasTypeInPath {
		dir, file := path.Split(rawPath)
		return rawPath, file, strings.TrimSuffix(dir, "/"), nil
	}

	if uploadedName == "" {
		return "", "", "", common.ErrFileNameMissing
	}
	if !validFileName(uploadedName) {
		return "", "", "", fmt.Errorf("%w: %s", common.ErrFilePath, uploadedName)
	}

	catalog = strings.TrimSuffix(rawPath, "/")
	return catalog + "/" + uploadedName, uploadedName, catalog, nil
}

// validVirtualPath reports whether p is an absolute virtual path whose
// segments are all non-empty and free of "." and "..". A bare "/" is the
// root catalog and is allowed.
func validVirtualPath(p string) bool {
	if p == "/" {
		return true
	}
	if !strings.HasPrefix(p, "/") {
		return false
	}
	for _, seg := range strings.Split(strings.TrimSuffix(p[1:], "/"), "/") {
		if seg == "" || seg == "." || seg == ".." {
			return false
		}
	}
	return true
}

// validFileName reports whether name is a single plain path segment.
func validFileName(name string) bool {
	return name != "." && name != ".." && !strings.ContainsAny(name, "/\\")
}

// baseMediaType strips parameters such as "; charset=utf-8" and lowercases
// the media type. Unparseable values pass through trimmed.
func baseMediaType(t string) string {
	parsed, _, err := mime.ParseMediaType(t)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(t))
	}
	return parsed
}
