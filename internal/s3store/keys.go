package s3store

import (
	"fmt"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

const uploadPrefix = "uploads/"

var unsafeChars = regexp.MustCompile(`[^\w.\-()+\s]`)

// SanitizeFilename strips path segments and anything that cannot survive a
// key or Content-Disposition header.
func SanitizeFilename(name string) string {
	if name == "" {
		name = "file.bin"
	}
	return unsafeChars.ReplaceAllString(path.Base(name), "_")
}

// UploadKey builds the canonical source key: uploads/{owner}/{date}/{uuid}_{name}.
func UploadKey(owner, filename string) string {
	date := time.Now().UTC().Format("2006-01-02")
	return fmt.Sprintf("%s%s/%s/%s_%s", uploadPrefix, owner, date, uuid.NewString(), SanitizeFilename(filename))
}

// DerivedKey names an artifact produced from sourceKey:
// {category}/{owner}/{basename}_{suffix}.{ext}. Downstream consumers rely
// on this shape to locate artifacts, so it must stay stable.
func DerivedKey(category, owner, sourceKey, suffix, ext string) string {
	base := path.Base(sourceKey)
	if i := strings.LastIndex(base, "."); i > 0 {
		base = base[:i]
	}
	return fmt.Sprintf("%s/%s/%s_%s.%s", category, owner, base, suffix, ext)
}

// OwnerFromKey recovers the owner segment of an uploads/{owner}/... key.
// Returns "" when the key does not follow the convention.
func OwnerFromKey(key string) string {
	if !strings.HasPrefix(strings.ToLower(key), uploadPrefix) {
		return ""
	}
	rest := key[len(uploadPrefix):]
	if i := strings.Index(rest, "/"); i > 0 {
		return rest[:i]
	}
	return ""
}

// BaseNoExt returns the file name of a key without its extension.
func BaseNoExt(key string) string {
	base := path.Base(key)
	if i := strings.LastIndex(base, "."); i > 0 {
		return base[:i]
	}
	return base
}
