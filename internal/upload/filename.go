// Package upload validates and stores uploaded scan images.
package upload

import (
	"path/filepath"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/mriscan/braintumor-go/internal/conf"
)

// DefaultExtensions are the accepted image extensions.
var DefaultExtensions = conf.DefaultAllowedExtensions

// Allowed reports whether filename has one of the default image extensions.
func Allowed(filename string) bool {
	return allowedIn(filename, DefaultExtensions)
}

func allowedIn(filename string, extensions []string) bool {
	dot := strings.LastIndexByte(filename, '.')
	if filename == "" || dot < 0 {
		return false
	}
	ext := strings.ToLower(filename[dot+1:])
	for _, allowed := range extensions {
		if ext == strings.ToLower(strings.TrimPrefix(allowed, ".")) {
			return true
		}
	}
	return false
}

// SecureFilename reduces name to a safe ASCII file name that cannot
// traverse directories. It returns "" when nothing usable remains.
//
//	"My cool movie.mov"     -> "My_cool_movie.mov"
//	"../../../etc/passwd"   -> "etc_passwd"
//	"i contain cool ümläuts.txt" -> "i_contain_cool_umlauts.txt"
func SecureFilename(name string) string {
	decomposed := norm.NFKD.String(name)

	var b strings.Builder
	b.Grow(len(decomposed))
	for _, r := range decomposed {
		switch {
		case r > unicode.MaxASCII:
			// drops combining marks left by decomposition
		case r == '/' || r == '\\' || r == filepath.Separator:
			b.WriteByte(' ')
		default:
			b.WriteRune(r)
		}
	}

	joined := strings.Join(strings.Fields(b.String()), "_")

	var out strings.Builder
	out.Grow(len(joined))
	for i := 0; i < len(joined); i++ {
		c := joined[i]
		if c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' ||
			c == '_' || c == '.' || c == '-' {
			out.WriteByte(c)
		}
	}

	return strings.Trim(out.String(), "._")
}
