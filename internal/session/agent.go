package session

import (
	"strings"

	"github.com/mssola/useragent"

	"github.com/and161185/blog-keeper/internal/model"
)

// ParseFingerprint extracts the browser and operating system identity from a
// User-Agent header. Unknown components stay empty and still compare equal.
func ParseFingerprint(userAgent string) model.Fingerprint {
	ua := useragent.New(userAgent)
	name, version := ua.Browser()
	major, _, _ := strings.Cut(version, ".")
	osInfo := ua.OSInfo()
	return model.Fingerprint{
		BrowserName:    name,
		BrowserVersion: version,
		BrowserMajor:   major,
		OSName:         osInfo.Name,
		OSVersion:      osInfo.Version,
	}
}

func sameBrowser(a, b model.Fingerprint) bool {
	return a.BrowserName == b.BrowserName && a.BrowserVersion == b.BrowserVersion && a.BrowserMajor == b.BrowserMajor
}

func sameOS(a, b model.Fingerprint) bool {
	return a.OSName == b.OSName && a.OSVersion == b.OSVersion
}
