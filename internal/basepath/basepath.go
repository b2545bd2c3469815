// Package basepath works out where the site is mounted. Project sites on
// GitHub Pages live under /<repo>/, everything else under /.
package basepath

import (
	"net"
	"net/http"
	"strings"
)

const (
	Root        = "/"
	pagesSuffix = ".github.io"
)

// Resolve returns "/<first segment>/" for hosts ending in .github.io with a
// non-empty path, and "/" otherwise. The first segment is taken as the repo
// even when it names a file, so "/auth.html" resolves to "/auth.html/";
// callers serving root-level files on a Pages host must handle that.
func Resolve(host, path string) (base string) {
	defer func() {
		if recover() != nil {
			base = Root
		}
	}()

	if !strings.HasSuffix(strings.ToLower(host), pagesSuffix) {
		return Root
	}
	for _, part := range strings.Split(path, "/") {
		if part != "" {
			return "/" + part + "/"
		}
	}
	return Root
}

// FromRequest resolves the base path of the page being requested.
func FromRequest(r *http.Request) string {
	return Resolve(hostname(r), r.URL.Path)
}

// Join is the navigation helper: absolute pages pass through, relative
// ones are placed under base.
func Join(base, page string) string {
	if strings.HasPrefix(page, "/") {
		return page
	}
	if base == "" {
		base = Root
	}
	return base + page
}

// Origin returns scheme://host for r. A non-empty public origin wins.
func Origin(r *http.Request, public string) string {
	if public != "" {
		return strings.TrimSuffix(public, "/")
	}

	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = strings.TrimSpace(strings.Split(proto, ",")[0])
	}
	return scheme + "://" + forwardedHost(r)
}

func forwardedHost(r *http.Request) string {
	if fh := r.Header.Get("X-Forwarded-Host"); fh != "" {
		return strings.TrimSpace(strings.Split(fh, ",")[0])
	}
	return r.Host
}

func hostname(r *http.Request) string {
	host := forwardedHost(r)
	if h, _, err := net.SplitHostPort(host); err == nil {
		return h
	}
	return host
}
