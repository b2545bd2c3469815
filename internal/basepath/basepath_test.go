package basepath

import (
	"crypto/tls"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		name string
		host string
		path string
		want string
	}{
		{"pages project", "delumenta.github.io", "/JMBN/index.html", "/JMBN/"},
		{"pages double slash", "delumenta.github.io", "//JMBN//auth.html", "/JMBN/"},
		{"pages upper case host", "Delumenta.GitHub.io", "/JMBN/", "/JMBN/"},
		{"pages root", "delumenta.github.io", "/", "/"},
		{"pages empty path", "delumenta.github.io", "", "/"},
		{"custom domain", "jmbn.example.com", "/JMBN/index.html", "/"},
		{"localhost", "localhost", "/JMBN/index.html", "/"},
		{"lookalike host", "github.io.example.com", "/JMBN/", "/"},
		{"empty host", "", "/JMBN/", "/"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Resolve(tt.host, tt.path))
		})
	}
}

func TestFromRequest(t *testing.T) {
	r := httptest.NewRequest("GET", "http://delumenta.github.io:443/JMBN/auth.html?code=x", nil)
	assert.Equal(t, "/JMBN/", FromRequest(r))

	r = httptest.NewRequest("GET", "http://127.0.0.1:8080/JMBN/auth.html", nil)
	assert.Equal(t, "/", FromRequest(r))

	r = httptest.NewRequest("GET", "http://127.0.0.1:8080/JMBN/auth.html", nil)
	r.Header.Set("X-Forwarded-Host", "delumenta.github.io")
	assert.Equal(t, "/JMBN/", FromRequest(r))
}

func TestJoin(t *testing.T) {
	assert.Equal(t, "/JMBN/auth.html", Join("/JMBN/", "auth.html"))
	assert.Equal(t, "/auth.html", Join("/", "auth.html"))
	assert.Equal(t, "/elsewhere.html", Join("/JMBN/", "/elsewhere.html"))
	assert.Equal(t, "/JMBN/", Join("/JMBN/", ""))
	assert.Equal(t, "/index.html", Join("", "index.html"))
}

func TestOrigin(t *testing.T) {
	r := httptest.NewRequest("GET", "http://localhost:8080/auth.html", nil)
	assert.Equal(t, "http://localhost:8080", Origin(r, ""))

	r.TLS = &tls.ConnectionState{}
	assert.Equal(t, "https://localhost:8080", Origin(r, ""))

	r = httptest.NewRequest("GET", "http://10.0.0.2/auth.html", nil)
	r.Header.Set("X-Forwarded-Proto", "https, http")
	r.Header.Set("X-Forwarded-Host", "delumenta.github.io")
	assert.Equal(t, "https://delumenta.github.io", Origin(r, ""))

	assert.Equal(t, "https://jmbn.example.com", Origin(r, "https://jmbn.example.com/"))
}
