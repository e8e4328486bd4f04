package cachefirst

import (
	"net/http"
	"strings"
	"time"
)

// overridable in tests
var timeNow = time.Now

// cacheable reports whether a proxied response may be stored: GET requests
// only, status 200 only, basic classification only.
func cacheable(r *http.Request, status int, basic bool) bool {
	return r.Method == http.MethodGet && status == http.StatusOK && basic
}

// acceptsHTML reports whether the request declared HTML among its accepted
// content types, i.e. whether it is a navigation.
func acceptsHTML(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}
