package tee

import (
	"bytes"
	"net/http"
	"time"
)

// ResponseSaver is a http.ResponseWriter that buffers the response so the
// caller can decide what to do with it: relay it to a client, store it in the
// cache, or discard it and serve a fallback instead. Nothing reaches the
// network until WriteTo is called.
type ResponseSaver struct {
	body         *bytes.Buffer
	header       http.Header
	status       int
	wroteHeaders bool
	err          error
	CreatedAt    time.Time
}

// NewResponseSaver returns a new ResponseSaver.
func NewResponseSaver() *ResponseSaver {
	return &ResponseSaver{
		CreatedAt: time.Now(),
		body:      &bytes.Buffer{},
		header:    http.Header{},
	}
}

// Implementation of http.ResponseWriter
func (t *ResponseSaver) Header() http.Header {
	return t.header
}

// Implementation of http.ResponseWriter
func (t *ResponseSaver) WriteHeader(statusCode int) {
	t.wroteHeaders = true
	t.status = statusCode
}

// Implementation of http.ResponseWriter
func (t *ResponseSaver) Write(b []byte) (int, error) {
	if !t.wroteHeaders {
		t.WriteHeader(http.StatusOK)
	}
	return t.body.Write(b)
}

// Fail records a transport-level failure for the saved request.
func (t *ResponseSaver) Fail(err error) {
	t.err = err
}

// Err returns the recorded transport-level failure, if any.
func (t *ResponseSaver) Err() error {
	return t.err
}

// StatusCode returns the status code of the saved response.
func (t *ResponseSaver) StatusCode() int {
	return t.status
}

// Body returns the saved response body.
func (t *ResponseSaver) Body() []byte {
	return t.body.Bytes()
}

// WriteTo replays the saved response to the given writer.
func (t *ResponseSaver) WriteTo(w http.ResponseWriter) (int, error) {
	copyHeader(w.Header(), t.header)
	w.WriteHeader(t.status)
	return w.Write(t.body.Bytes())
}

func copyHeader(dst, src http.Header) {
	for k, vv := range src {
		for _, v := range vv {
			dst.Add(k, v)
		}
	}
}
