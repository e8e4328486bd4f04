// Package codec serializes HTTP responses for cache storage.
package codec

import (
	"net/http"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// StoredResponse is the cached form of an origin response.
type StoredResponse struct {
	Status int         `cbor:"1,keyasint"`
	Header http.Header `cbor:"2,keyasint"`
	Body   []byte      `cbor:"3,keyasint"`
	// The value of the clock at the time of the request that resulted in the
	// stored response.
	RequestedAt time.Time `cbor:"4,keyasint"`
	// The value of the clock at the time the response was received.
	ReceivedAt time.Time `cbor:"5,keyasint"`
}

// Encode converts a stored response to its cache entry bytes.
func Encode(s StoredResponse) ([]byte, error) {
	return cbor.Marshal(s)
}

// Decode converts cache entry bytes back to a stored response.
// Pending sync payloads (raw JSON) do not decode as stored responses,
// so a corrupt or foreign entry surfaces as an error here.
func Decode(b []byte) (StoredResponse, error) {
	var s StoredResponse
	err := cbor.Unmarshal(b, &s)
	return s, err
}

// Write replays the stored response to the given writer.
func (s StoredResponse) Write(w http.ResponseWriter) error {
	for name, values := range s.Header {
		for _, value := range values {
			w.Header().Add(name, value)
		}
	}
	w.WriteHeader(s.Status)
	_, err := w.Write(s.Body)
	return err
}
