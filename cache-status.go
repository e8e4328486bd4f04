package cachefirst

import "fmt"

// CacheStatus describes how a request was handled, surfaced to clients in the
// Cache-Status response header.
type CacheStatus struct {
	hit       bool
	fwdReason string
	detail    string
}

func (cs *CacheStatus) Hit() {
	cs.hit = true
}

func (cs *CacheStatus) Forward(reason string) {
	cs.hit = false
	cs.fwdReason = reason
}

func (cs *CacheStatus) Detail(detail string) {
	cs.detail = detail
}

func (cs CacheStatus) String() string {
	status := "Cache-First; hit"
	if !cs.hit {
		status = "Cache-First; fwd"
		if cs.fwdReason != "" {
			status = fmt.Sprintf("%s=%s", status, cs.fwdReason)
		}
	}
	if cs.detail != "" {
		status = status + "; detail=" + cs.detail
	}
	return status
}

func hitStatus() CacheStatus {
	cs := CacheStatus{}
	cs.Hit()
	return cs
}

func missStatus() CacheStatus {
	cs := CacheStatus{}
	cs.Forward("uri-miss")
	return cs
}

func fallbackStatus() CacheStatus {
	cs := CacheStatus{}
	cs.Hit()
	cs.Detail("offline-fallback")
	return cs
}
