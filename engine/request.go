package engine

import (
	"time"
	"unicode/utf8"

	"github.com/franksops/trickle/wire"
)

// Field bounds for TransferRequest. Longer values are truncated.
const (
	MaxCredentialLen   = 63
	MaxHostLen         = 63
	MaxResourcePathLen = 399
	MaxLocalPathLen    = 127
)

// Kind selects the state machine a request runs once dispatched.
type Kind int

const (
	KindUpload Kind = iota + 1
	KindDownload
)

func (k Kind) String() string {
	switch k {
	case KindUpload:
		return "upload"
	case KindDownload:
		return "download"
	default:
		return "unknown"
	}
}

// TransferRequest describes one pending transfer between a local file and an
// HTTP resource.
type TransferRequest struct {
	// ID correlates callbacks, log lines and journal records.
	ID   uint64
	Kind Kind

	// Credential is sent verbatim after "Authorization: Basic ".
	Credential   string
	Host         string
	Port         int
	ResourcePath string
	LocalPath    string

	EnqueuedAt time.Time

	// DispatchedAt is zero until the dispatcher pops the request.
	DispatchedAt time.Time
}

// NewTransferRequest builds a request, truncating every string field to its
// bound.
func NewTransferRequest(id uint64, kind Kind, credential, host string, port int, resourcePath, localPath string, now time.Time) TransferRequest {
	return TransferRequest{
		ID:           id,
		Kind:         kind,
		Credential:   truncate(credential, MaxCredentialLen),
		Host:         truncate(host, MaxHostLen),
		Port:         port,
		ResourcePath: truncate(resourcePath, MaxResourcePathLen),
		LocalPath:    truncate(localPath, MaxLocalPathLen),
		EnqueuedAt:   now,
	}
}

// requestKey is the identity used for queue deduplication. Kind is not part
// of it: an upload and a download of the same file and resource collide.
type requestKey struct {
	credential   string
	host         string
	port         int
	resourcePath string
	localPath    string
}

func (r TransferRequest) key() requestKey {
	return requestKey{
		credential:   r.Credential,
		host:         r.Host,
		port:         r.Port,
		resourcePath: r.ResourcePath,
		localPath:    r.LocalPath,
	}
}

// Target returns the wire addressing for the request.
func (r TransferRequest) Target() wire.Target {
	return wire.Target{
		Credential: r.Credential,
		Host:       r.Host,
		Port:       r.Port,
		Path:       r.ResourcePath,
	}
}

func (r TransferRequest) complete() bool {
	return r.Host != "" && r.ResourcePath != "" && r.LocalPath != ""
}

// truncate cuts s to at most max bytes without splitting a UTF-8 sequence.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
