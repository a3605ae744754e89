// Package pmerrors defines the discriminated error kinds a packman
// operation can fail with (spec §7). Each kind is registered with a
// descriptor the way registry/api/errcode registers its ErrorCode values,
// but without the HTTP-status baggage a CLI tool has no use for.
package pmerrors

import (
	"fmt"
	"sort"
)

// Kind discriminates the error family so callers (and the top-level CLI
// translator) can switch on it programmatically instead of parsing messages.
type Kind string

const (
	KindParseError           Kind = "PARSE_ERROR"
	KindRemoteUndefined      Kind = "REMOTE_UNDEFINED"
	KindRemoteAmbiguous      Kind = "REMOTE_AMBIGUOUS"
	KindNoRemoteConfigured   Kind = "NO_REMOTE_CONFIGURED"
	KindPackageNotFound      Kind = "PACKAGE_NOT_FOUND"
	KindLabelNotFound        Kind = "LABEL_NOT_FOUND"
	KindLabelMalformed       Kind = "LABEL_MALFORMED"
	KindCredentialsMissing   Kind = "CREDENTIALS_MISSING"
	KindTransportIO          Kind = "TRANSPORT_IO"
	KindTransportUnreachable Kind = "TRANSPORT_UNREACHABLE"
	KindFileExists           Kind = "FILE_EXISTS"
	KindLinkBlocked          Kind = "LINK_BLOCKED"
	KindArchiveFailure       Kind = "ARCHIVE_FAILURE"
	KindScriptFailure        Kind = "SCRIPT_FAILURE"
	KindIntegrityFailure     Kind = "INTEGRITY_FAILURE"
	KindInternal             Kind = "INTERNAL"
)

// descriptors holds a human description per kind, analogous to
// errcode.ErrorDescriptor, used only for the default Error() rendering when
// a caller hasn't supplied a more specific message.
var descriptors = map[Kind]string{
	KindParseError:           "the manifest or configuration file is malformed",
	KindRemoteUndefined:      "a referenced remote is not defined",
	KindRemoteAmbiguous:      "a bare remote name matches more than one configured remote",
	KindNoRemoteConfigured:   "the dependency has no usable remote cascade",
	KindPackageNotFound:      "the package was not found on any searched remote",
	KindLabelNotFound:        "the label was not found on any searched remote or cached locally",
	KindLabelMalformed:       "the label body does not contain a base@version token",
	KindCredentialsMissing:   "credentials required by this remote are not set",
	KindTransportIO:          "a transport I/O error occurred",
	KindTransportUnreachable: "the remote is unreachable",
	KindFileExists:           "the target object already exists on the remote",
	KindLinkBlocked:          "a non-link path already occupies the requested link location",
	KindArchiveFailure:       "the archive tool exited with an error",
	KindScriptFailure:        "the postscript exited with a non-zero status",
	KindIntegrityFailure:     "the installed package failed integrity verification",
	KindInternal:             "an internal error occurred",
}

// Error is the concrete error type carried through every hot path
// (resolution, transport, hashing) as an explicit return value rather than
// a raised exception, per spec §9 DESIGN NOTES.
type Error struct {
	Kind    Kind
	Message string
	Cause   error

	// ExitCode, when non-zero, propagates verbatim as the process exit code
	// (spec §6: "a non-zero postscript exit propagates verbatim").
	ExitCode int

	// Remotes searched, for PACKAGE_NOT_FOUND / LABEL_NOT_FOUND surfacing
	// (spec §7 "User surface").
	Remotes []string
	// File/Line for PARSE_ERROR surfacing.
	File string
	Line int
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = descriptors[e.Kind]
	}
	if e.File != "" {
		if e.Line > 0 {
			return fmt.Sprintf("%s:%d: %s", e.File, e.Line, msg)
		}
		return fmt.Sprintf("%s: %s", e.File, msg)
	}
	if len(e.Remotes) > 0 {
		return fmt.Sprintf("%s (searched remotes: %v)", msg, e.Remotes)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Cause }

// New constructs an *Error of the given kind with a formatted message.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches kind and cause, keeping the cause's message visible via
// errors.Unwrap.
func Wrap(kind Kind, cause error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// WithRemotes annotates the error with the list of remotes that were
// searched before giving up, for PACKAGE_NOT_FOUND / LABEL_NOT_FOUND.
func (e *Error) WithRemotes(remotes []string) *Error {
	e.Remotes = append([]string(nil), remotes...)
	return e
}

// WithLocation annotates a PARSE_ERROR with file and line.
func (e *Error) WithLocation(file string, line int) *Error {
	e.File = file
	e.Line = line
	return e
}

// As reports whether err (or something it wraps) is a *Error of kind k.
func As(err error, k Kind) (*Error, bool) {
	var pe *Error
	for err != nil {
		if cast, ok := err.(*Error); ok {
			pe = cast
			break
		}
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = unwrapper.Unwrap()
	}
	if pe == nil || pe.Kind != k {
		return nil, false
	}
	return pe, true
}

// Kinds returns every registered kind, sorted, mainly for tests asserting
// the descriptor table stays complete.
func Kinds() []Kind {
	ks := make([]Kind, 0, len(descriptors))
	for k := range descriptors {
		ks = append(ks, k)
	}
	sort.Slice(ks, func(i, j int) bool { return ks[i] < ks[j] })
	return ks
}
