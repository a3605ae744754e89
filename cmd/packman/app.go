// cmd/packman wires every internal package into the packman CLI surface
// (spec.md §6), replacing the teacher's legacy codegangsta/cli-based
// cmd/dist with spf13/cobra, grounded on registry/root.go's cobra.Command
// tree (Use/Short/Long/Run, cmd.Usage()+os.Exit(1) on a bootstrap error).
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/packman-project/packman/internal/cachestore"
	"github.com/packman-project/packman/internal/config"
	"github.com/packman-project/packman/internal/credstore"
	"github.com/packman-project/packman/internal/plog"
	"github.com/packman-project/packman/internal/pmerrors"
	"github.com/packman-project/packman/internal/resolver"
	"github.com/packman-project/packman/internal/schema"
	"github.com/packman-project/packman/internal/transport"
)

const (
	envPackagesRoot = "PM_PACKAGES_ROOT"
	envS3ID         = "PM_S3_ID"
	envS3Key        = "PM_S3_KEY"
	envGTLID        = "PM_GTL_ID"
	envGTLKey       = "PM_GTL_KEY"
	envVerbosity    = "PM_VERBOSITY"
)

// app bundles everything a command needs once the global config has been
// loaded: the merged remote registry/cascade, a caching transport factory,
// and the on-disk package cache, equivalent to the module-level globals
// read_configuration populates (REMOTES_MAP/REMOTES_CASCADE_DEFAULT/CACHE_CONFIG).
type app struct {
	Config     *config.Merged
	Transports *transport.CachingFactory
	Creds      *credstore.Store
	Store      *cachestore.Store
}

// newApp loads the merged configuration and builds the shared transport
// factory and credential cache every command needs.
func newApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	factory, err := transport.NewCachingFactory(16)
	if err != nil {
		return nil, err
	}

	credsPath := ""
	if home, err := os.UserHomeDir(); err == nil {
		credsPath = home + string(os.PathSeparator) + ".packman-credentials"
	}
	creds, err := credstore.Open(credsPath)
	if err != nil {
		return nil, err
	}

	a := &app{Config: cfg, Transports: factory, Creds: creds}
	if root := os.Getenv(envPackagesRoot); root != "" {
		a.Store = cachestore.New(root)
	}
	return a, nil
}

func (a *app) requireStore() (*cachestore.Store, error) {
	if a.Store == nil {
		return nil, pmerrors.New(pmerrors.KindTransportIO, "%s is not set; required for this command", envPackagesRoot)
	}
	return a.Store, nil
}

// resolveRemote looks a remote up by its bare or namespace-qualified name
// across the merged config plus any extra remote table (typically a
// project's own RemotesMap), resolving credentials from the environment or
// the credential cache the way get_s3_credentials/get_gtl_credentials do
// when a remote's own config doesn't already carry them. Porting
// get_remote_config_from_name, the third copy of which already lives in
// internal/fulfill, internal/publish, and internal/mirror; this one
// operates over the CLI's own merged name table instead of an Engine's.
func (a *app) resolveRemote(name string, extra map[string]*schema.Remote) (*schema.Remote, error) {
	remote, ok := extra[name]
	if !ok {
		remote, ok = a.Config.RemotesMap[name]
	}
	if !ok {
		var matched *schema.Remote
		var matchedName string
		search := func(table map[string]*schema.Remote) error {
			for qualified, r := range table {
				_, tail, found := strings.Cut(qualified, ":")
				if !found || tail != name {
					continue
				}
				if matched != nil && matched != r {
					return pmerrors.New(pmerrors.KindRemoteAmbiguous, "remote %q matches both %q and %q; use the fully qualified name to disambiguate", name, matchedName, qualified)
				}
				matched, matchedName = r, qualified
			}
			return nil
		}
		if err := search(extra); err != nil {
			return nil, err
		}
		if err := search(a.Config.RemotesMap); err != nil {
			return nil, err
		}
		if matched == nil {
			return nil, pmerrors.New(pmerrors.KindRemoteUndefined, "remote %q is not defined", name)
		}
		remote = matched
	}

	if err := a.fillCredentialsFromEnv(remote); err != nil {
		return nil, err
	}
	return remote, nil
}

func (a *app) resolveRemotes(names []string, extra map[string]*schema.Remote) ([]*schema.Remote, error) {
	remotes := make([]*schema.Remote, 0, len(names))
	for _, name := range names {
		r, err := a.resolveRemote(name, extra)
		if err != nil {
			return nil, err
		}
		remotes = append(remotes, r)
	}
	return remotes, nil
}

// fillCredentialsFromEnv fills remote.CredentialID/CredentialKey from the
// credential cache or the environment when the remote's own config didn't
// already supply them, porting get_credentials' gtl/s3 dispatch. HTTP(S)
// remotes and ones with explicit <credentials/> are left untouched.
func (a *app) fillCredentialsFromEnv(remote *schema.Remote) error {
	if remote.CredentialID != "" && remote.CredentialKey != "" {
		return nil
	}

	if a.Creds != nil {
		if cred, ok := a.Creds.Get(remote.Name); ok {
			remote.CredentialID, remote.CredentialKey = cred.ID, cred.Key
			return nil
		}
	}

	var idVar, keyVar, what string
	switch {
	case strings.HasPrefix(strings.ToLower(remote.Type), "s3"):
		idVar, keyVar, what = envS3ID, envS3Key, "S3"
	case strings.HasPrefix(strings.ToLower(remote.Type), "gtl"):
		idVar, keyVar, what = envGTLID, envGTLKey, "GTL"
	default:
		return nil
	}

	id, key := os.Getenv(idVar), os.Getenv(keyVar)
	if id == "" || key == "" {
		return pmerrors.New(pmerrors.KindCredentialsMissing, "%s credentials are required for remote %q; set %s/%s", what, remote.Name, idVar, keyVar)
	}
	remote.CredentialID, remote.CredentialKey = id, key
	if a.Creds != nil {
		_ = a.Creds.Put(remote.Name, credstore.Credential{ID: id, Key: key})
	}
	return nil
}

// labelLocker returns a resolver.Locker backed by the first remote in the
// cascade that carries a redisAddr extra attribute, or nil when none do --
// the redis advisory lock is an opt-in contention optimization (SPEC_FULL.md
// "additional domain wiring"), never required for a single-machine setup.
func (a *app) labelLocker(remotes []*schema.Remote) resolver.Locker {
	for _, r := range remotes {
		if addr := r.Extra["redisAddr"]; addr != "" {
			return resolver.NewRedisLocker(addr)
		}
	}
	return nil
}

// defaultCascade returns names, if non-empty, otherwise the merged config's
// default remote cascade, porting the "-r overrides the environment
// setting" rule spec.md §6 states for every command accepting -r.
func (a *app) defaultCascade(names []string) []string {
	if len(names) > 0 {
		return names
	}
	return a.Config.Remotes
}

// verbosityFromFlags turns the -v/-q/-s global flags (and PM_VERBOSITY when
// none are given) into a plog.Verbosity.
func verbosityFromFlags(verbose, quiet, silent bool) plog.Verbosity {
	switch {
	case silent:
		return plog.VerbositySilent
	case quiet:
		return plog.VerbosityQuiet
	case verbose:
		return plog.VerbosityVerbose
	}
	switch os.Getenv(envVerbosity) {
	case "verbose":
		return plog.VerbosityVerbose
	case "quiet":
		return plog.VerbosityQuiet
	case "silent":
		return plog.VerbositySilent
	default:
		return plog.VerbosityDefault
	}
}

// exitWithError renders err the way main_with_exception_handler does
// (message to stderr, exit code 1 unless the error carries its own, per
// spec.md §6's "a non-zero postscript exit propagates verbatim" rule).
func exitWithError(err error) {
	fmt.Fprintln(os.Stderr, "error:", err)
	if pe, ok := err.(*pmerrors.Error); ok && pe.ExitCode != 0 {
		os.Exit(pe.ExitCode)
	}
	os.Exit(1)
}

// splitPostscriptArgs splits a "-ps" flag value into a command plus its
// arguments, porting postscript_args_parse's shlex.split(posix=False)
// behavior: fields are whitespace-separated except inside double quotes,
// and surrounding double quotes are stripped from each resulting token.
func splitPostscriptArgs(value string) []string {
	var fields []string
	var current strings.Builder
	inQuotes := false
	flush := func() {
		if current.Len() > 0 {
			fields = append(fields, strings.Trim(current.String(), `"`))
			current.Reset()
		}
	}
	for _, r := range value {
		switch {
		case r == '"':
			inQuotes = !inQuotes
			current.WriteRune(r)
		case (r == ' ' || r == '\t' || r == '\n' || r == '\r') && !inQuotes:
			flush()
		default:
			current.WriteRune(r)
		}
	}
	flush()
	return fields
}

func validShellVariableName(name string) string {
	var b strings.Builder
	for _, r := range name {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}
