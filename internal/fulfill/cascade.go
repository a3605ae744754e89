package fulfill

import (
	"strings"

	"github.com/packman-project/packman/internal/pmerrors"
	"github.com/packman-project/packman/internal/schema"
)

// resolveRemotes maps a list of bare-or-namespace-qualified remote names to
// their *schema.Remote configs, porting get_remote_config_from_name's
// disambiguation: an exact (fully qualified) match wins outright, otherwise
// exactly one namespace:name entry whose tail equals the bare name must
// exist.
func (e *Engine) resolveRemotes(names []string) ([]*schema.Remote, error) {
	remotes := make([]*schema.Remote, 0, len(names))
	for _, name := range names {
		remote, err := e.resolveRemote(name)
		if err != nil {
			return nil, err
		}
		remotes = append(remotes, remote)
	}
	return remotes, nil
}

func (e *Engine) resolveRemote(name string) (*schema.Remote, error) {
	if remote, ok := e.RemotesByName[name]; ok {
		return remote, nil
	}

	var matched *schema.Remote
	var matchedName string
	for qualified, remote := range e.RemotesByName {
		_, tail, ok := strings.Cut(qualified, ":")
		if !ok || tail != name {
			continue
		}
		if matched != nil {
			return nil, pmerrors.New(pmerrors.KindRemoteAmbiguous, "remote %q matches both %q and %q; use the fully qualified name to disambiguate", name, matchedName, qualified)
		}
		matched = remote
		matchedName = qualified
	}
	if matched == nil {
		return nil, pmerrors.New(pmerrors.KindRemoteUndefined, "no configuration found for remote named %q", name)
	}
	return matched, nil
}
