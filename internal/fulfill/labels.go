package fulfill

import (
	"context"

	"github.com/packman-project/packman/internal/cachestore"
	"github.com/packman-project/packman/internal/resolver"
	"github.com/packman-project/packman/internal/schema"
)

// ResolveLabels walks deps and overwrites every dependency whose resolved
// child is a Label with the Package its body dereferences to, porting
// process_labels_in_dependencies. Callers run this once, before Run, the
// same two-step shape pull_cmd uses (label pass, then the fulfillment
// pass) rather than interleaving label fetches into the main loop.
func (e *Engine) ResolveLabels(ctx context.Context, deps map[string]*schema.Dependency) error {
	for _, dep := range deps {
		if len(dep.Children) != 1 {
			continue
		}
		label, ok := dep.Children[0].(*schema.Label)
		if !ok {
			continue
		}

		remoteNames := append(append([]string{}, label.Remotes...), e.Cascade...)
		remotes, err := e.resolveRemotes(remoteNames)
		if err != nil {
			return err
		}

		base, version, err := resolver.DereferenceLabel(ctx, label, remotes, transportFetcher{e}, resolver.LabelOptions{
			LabelsDir:      e.LabelsDir,
			RemoveOnUpdate: e.RemoveOnLabelUpdate,
			Remover:        storeRemover{e.Store},
			Locker:         e.Locker,
		})
		if err != nil {
			return err
		}
		dep.Children[0] = &schema.Package{Name: base, Version: version, Remotes: label.Remotes}
	}
	return nil
}

// transportFetcher adapts Engine.Transports to resolver.LabelFetcher,
// letting label dereference reuse whichever transport backend a remote
// resolves to without internal/resolver depending on internal/transport.
type transportFetcher struct{ engine *Engine }

func (f transportFetcher) Locate(ctx context.Context, remote *schema.Remote, fileName string) (string, bool, error) {
	backend, err := f.engine.Transports.Get(remote)
	if err != nil {
		return "", false, err
	}
	return backend.Locate(ctx, remote, fileName)
}

func (f transportFetcher) Download(ctx context.Context, remote *schema.Remote, location, destPath string) error {
	backend, err := f.engine.Transports.Get(remote)
	if err != nil {
		return err
	}
	return backend.Download(ctx, remote, location, destPath)
}

// storeRemover adapts cachestore.Store to resolver.PreviousPackageRemover.
type storeRemover struct{ store *cachestore.Store }

func (r storeRemover) RemoveIfInstalled(base, version string) error {
	status, path := r.store.Status(base, version)
	if status == cachestore.StatusMissing {
		return nil
	}
	return cachestore.Remove(path)
}
