package resolver

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/uuid"

	"github.com/packman-project/packman/internal/pmerrors"
	"github.com/packman-project/packman/internal/schema"
)

// LabelFetcher is the subset of internal/transport a label dereference
// needs: locate a label's body on a named remote, and fetch it. Declared
// here (rather than imported from internal/transport) so this package has
// no dependency on any concrete transport backend.
type LabelFetcher interface {
	Locate(ctx context.Context, remote *schema.Remote, fileName string) (url string, found bool, err error)
	Download(ctx context.Context, remote *schema.Remote, url, destPath string) error
}

// PreviousPackageRemover lets the label dereference remove the package a
// stale label pointed at, the way process_label calls
// packager.remove_package under removePreviousPackageOnLabelUpdate.
type PreviousPackageRemover interface {
	RemoveIfInstalled(basename, version string) error
}

// Locker provides a short-lived mutual-exclusion lock keyed by name, letting
// DereferenceLabel avoid two processes on a shared PM_PACKAGES_ROOT racing
// the remote cascade for the same stale label at once. Optional: a nil
// Locker in LabelOptions (the default) falls back to the plain
// atomic-rename protocol commitLabel already provides on its own.
type Locker interface {
	// Lock acquires the lock for key and returns a func that releases it.
	// An error here means "couldn't get the lock" and is never treated as
	// fatal by DereferenceLabel -- the lock is a contention optimization,
	// not a correctness requirement, so the caller proceeds unlocked.
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// LabelOptions configures DereferenceLabel.
type LabelOptions struct {
	LabelsDir      string
	RemoveOnUpdate bool
	Remover        PreviousPackageRemover
	Now            func() time.Time
	Locker         Locker
}

func (o LabelOptions) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

// DereferenceLabel resolves label to a base@version token, porting
// process_label: prefer a still-valid local cache entry, otherwise walk
// remotes in order until one serves the label body, falling back to a
// stale local copy if every remote fails, and erroring only if neither a
// remote nor a local copy is available.
func DereferenceLabel(ctx context.Context, label *schema.Label, remotes []*schema.Remote, fetcher LabelFetcher, opts LabelOptions) (base, version string, err error) {
	if err := os.MkdirAll(opts.LabelsDir, 0o755); err != nil {
		return "", "", pmerrors.Wrap(pmerrors.KindTransportIO, err, "creating labels directory")
	}

	fileName := label.Name
	if !strings.HasSuffix(fileName, ".txt") {
		fileName += ".txt"
	}
	localPath := filepath.Join(opts.LabelsDir, fileName)

	var body string
	localFound := false
	if info, statErr := os.Stat(localPath); statErr == nil {
		localFound = true
		if isLocalLabelStillValid(info.ModTime(), opts.now(), label.CacheExpiration) {
			data, readErr := os.ReadFile(localPath)
			if readErr != nil {
				return "", "", pmerrors.Wrap(pmerrors.KindTransportIO, readErr, "reading cached label %q", fileName)
			}
			body = strings.TrimSpace(string(data))
		}
	}

	if body == "" {
		if opts.Locker != nil {
			if unlock, lockErr := opts.Locker.Lock(ctx, fileName); lockErr == nil {
				defer unlock()
				// Another process may have refreshed the label while we
				// waited for the lock; re-check before refetching.
				if info, statErr := os.Stat(localPath); statErr == nil && isLocalLabelStillValid(info.ModTime(), opts.now(), label.CacheExpiration) {
					if data, readErr := os.ReadFile(localPath); readErr == nil {
						body = strings.TrimSpace(string(data))
					}
				}
			}
		}
	}

	if body == "" {
		for _, remote := range remotes {
			url, found, locateErr := fetcher.Locate(ctx, remote, fileName)
			if locateErr != nil {
				return "", "", pmerrors.Wrap(pmerrors.KindTransportIO, locateErr, "locating label %q on remote %q", fileName, remote.Name)
			}
			if !found {
				continue
			}

			tmpName, uErr := uuid.NewV4()
			if uErr != nil {
				return "", "", pmerrors.Wrap(pmerrors.KindInternal, uErr, "generating temporary label name")
			}
			tmpPath := filepath.Join(opts.LabelsDir, tmpName.String()+".txt")

			if dlErr := fetcher.Download(ctx, remote, url, tmpPath); dlErr != nil {
				return "", "", pmerrors.Wrap(pmerrors.KindTransportIO, dlErr, "downloading label %q from remote %q", fileName, remote.Name)
			}

			data, readErr := os.ReadFile(tmpPath)
			if readErr != nil {
				return "", "", pmerrors.Wrap(pmerrors.KindTransportIO, readErr, "reading downloaded label %q", fileName)
			}
			fetched := strings.TrimSpace(string(data))
			if fetched == "" {
				os.Remove(tmpPath)
				continue
			}

			if err := commitLabel(tmpPath, localPath, opts); err != nil {
				return "", "", err
			}
			body = fetched
			break
		}
	}

	if body == "" {
		if localFound {
			data, readErr := os.ReadFile(localPath)
			if readErr != nil {
				return "", "", pmerrors.Wrap(pmerrors.KindTransportIO, readErr, "reading stale cached label %q", fileName)
			}
			body = strings.TrimSpace(string(data))
		} else {
			return "", "", pmerrors.New(pmerrors.KindLabelNotFound, "no label called %q found on a remote server or cached locally", fileName).WithRemotes(remoteNames(remotes))
		}
	}

	return BasenameAndVersion(body)
}

// isLocalLabelStillValid reports whether a label file aged diff seconds is
// still usable. The resolved boundary decision (see DESIGN.md) is diff <=
// cacheExpiration counts as valid, the inverse of the original's strict `>`.
func isLocalLabelStillValid(modTime, now time.Time, cacheExpiration int) bool {
	diff := int(now.Sub(modTime).Seconds())
	return diff <= cacheExpiration
}

// commitLabel promotes tmpPath over localPath, removing (and optionally
// uninstalling) whatever label used to be there, porting the
// rename-with-OSError-tolerance block of process_label.
func commitLabel(tmpPath, localPath string, opts LabelOptions) error {
	if _, err := os.Stat(localPath); err == nil {
		if opts.RemoveOnUpdate && opts.Remover != nil {
			if old, readErr := os.ReadFile(localPath); readErr == nil {
				oldToken := strings.TrimSpace(string(old))
				if base, ver, splitErr := BasenameAndVersion(oldToken); splitErr == nil {
					_ = opts.Remover.RemoveIfInstalled(base, ver)
				}
			}
		}
		if err := os.Remove(localPath); err != nil && !os.IsNotExist(err) {
			// Another process may have already raced us to remove/replace
			// it; treat that the same way the original treats any OSError
			// here - discard our temp copy and move on.
			os.Remove(tmpPath)
			return nil
		}
	}
	if err := os.Rename(tmpPath, localPath); err != nil {
		os.Remove(tmpPath)
		return nil
	}
	return nil
}

func remoteNames(remotes []*schema.Remote) []string {
	names := make([]string, len(remotes))
	for i, r := range remotes {
		names[i] = r.Name
	}
	return names
}
