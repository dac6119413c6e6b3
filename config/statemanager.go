package config

import (
	"bytes"
	"io"
	"os"
	"path"
	"sort"

	"github.com/BurntSushi/toml"
	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-git/v5"
	gitssh "github.com/go-git/go-git/v5/plumbing/transport/ssh"
	"github.com/go-git/go-git/v5/storage/memory"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"golang.org/x/crypto/ssh"
)

// ErrNotSupported marks lifecycle operations sshk deliberately does not
// implement, so callers can tell them apart from operations that succeeded
// without doing anything.
var ErrNotSupported = errors.New("operation not supported")

const stateFile = "state.toml"

// ClusterStateManagers are responsible for managing the local cache and remote
// state of a cluster.
type ClusterStateManager interface {
	// List lists the clusters this ClusterStateManager has access to.
	List() ([]string, error)

	// Cache writes the cluster state to the local cache. Cache does not
	// access any remote resources.
	Cache(state ClusterState) error

	// Pull fetches a cluster from wherever this ClusterStateManager keeps
	// its persistent state, caches it, and returns its state.
	Pull(cluster string) (ClusterState, error)

	// Push publishes a cached cluster to the persistent state.
	Push(state ClusterState) error
}

func ClusterStateManagerFromContext(ctx *cli.Context) (ClusterStateManager, error) {
	cacheDir := ctx.String("cache")
	switch ctx.String("state-manager") {
	case "", "local":
		return LocalStateManager{Dir: cacheDir}, nil
	case "git":
		return GitStateManager{
			Dir:         cacheDir,
			URL:         ctx.String("git-url"),
			KeyPath:     ctx.String("git-keypath"),
			KeyPassword: ctx.String("git-key-password"),
		}, nil
	}

	return nil, errors.Errorf("unknown state manager %q", ctx.String("state-manager"))
}

// ClusterDir is where a cluster's state and kubeconfig are cached.
func ClusterDir(cacheDir, cluster string) string {
	return path.Join(cacheDir, cluster)
}

// LocalStateManager treats the cache as its persistent state (Push is a noop).
type LocalStateManager struct {
	Dir string
}

func (mngr LocalStateManager) List() ([]string, error) {
	dirEntries, err := os.ReadDir(mngr.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var clusters []string
	for _, entry := range dirEntries {
		if entry.IsDir() {
			clusters = append(clusters, entry.Name())
		}
	}

	return clusters, nil
}

func (mngr LocalStateManager) Cache(state ClusterState) error {
	return cacheState(mngr.Dir, state)
}

func (mngr LocalStateManager) Pull(cluster string) (ClusterState, error) {
	return readState(mngr.Dir, cluster)
}

func (mngr LocalStateManager) Push(state ClusterState) error {
	return nil
}

// GitStateManager pulls cluster states from a git repository that keeps
// every cluster in its own directory at the root.
type GitStateManager struct {
	Dir string
	URL string

	KeyPath     string
	KeyPassword string
}

func (mngr GitStateManager) cloneToMemory() (billy.Filesystem, error) {
	sshKey, err := os.ReadFile(mngr.KeyPath)
	if err != nil {
		return nil, errors.Wrap(err, "reading git key")
	}

	publicKey, err := gitssh.NewPublicKeys("git", sshKey, mngr.KeyPassword)
	if err != nil {
		return nil, err
	}

	publicKey.HostKeyCallbackHelper = gitssh.HostKeyCallbackHelper{
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), //nolint:gosec
	}

	fs := memfs.New()
	_, err = git.Clone(memory.NewStorage(), fs, &git.CloneOptions{
		Auth: publicKey,
		URL:  mngr.URL,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "cloning %s", mngr.URL)
	}

	return fs, nil
}

func (mngr GitStateManager) List() ([]string, error) {
	fs, err := mngr.cloneToMemory()
	if err != nil {
		return nil, err
	}
	return listClusters(fs)
}

func (mngr GitStateManager) Cache(state ClusterState) error {
	return cacheState(mngr.Dir, state)
}

func (mngr GitStateManager) Pull(cluster string) (ClusterState, error) {
	fs, err := mngr.cloneToMemory()
	if err != nil {
		return ClusterState{}, err
	}

	if err := copyDir(fs, cluster, ClusterDir(mngr.Dir, cluster)); err != nil {
		return ClusterState{}, err
	}

	return readState(mngr.Dir, cluster)
}

// Push is not implemented for git: state is published by committing the
// cache directory by hand.
func (mngr GitStateManager) Push(state ClusterState) error {
	return errors.Wrap(ErrNotSupported, "git state push")
}

func listClusters(fs billy.Filesystem) ([]string, error) {
	finfos, err := fs.ReadDir(".")
	if err != nil {
		return nil, err
	}

	var clusters []string
	for _, finfo := range finfos {
		if finfo.IsDir() && finfo.Name() != ".git" {
			clusters = append(clusters, finfo.Name())
		}
	}
	sort.Strings(clusters)
	return clusters, nil
}

func cacheState(cacheDir string, state ClusterState) error {
	if state.Name == "" {
		return errors.New("cluster state has no name")
	}

	dir := ClusterDir(cacheDir, state.Name)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return errors.Wrap(err, "error creating "+dir)
	}

	w, err := os.Create(path.Join(dir, stateFile))
	if err != nil {
		return err
	}
	defer w.Close()

	return toml.NewEncoder(w).Encode(state)
}

// readState loads a cluster's state.toml. A cluster with no state file has
// never been brought up and reads as Uninitialized.
func readState(cacheDir, cluster string) (ClusterState, error) {
	state := ClusterState{Name: cluster, RunState: Uninitialized}
	file := path.Join(ClusterDir(cacheDir, cluster), stateFile)
	if _, err := os.Stat(file); os.IsNotExist(err) {
		return state, nil
	}

	_, err := toml.DecodeFile(file, &state)
	if err != nil {
		return state, errors.Wrap(err, "error loading cluster state")
	}
	return state, nil
}

func copyDir(fs billy.Filesystem, src string, dest string) error {
	finfos, err := fs.ReadDir(src)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(dest, 0700); err != nil {
		return err
	}

	for _, f := range finfos {
		if f.IsDir() {
			if err := copyDir(fs, path.Join(src, f.Name()), path.Join(dest, f.Name())); err != nil {
				return err
			}
			continue
		}

		file, err := fs.Open(path.Join(src, f.Name()))
		if err != nil {
			return err
		}

		var buffer bytes.Buffer
		_, err = io.Copy(&buffer, file)
		file.Close()
		if err != nil {
			return err
		}

		if err := os.WriteFile(path.Join(dest, f.Name()), buffer.Bytes(), 0600); err != nil {
			return err
		}
	}

	return nil
}
