package git

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	gogit "github.com/go-git/go-git/v5"
	gitcfg "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
	httpauth "github.com/go-git/go-git/v5/plumbing/transport/http"

	"github.com/crmarques/catalogsync/config"
	"github.com/crmarques/catalogsync/faults"
	"github.com/crmarques/catalogsync/internal/providers/shared/draftfiles"
	"github.com/crmarques/catalogsync/internal/providers/shared/fsutil"
	"github.com/crmarques/catalogsync/logging"
	"github.com/crmarques/catalogsync/resource"
	"github.com/crmarques/catalogsync/source"
)

var _ source.Source = (*Source)(nil)

const (
	defaultRemoteName = "origin"
	defaultBranchName = "main"
)

// Source reads drafts from a branch of a git repository. The repository is
// cloned into CloneDir on first use, or fetched and reset to the remote branch
// when CloneDir already holds a clone. Without a CloneDir a temporary
// directory is used and removed by Close.
type Source struct {
	url      string
	branch   string
	dir      string
	cloneDir string
	auth     *config.GitAuth
	tempDir  bool

	mu       sync.Mutex
	prepared bool
	revision string
}

func NewSource(cfg config.GitDrafts) (*Source, error) {
	url := strings.TrimSpace(cfg.URL)
	if url == "" {
		return nil, faults.NewTypedError(faults.ValidationError, "drafts.git.url is required", nil)
	}
	branch := strings.TrimSpace(cfg.Branch)
	if branch == "" {
		branch = defaultBranchName
	}
	return &Source{
		url:      url,
		branch:   branch,
		dir:      strings.TrimSpace(cfg.Dir),
		cloneDir: strings.TrimSpace(cfg.CloneDir),
		auth:     cfg.Auth,
	}, nil
}

func (s *Source) Drafts(ctx context.Context, kind resource.Kind) ([]*resource.Draft, error) {
	root, err := s.prepare(ctx)
	if err != nil {
		return nil, err
	}
	drafts, err := draftfiles.Read(root, kind)
	if err != nil {
		return nil, err
	}
	logging.FromContext(ctx).V(logging.DebugLevel).Info(
		"read drafts from git",
		"kind", kind,
		"branch", s.branch,
		"revision", s.revision,
		"count", len(drafts),
	)
	return drafts, nil
}

// Revision is the commit drafts are read from, empty before the first read.
func (s *Source) Revision() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.revision
}

func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.tempDir || s.cloneDir == "" {
		return nil
	}
	err := os.RemoveAll(s.cloneDir)
	s.cloneDir = ""
	s.tempDir = false
	s.prepared = false
	return err
}

// prepare materialises the branch once per Source and returns the directory
// holding the kind subdirectories.
func (s *Source) prepare(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.prepared {
		if s.cloneDir == "" {
			tempDir, err := os.MkdirTemp("", "catalogsync-drafts-")
			if err != nil {
				return "", faults.NewTypedError(faults.InternalError, "failed to create git clone directory", err)
			}
			s.cloneDir = tempDir
			s.tempDir = true
		}

		repo, err := s.checkout(ctx)
		if err != nil {
			return "", err
		}
		head, err := repo.Head()
		if err != nil {
			return "", faults.NewTypedError(faults.InternalError, "failed to resolve git head", err)
		}
		s.revision = head.Hash().String()
		s.prepared = true
	}

	root := s.cloneDir
	if s.dir != "" {
		root = filepath.Join(s.cloneDir, s.dir)
		if !fsutil.IsPathUnderRoot(s.cloneDir, root) {
			return "", faults.NewTypedError(
				faults.ValidationError,
				fmt.Sprintf("drafts.git.dir %q escapes the repository", s.dir),
				nil,
			)
		}
	}
	return root, nil
}

func (s *Source) checkout(ctx context.Context) (*gogit.Repository, error) {
	auth, err := s.authMethod()
	if err != nil {
		return nil, err
	}

	repo, err := gogit.PlainOpen(s.cloneDir)
	if errors.Is(err, gogit.ErrRepositoryNotExists) {
		repo, err = gogit.PlainCloneContext(ctx, s.cloneDir, false, &gogit.CloneOptions{
			URL:           s.url,
			Auth:          auth,
			RemoteName:    defaultRemoteName,
			ReferenceName: plumbing.NewBranchReferenceName(s.branch),
			SingleBranch:  true,
		})
		if err != nil {
			return nil, classifyRemoteError(fmt.Sprintf("failed to clone %s", redactURL(s.url)), err)
		}
		return repo, nil
	}
	if err != nil {
		return nil, faults.NewTypedError(faults.InternalError, "failed to open git clone", err)
	}

	if err := s.ensureRemote(repo); err != nil {
		return nil, err
	}
	fetchErr := repo.FetchContext(ctx, &gogit.FetchOptions{
		RemoteName: defaultRemoteName,
		Auth:       auth,
		RefSpecs: []gitcfg.RefSpec{
			gitcfg.RefSpec(fmt.Sprintf("+refs/heads/%s:refs/remotes/%s/%s", s.branch, defaultRemoteName, s.branch)),
		},
		Force: true,
	})
	if fetchErr != nil && !errors.Is(fetchErr, gogit.NoErrAlreadyUpToDate) {
		return nil, classifyRemoteError(fmt.Sprintf("failed to fetch %s", redactURL(s.url)), fetchErr)
	}

	remoteRef, err := repo.Reference(plumbing.NewRemoteReferenceName(defaultRemoteName, s.branch), true)
	if err != nil {
		return nil, faults.NewTypedError(
			faults.NotFoundError,
			fmt.Sprintf("branch %q not found on %s", s.branch, redactURL(s.url)),
			err,
		)
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return nil, faults.NewTypedError(faults.InternalError, "failed to open git worktree", err)
	}
	if err := worktree.Reset(&gogit.ResetOptions{Commit: remoteRef.Hash(), Mode: gogit.HardReset}); err != nil {
		return nil, faults.NewTypedError(faults.InternalError, "failed to reset git worktree", err)
	}
	return repo, nil
}

func (s *Source) ensureRemote(repo *gogit.Repository) error {
	cfg, err := repo.Config()
	if err != nil {
		return faults.NewTypedError(faults.InternalError, "failed to load git config", err)
	}
	if remote, ok := cfg.Remotes[defaultRemoteName]; ok && len(remote.URLs) == 1 && remote.URLs[0] == s.url {
		return nil
	}
	cfg.Remotes[defaultRemoteName] = &gitcfg.RemoteConfig{
		Name: defaultRemoteName,
		URLs: []string{s.url},
	}
	if err := repo.Storer.SetConfig(cfg); err != nil {
		return faults.NewTypedError(faults.InternalError, "failed to update git remote config", err)
	}
	return nil
}

func (s *Source) authMethod() (transport.AuthMethod, error) {
	if s.auth == nil {
		return nil, nil
	}
	switch {
	case s.auth.BasicAuth != nil && s.auth.AccessKey != nil:
		return nil, faults.NewTypedError(faults.ValidationError, "drafts.git.auth must define exactly one method", nil)
	case s.auth.BasicAuth != nil:
		return &httpauth.BasicAuth{
			Username: s.auth.BasicAuth.Username,
			Password: s.auth.BasicAuth.Password,
		}, nil
	case s.auth.AccessKey != nil:
		return &httpauth.BasicAuth{
			Username: "token",
			Password: s.auth.AccessKey.Token,
		}, nil
	default:
		return nil, nil
	}
}

func classifyRemoteError(message string, err error) error {
	lower := strings.ToLower(err.Error())

	switch {
	case errors.Is(err, transport.ErrAuthenticationRequired) ||
		errors.Is(err, transport.ErrAuthorizationFailed) ||
		strings.Contains(lower, "authentication") ||
		strings.Contains(lower, "permission denied"):
		return faults.NewTypedError(faults.AuthError, message, err)
	case errors.Is(err, transport.ErrRepositoryNotFound) ||
		strings.Contains(lower, "repository not found") ||
		strings.Contains(lower, "couldn't find remote ref") ||
		strings.Contains(lower, "reference not found"):
		return faults.NewTypedError(faults.NotFoundError, message, err)
	case strings.Contains(lower, "timeout") ||
		strings.Contains(lower, "tls") ||
		strings.Contains(lower, "connection") ||
		strings.Contains(lower, "network"):
		return faults.NewTypedError(faults.TransportError, message, err)
	default:
		return faults.NewTypedError(faults.InternalError, message, err)
	}
}

// redactURL drops userinfo from a remote URL before it is logged.
func redactURL(raw string) string {
	scheme, rest, ok := strings.Cut(raw, "://")
	if !ok {
		return raw
	}
	if at := strings.LastIndex(rest, "@"); at >= 0 {
		if slash := strings.Index(rest, "/"); slash < 0 || at < slash {
			rest = rest[at+1:]
		}
	}
	return scheme + "://" + rest
}
