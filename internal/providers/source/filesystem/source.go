package filesystem

import (
	"context"
	"strings"

	"github.com/crmarques/catalogsync/config"
	"github.com/crmarques/catalogsync/faults"
	"github.com/crmarques/catalogsync/internal/providers/shared/draftfiles"
	"github.com/crmarques/catalogsync/logging"
	"github.com/crmarques/catalogsync/resource"
	"github.com/crmarques/catalogsync/source"
)

var _ source.Source = (*Source)(nil)

// Source reads drafts from a local directory holding one subdirectory per
// kind.
type Source struct {
	dir string
}

func NewSource(cfg config.FilesystemDrafts) (*Source, error) {
	dir := strings.TrimSpace(cfg.Dir)
	if dir == "" {
		return nil, faults.NewTypedError(faults.ValidationError, "drafts.filesystem.dir is required", nil)
	}
	return &Source{dir: dir}, nil
}

func (s *Source) Drafts(ctx context.Context, kind resource.Kind) ([]*resource.Draft, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	drafts, err := draftfiles.Read(s.dir, kind)
	if err != nil {
		return nil, err
	}
	logging.FromContext(ctx).V(logging.DebugLevel).Info("read drafts", "kind", kind, "dir", s.dir, "count", len(drafts))
	return drafts, nil
}
