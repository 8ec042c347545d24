package blob

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"ragdocs/internal/util"
)

type LocalStore struct {
	root string
}

func NewLocalStore(root string) (*LocalStore, error) {
	if err := util.EnsureDir(root); err != nil {
		return nil, err
	}
	return &LocalStore{root: root}, nil
}

func (s *LocalStore) Root() string {
	return s.root
}

func (s *LocalStore) Save(_ context.Context, data []byte, filename string) (string, string, error) {
	id := newIdentifier(filename)
	if err := util.WriteFileAtomic(util.SafeJoin(s.root, id), data); err != nil {
		return "", "", fmt.Errorf("save blob %s: %w", id, err)
	}
	return id, filepath.Base(filename), nil
}

func (s *LocalStore) Read(_ context.Context, id string) ([]byte, error) {
	data, err := os.ReadFile(util.SafeJoin(s.root, id))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", util.ErrBlobNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("read blob %s: %w", id, err)
	}
	return data, nil
}

func (s *LocalStore) Delete(_ context.Context, id string) (bool, error) {
	err := os.Remove(util.SafeJoin(s.root, id))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("delete blob %s: %w", id, err)
	}
	return true, nil
}
