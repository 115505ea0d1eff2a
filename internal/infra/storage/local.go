// Package storage persists trained model bundles.
//
// Both stores write a bundle under a fresh run directory and then switch a
// single "current" pointer to it, so readers see the old bundle or the new
// one and never a mix.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/bryanwahyu/automaton-risk/internal/domain/risk"
)

const currentPointer = "current"

// LocalStore keeps bundles in a directory on disk.
type LocalStore struct {
	Dir string
}

func NewLocalStore(dir string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create artifact dir: %w", err)
	}
	return &LocalStore{Dir: dir}, nil
}

// SaveAll writes every artifact into a new run directory and points current
// at it. On failure the run directory is removed and current is untouched.
func (s *LocalStore) SaveAll(ctx context.Context, artifacts []risk.Artifact) error {
	run := uuid.NewString()
	runDir := filepath.Join(s.Dir, run)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return fmt.Errorf("create run dir: %w", err)
	}
	fail := func(err error) error {
		os.RemoveAll(runDir)
		return err
	}
	for _, a := range artifacts {
		if err := ctx.Err(); err != nil {
			return fail(err)
		}
		if err := validName(a.Name); err != nil {
			return fail(err)
		}
		if err := os.WriteFile(filepath.Join(runDir, a.Name), a.Data, 0o644); err != nil {
			return fail(fmt.Errorf("write %s: %w", a.Name, err))
		}
	}

	previous, _ := s.current()
	if err := writeFileAtomic(filepath.Join(s.Dir, currentPointer), []byte(run)); err != nil {
		return fail(fmt.Errorf("switch current bundle: %w", err))
	}
	if previous != "" && previous != run {
		os.RemoveAll(filepath.Join(s.Dir, previous))
	}
	return nil
}

// Load reads one artifact of the current bundle.
func (s *LocalStore) Load(_ context.Context, name string) ([]byte, error) {
	if err := validName(name); err != nil {
		return nil, err
	}
	run, err := s.current()
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(filepath.Join(s.Dir, run, name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", name, risk.ErrArtifactNotFound)
	}
	return b, err
}

// Version returns the run directory current points at.
func (s *LocalStore) Version(context.Context) (string, error) {
	return s.current()
}

func (s *LocalStore) current() (string, error) {
	b, err := os.ReadFile(filepath.Join(s.Dir, currentPointer))
	if errors.Is(err, fs.ErrNotExist) {
		return "", risk.ErrArtifactNotFound
	}
	if err != nil {
		return "", err
	}
	run := strings.TrimSpace(string(b))
	if run == "" {
		return "", risk.ErrArtifactNotFound
	}
	return run, nil
}

func validName(name string) error {
	if name == "" || name == currentPointer || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return fmt.Errorf("invalid artifact name %q", name)
	}
	return nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return nil
}
