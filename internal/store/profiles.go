package store

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"proxygen/internal/apperr"
	"proxygen/internal/engine"

	"gopkg.in/yaml.v3"
)

// Profile is the persisted form of one subscription.
type Profile struct {
	Proxies []engine.Proxy `yaml:"proxies"`
}

// ProfileStore keeps one <name>.yaml per profile. Writers to the same name
// must be serialized by the caller.
type ProfileStore struct {
	dir string
}

func NewProfileStore(dir string) (*ProfileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create profile dir: %w", err)
	}
	return &ProfileStore{dir: dir}, nil
}

// ValidateName rejects names that would escape the profile dir.
func ValidateName(name string) error {
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return apperr.Newf(apperr.KindInvalid, "invalid profile name '%s'", name)
	}
	return nil
}

func (s *ProfileStore) Path(name string) string {
	return filepath.Join(s.dir, name+".yaml")
}

// Load returns the named profile. A missing profile is a NotFound error;
// anything else that goes wrong is an IOFailure.
func (s *ProfileStore) Load(name string) (*Profile, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.Path(name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, apperr.Newf(apperr.KindNotFound, "profile '%s' does not exist", name)
	}
	if err != nil {
		return nil, apperr.Wrap(err, apperr.KindIO, fmt.Sprintf("error loading profile '%s'", name))
	}

	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, apperr.Wrap(err, apperr.KindIO, fmt.Sprintf("error parsing profile '%s'", name))
	}
	return &p, nil
}

// Save writes the profile atomically.
func (s *ProfileStore) Save(name string, p *Profile) error {
	if err := ValidateName(name); err != nil {
		return err
	}

	data, err := yaml.Marshal(p)
	if err != nil {
		return apperr.Wrap(err, apperr.KindIO, fmt.Sprintf("error encoding profile '%s'", name))
	}

	tmp, err := os.CreateTemp(s.dir, "."+name+".*.tmp")
	if err != nil {
		return apperr.Wrap(err, apperr.KindIO, fmt.Sprintf("error saving profile '%s'", name))
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return apperr.Wrap(err, apperr.KindIO, fmt.Sprintf("error saving profile '%s'", name))
	}
	if err := tmp.Close(); err != nil {
		return apperr.Wrap(err, apperr.KindIO, fmt.Sprintf("error saving profile '%s'", name))
	}
	if err := os.Rename(tmp.Name(), s.Path(name)); err != nil {
		return apperr.Wrap(err, apperr.KindIO, fmt.Sprintf("error saving profile '%s'", name))
	}
	return nil
}

// Delete removes the profile file. Deleting a missing profile is not an error.
func (s *ProfileStore) Delete(name string) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	if err := os.Remove(s.Path(name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return apperr.Wrap(err, apperr.KindIO, fmt.Sprintf("error deleting profile '%s'", name))
	}
	return nil
}

// Size returns the on-disk size of the profile, or 0 if absent.
func (s *ProfileStore) Size(name string) int64 {
	fi, err := os.Stat(s.Path(name))
	if err != nil {
		return 0
	}
	return fi.Size()
}
