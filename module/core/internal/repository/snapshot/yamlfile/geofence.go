package yamlfile

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/nandanugg/geofence-monitor/module/core/domain"
	"github.com/nandanugg/geofence-monitor/module/core/internal/repository/snapshot"
)

var _ snapshot.Repository = (*GeofenceRepo)(nil)

// GeofenceRepo keeps the registry snapshot in a single YAML file.
type GeofenceRepo struct {
	path string
}

func NewGeofenceRepo(path string) *GeofenceRepo {
	return &GeofenceRepo{path: path}
}

// Load returns an empty snapshot when the file does not exist yet.
func (r *GeofenceRepo) Load(_ context.Context) (domain.RegistrySnapshot, error) {
	f, err := os.Open(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return domain.RegistrySnapshot{}, nil
		}
		return domain.RegistrySnapshot{}, eris.Wrap(err, "yamlfile: open")
	}
	defer func() { _ = f.Close() }()
	return Decode(f)
}

// Save writes to a temporary file and renames it over the target.
func (r *GeofenceRepo) Save(_ context.Context, snap domain.RegistrySnapshot) error {
	dir := filepath.Dir(r.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return eris.Wrap(err, "yamlfile: create directory")
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(r.path)+".*.tmp")
	if err != nil {
		return eris.Wrap(err, "yamlfile: create temp file")
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if err := Encode(tmp, snap); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return eris.Wrap(err, "yamlfile: close temp file")
	}
	return eris.Wrap(os.Rename(tmp.Name(), r.path), "yamlfile: rename")
}

func (r *GeofenceRepo) Close() error {
	return nil
}

func Encode(w io.Writer, snap domain.RegistrySnapshot) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(snap); err != nil {
		return eris.Wrap(err, "yamlfile: encode snapshot")
	}
	return eris.Wrap(enc.Close(), "yamlfile: flush snapshot")
}

// Decode reads a snapshot. An empty document decodes to an empty snapshot.
func Decode(r io.Reader) (domain.RegistrySnapshot, error) {
	var snap domain.RegistrySnapshot
	if err := yaml.NewDecoder(r).Decode(&snap); err != nil && !errors.Is(err, io.EOF) {
		return domain.RegistrySnapshot{}, eris.Wrap(err, "yamlfile: decode snapshot")
	}
	return snap, nil
}
