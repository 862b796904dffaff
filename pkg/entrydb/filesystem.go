package entrydb

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"path/filepath"
	"sync"

	"github.com/brisklabs/buildengine/pkg/key"
	"github.com/mandelsoft/vfs/pkg/osfs"
	"github.com/mandelsoft/vfs/pkg/vfs"
	"sigs.k8s.io/yaml"
)

// schemaVersion gates the on-disk format. A mismatch causes a full rebuild
// (the store is treated as empty) rather than an in-place migration,
// matching the spec's DB-persistence contract.
const schemaVersion = 1

// onDisk is the yaml-serialized form of one Entry plus its key, so a
// directory listing can recover keys without a separate index file.
type onDisk struct {
	SchemaVersion int    `json:"schemaVersion"`
	Tag           string `json:"tag"`
	KeyBytes      string `json:"keyBytes"`
	Entry         Entry  `json:"entry"`
}

// FilesystemDatabase persists Entries as one YAML file per key under a
// root directory, using mandelsoft/vfs so tests can swap in an in-memory
// filesystem. Grounded on the teacher's pkg/impl/database/filesystem,
// generalized from namespace/name/type object identity to the erased
// key.Key.
type FilesystemDatabase struct {
	lock sync.Mutex
	path string
	fs   vfs.FileSystem
}

var _ Database = (*FilesystemDatabase)(nil)

// NewFilesystemDatabase creates (or opens) a directory-backed entry store
// rooted at path. If fss is omitted, the real OS filesystem is used.
func NewFilesystemDatabase(path string, fss ...vfs.FileSystem) (*FilesystemDatabase, error) {
	fs := osfs.New()
	if len(fss) > 0 && fss[0] != nil {
		fs = fss[0]
	}
	if err := fs.MkdirAll(path, 0o0700); err != nil && !errors.Is(err, vfs.ErrExist) {
		return nil, err
	}
	return &FilesystemDatabase{path: path, fs: fs}, nil
}

func (d *FilesystemDatabase) file(k key.Key) string {
	sum := sha256.Sum256(append([]byte(string(k.Tag())+"\x00"), k.Bytes()...))
	return filepath.Join(d.path, string(k.Tag()), hex.EncodeToString(sum[:])+".yaml")
}

func (d *FilesystemDatabase) GetEntry(k key.Key) (*Entry, error) {
	d.lock.Lock()
	defer d.lock.Unlock()
	return d.get(k)
}

func (d *FilesystemDatabase) get(k key.Key) (*Entry, error) {
	data, err := vfs.ReadFile(d.fs, d.file(k))
	if err != nil {
		if errors.Is(err, vfs.ErrNotExist) {
			return nil, ErrNotExist
		}
		return nil, err
	}
	var rec onDisk
	if err := yaml.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	if rec.SchemaVersion != schemaVersion {
		// Format drift: treat as absent so the run rebuilds from scratch
		// rather than trusting a stale layout.
		return nil, ErrNotExist
	}
	if rec.Tag != string(k.Tag()) || rec.KeyBytes != string(k.Bytes()) {
		return nil, errors.Join(ErrNotExist, errors.New("entrydb: key hash collision or corrupted record"))
	}
	e := rec.Entry
	return &e, nil
}

func (d *FilesystemDatabase) SetEntry(k key.Key, e *Entry) error {
	d.lock.Lock()
	defer d.lock.Unlock()

	cur, err := d.get(k)
	if err != nil && !errors.Is(err, ErrNotExist) {
		return err
	}
	curGen := int64(0)
	if cur != nil {
		curGen = cur.Generation
	}
	if e.Generation != curGen {
		return ErrModified
	}

	rec := onDisk{
		SchemaVersion: schemaVersion,
		Tag:           string(k.Tag()),
		KeyBytes:      string(k.Bytes()),
		Entry:         *e,
	}
	rec.Entry.Generation = curGen + 1

	data, err := yaml.Marshal(rec)
	if err != nil {
		return err
	}
	path := d.file(k)
	if err := d.fs.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	return vfs.WriteFile(d.fs, path, data, 0o600)
}

func (d *FilesystemDatabase) DeleteEntry(k key.Key) error {
	d.lock.Lock()
	defer d.lock.Unlock()
	err := d.fs.Remove(d.file(k))
	if err != nil && errors.Is(err, vfs.ErrNotExist) {
		return nil
	}
	return err
}

func (d *FilesystemDatabase) ListKeys() ([]key.Key, error) {
	d.lock.Lock()
	defer d.lock.Unlock()

	var keys []key.Key
	tags, err := vfs.ReadDir(d.fs, d.path)
	if err != nil {
		if errors.Is(err, vfs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	for _, tagDir := range tags {
		if !tagDir.IsDir() {
			continue
		}
		files, err := vfs.ReadDir(d.fs, filepath.Join(d.path, tagDir.Name()))
		if err != nil {
			return nil, err
		}
		for _, f := range files {
			if f.IsDir() {
				continue
			}
			data, err := vfs.ReadFile(d.fs, filepath.Join(d.path, tagDir.Name(), f.Name()))
			if err != nil {
				return nil, err
			}
			var rec onDisk
			if err := yaml.Unmarshal(data, &rec); err != nil {
				return nil, err
			}
			if rec.SchemaVersion != schemaVersion {
				continue
			}
			keys = append(keys, key.Erase[rawKeyBytes](key.TypeTag(rec.Tag), rawKeyBytes(rec.KeyBytes)))
		}
	}
	return keys, nil
}

func (d *FilesystemDatabase) Close() error {
	return nil
}

// rawKeyBytes lets ListKeys reconstruct an erased Key from its stored
// canonical bytes without knowing the original typed key's Go type: since
// key.Erase marshals its argument to JSON and rawKeyBytes' MarshalJSON
// returns those bytes verbatim, re-erasing reproduces the same Key.
type rawKeyBytes string

func (r rawKeyBytes) MarshalJSON() ([]byte, error) {
	return []byte(r), nil
}

// FilesystemSpecification builds a FilesystemDatabase, mirroring the teacher's
// filesystem.Specification factory.
type FilesystemSpecification struct {
	Path       string
	FileSystem vfs.FileSystem
}

var _ Specification = (*FilesystemSpecification)(nil)

func NewFilesystemSpecification(path string, fss ...vfs.FileSystem) *FilesystemSpecification {
	spec := &FilesystemSpecification{Path: path, FileSystem: osfs.New()}
	if len(fss) > 0 && fss[0] != nil {
		spec.FileSystem = fss[0]
	}
	return spec
}

func (s *FilesystemSpecification) Create() (Database, error) {
	return NewFilesystemDatabase(s.Path, s.FileSystem)
}
