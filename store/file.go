package store

import (
	"context"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"time"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"

	"github.com/bitmark-inc/covid19-uk/schema"
)

const (
	fileLogPrefix = "store"
	manifestFile  = "manifest.yaml"
)

var (
	ErrDatasetNotFound = fmt.Errorf("dataset not found")
	ErrNoManifest      = fmt.Errorf("no manifest")
)

type manifestTable struct {
	Name    string           `yaml:"name"`
	File    string           `yaml:"file"`
	Kind    schema.TableKind `yaml:"kind"`
	Window  int              `yaml:"window,omitempty"`
	Rows    int              `yaml:"rows"`
	Columns []schema.Column  `yaml:"columns"`
}

type manifest struct {
	RunID   string          `yaml:"run_id"`
	Release string          `yaml:"release"`
	Updated string          `yaml:"updated"`
	Tables  []manifestTable `yaml:"tables"`
}

// FileStore - tables as csv files in one directory, described by manifest.yaml
type FileStore struct {
	dir string
}

// NewFileStore - file store rooted at dir, created when missing
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	return &FileStore{dir: dir}, nil
}

// Save - write every table of the batch then the manifest
func (f *FileStore) Save(ctx context.Context, batch *schema.Batch) error {
	m := manifest{
		RunID:   batch.RunID,
		Release: batch.Release.UTC().Format(time.RFC3339),
		Updated: time.Now().UTC().Format(time.RFC3339),
		Tables:  make([]manifestTable, 0, len(batch.Tables)),
	}

	for _, t := range batch.Tables {
		if err := ctx.Err(); err != nil {
			return err
		}

		file := t.Name + ".csv"
		if err := f.writeAtomic(file, func(w *os.File) error {
			return WriteCSV(w, t)
		}); err != nil {
			log.WithFields(log.Fields{"prefix": fileLogPrefix, "table": t.Name, "error": err}).Error("write csv")
			return fmt.Errorf("write %s: %w", file, err)
		}

		m.Tables = append(m.Tables, manifestTable{
			Name:    t.Name,
			File:    file,
			Kind:    t.Kind,
			Window:  t.Window,
			Rows:    t.Len(),
			Columns: t.Columns,
		})
	}

	data, err := yaml.Marshal(&m)
	if err != nil {
		return err
	}
	if err := f.writeAtomic(manifestFile, func(w *os.File) error {
		_, err := w.Write(data)
		return err
	}); err != nil {
		return err
	}

	log.WithFields(log.Fields{
		"prefix": fileLogPrefix,
		"dir":    f.dir,
		"run_id": batch.RunID,
		"tables": len(batch.Tables),
	}).Info("saved tables")

	return nil
}

// Load - read one table of the latest saved batch
func (f *FileStore) Load(name string) (*schema.Table, error) {
	m, err := f.readManifest()
	if err != nil {
		return nil, err
	}

	for _, entry := range m.Tables {
		if entry.Name == name {
			return f.loadTable(entry)
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrDatasetNotFound, name)
}

// LoadBatch - read every table of the latest saved batch
func (f *FileStore) LoadBatch() (*schema.Batch, error) {
	m, err := f.readManifest()
	if err != nil {
		return nil, err
	}

	release, err := time.Parse(time.RFC3339, m.Release)
	if err != nil {
		return nil, fmt.Errorf("manifest release: %w", err)
	}

	batch := &schema.Batch{
		RunID:   m.RunID,
		Release: release.UTC(),
		Tables:  make([]*schema.Table, 0, len(m.Tables)),
	}
	for _, entry := range m.Tables {
		t, err := f.loadTable(entry)
		if err != nil {
			return nil, err
		}
		batch.Tables = append(batch.Tables, t)
	}
	return batch, nil
}

func (f *FileStore) loadTable(entry manifestTable) (*schema.Table, error) {
	r, err := os.Open(filepath.Join(f.dir, entry.File))
	if err != nil {
		return nil, err
	}
	defer r.Close()

	t, err := ReadCSV(r, entry.Columns)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", entry.File, err)
	}
	t.Name = entry.Name
	t.Kind = entry.Kind
	t.Window = entry.Window
	return t, nil
}

func (f *FileStore) readManifest() (*manifest, error) {
	data, err := ioutil.ReadFile(filepath.Join(f.dir, manifestFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w in %s", ErrNoManifest, f.dir)
		}
		return nil, err
	}

	var m manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// writeAtomic - write through a temporary file renamed over the target
func (f *FileStore) writeAtomic(name string, write func(*os.File) error) error {
	tmp, err := ioutil.TempFile(f.dir, "."+name+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := write(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), filepath.Join(f.dir, name))
}
