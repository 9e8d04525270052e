package partition

import (
	"context"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	apperrors "github.com/alexisbeaulieu97/toolweave/pkg/errors"
)

// Manifest records the splits of one partitioning pass.
type Manifest struct {
	File          string  `yaml:"file"`
	LinesPerSplit int     `yaml:"lines_per_split"`
	Policy        Policy  `yaml:"policy"`
	Splits        []Split `yaml:"splits"`
}

// WriteManifest stores m as YAML at path.
func WriteManifest(path string, m *Manifest) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return apperrors.NewIOError("write", path, err)
	}
	return nil
}

// ReadManifest loads a manifest written by WriteManifest.
func ReadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.NewParseError(path, 0, err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, apperrors.NewParseError(path, 0, err)
	}
	return &m, nil
}

// Split returns the split at index.
func (m *Manifest) Split(index int) (Split, error) {
	if index < 0 || index >= len(m.Splits) {
		return Split{}, apperrors.NewValidationError("split", fmt.Sprintf("index %d out of range [0,%d)", index, len(m.Splits)), nil)
	}
	return m.Splits[index], nil
}

// Opener opens refs for reading.
type Opener interface {
	Open(ctx context.Context, ref string) (io.ReadCloser, error)
}

type splitReader struct {
	io.Reader
	io.Closer
}

// OpenSplit returns a reader over exactly the split's byte range.
func OpenSplit(ctx context.Context, opener Opener, s Split) (io.ReadCloser, error) {
	rc, err := opener.Open(ctx, s.File)
	if err != nil {
		return nil, err
	}

	if seeker, ok := rc.(io.Seeker); ok {
		_, err = seeker.Seek(s.Start, io.SeekStart)
	} else {
		_, err = io.CopyN(io.Discard, rc, s.Start)
	}
	if err != nil {
		_ = rc.Close()
		return nil, apperrors.NewIOError("seek", s.String(), err)
	}

	return splitReader{Reader: io.LimitReader(rc, s.Length), Closer: rc}, nil
}
