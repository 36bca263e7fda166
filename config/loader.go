package config

import (
	"bytes"
	"context"
	stderrors "errors"
	"io"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"

	"github.com/olavph/builds/errors"
	"github.com/olavph/builds/fs"
)

// Load reads the configuration at path and returns it with defaults
// applied and validated.
func Load(ctx context.Context, filesystem fs.Filesystem, path string) (*Config, error) {
	cfg, err := Read(ctx, filesystem, path)
	if err != nil {
		return nil, err
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Read decodes the configuration at path from filesystem without defaults
// or validation. ".cue" files are evaluated with CUE, ".yaml" and ".yml"
// files are decoded as YAML with unknown fields rejected.
func Read(_ context.Context, filesystem fs.Filesystem, path string) (*Config, error) {
	data, err := filesystem.ReadFile(path)
	if err != nil {
		return nil, errors.WrapWithContext(err, errors.CodeNotFound, "failed to read configuration",
			map[string]interface{}{"path": path})
	}

	var cfg Config
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".cue":
		err = decodeCUE(path, data, &cfg)
	case ".yaml", ".yml":
		err = decodeYAML(data, &cfg)
	default:
		return nil, errors.WrapWithContext(nil, errors.CodeInvalidConfig, "unsupported configuration format",
			map[string]interface{}{"path": path, "extension": ext})
	}
	if err != nil {
		return nil, errors.WrapWithContext(err, errors.CodeInvalidConfig, "failed to decode configuration",
			map[string]interface{}{"path": path})
	}

	return &cfg, nil
}

// decodeCUE compiles data and decodes the concrete result. CUE decoding
// follows the json struct tags.
func decodeCUE(path string, data []byte, cfg *Config) error {
	value := cuecontext.New().CompileBytes(data, cue.Filename(path))
	if err := value.Err(); err != nil {
		return err
	}

	if err := value.Validate(cue.Concrete(true)); err != nil {
		return err
	}

	return value.Decode(cfg)
}

func decodeYAML(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	if err := dec.Decode(cfg); err != nil && !stderrors.Is(err, io.EOF) {
		return err
	}
	return nil
}
