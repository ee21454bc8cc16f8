package strategy

import (
	"context"
	"os"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/prgleibe-cmyk/IdentificaPix-sub002/internal/model"
)

// ModelStore provides read access to learned models. Training and approval
// happen elsewhere; the engine never mutates models.
type ModelStore interface {
	FindByFingerprint(ctx context.Context, fp model.StructuralFingerprint) ([]model.LearnedFileModel, error)
	ListActive(ctx context.Context) ([]model.LearnedFileModel, error)
}

// FileStore serves learned models from a YAML file.
type FileStore struct {
	models []model.LearnedFileModel
}

type modelsFile struct {
	Models []model.LearnedFileModel `yaml:"models"`
}

// LoadFile reads a YAML document with a top-level "models" list.
func LoadFile(path string) (*FileStore, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "strategy: read models file %s", path)
	}
	return ParseModels(data)
}

// ParseModels parses YAML model definitions. Each model's strategy must
// dispatch cleanly.
func ParseModels(data []byte) (*FileStore, error) {
	var f modelsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrap(err, "strategy: parse models yaml")
	}
	for i, m := range f.Models {
		if _, err := m.Dispatch(); err != nil {
			return nil, eris.Wrapf(err, "strategy: model %d (%s)", i, m.Label())
		}
	}
	zap.L().Debug("loaded learned models", zap.Int("count", len(f.Models)))
	return &FileStore{models: f.Models}, nil
}

// NewFileStore wraps an in-memory model list.
func NewFileStore(models []model.LearnedFileModel) *FileStore {
	return &FileStore{models: models}
}

// Models returns every model in file order, active or not.
func (s *FileStore) Models() []model.LearnedFileModel {
	return append([]model.LearnedFileModel(nil), s.models...)
}

// ListActive returns every active model in file order.
func (s *FileStore) ListActive(_ context.Context) ([]model.LearnedFileModel, error) {
	out := make([]model.LearnedFileModel, 0, len(s.models))
	for _, m := range s.models {
		if m.Identity.IsActive {
			out = append(out, m)
		}
	}
	return out, nil
}

// FindByFingerprint returns active models sharing fp's header hash or data
// topology pattern.
func (s *FileStore) FindByFingerprint(ctx context.Context, fp model.StructuralFingerprint) ([]model.LearnedFileModel, error) {
	active, _ := s.ListActive(ctx)
	var out []model.LearnedFileModel
	for _, m := range active {
		ev := m.Evidence.Fingerprint
		hashHit := fp.HasHeaderHash() && ev.HasHeaderHash() && *ev.HeaderHash == *fp.HeaderHash
		patternHit := fp.DataTopologyPattern != model.UnknownPattern && ev.DataTopologyPattern == fp.DataTopologyPattern
		if hashHit || patternHit {
			out = append(out, m)
		}
	}
	return out, nil
}

// Candidates loads the models worth considering for fp from store.
func Candidates(ctx context.Context, store ModelStore, fp *model.StructuralFingerprint) ([]model.LearnedFileModel, error) {
	if fp == nil {
		return nil, nil
	}
	models, err := store.FindByFingerprint(ctx, *fp)
	if err != nil {
		return nil, eris.Wrap(err, "strategy: find models by fingerprint")
	}
	return models, nil
}
