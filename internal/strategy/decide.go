package strategy

import (
	"github.com/prgleibe-cmyk/IdentificaPix-sub002/internal/fingerprint"
	"github.com/prgleibe-cmyk/IdentificaPix-sub002/internal/model"
	"github.com/prgleibe-cmyk/IdentificaPix-sub002/internal/resolve"
)

// State is the outcome of the per-file strategy decision.
type State string

const (
	StateModelFound    State = "MODEL_FOUND"
	StateModelRequired State = "MODEL_REQUIRED"
)

// DefaultPreviewLines bounds the content preview of MODEL_REQUIRED decisions.
const DefaultPreviewLines = 20

// Decision is the result of Decide. MODEL_REQUIRED decisions carry the
// evidence a training flow needs: fingerprint, file name, a preview and a
// suggested column mapping when one could be inferred.
type Decision struct {
	State       State                        `json:"state"`
	FileName    string                       `json:"file_name"`
	Fingerprint *model.StructuralFingerprint `json:"fingerprint,omitempty"`
	Model       *model.LearnedFileModel      `json:"model,omitempty"`
	MatchKind   MatchKind                    `json:"match_kind"`
	Preview     []string                     `json:"preview,omitempty"`
	Suggested   *model.ColumnMapping         `json:"suggested_mapping,omitempty"`
}

// Err returns a *model.NoModelMatchError for MODEL_REQUIRED, nil otherwise.
func (d Decision) Err() error {
	if d.State == StateModelFound {
		return nil
	}
	return &model.NoModelMatchError{FileName: d.FileName, Fingerprint: d.Fingerprint}
}

// Decide selects a model for doc. It never force-fits: without a hash or
// pattern match the decision is MODEL_REQUIRED.
func Decide(doc model.RawDocument, fp *model.StructuralFingerprint, models []model.LearnedFileModel, previewLines int) Decision {
	d := Decision{FileName: doc.FileName, Fingerprint: fp, MatchKind: MatchNone}

	if m, kind := SelectModel(fp, models); m != nil {
		d.State = StateModelFound
		d.Model = m
		d.MatchKind = kind
		return d
	}

	if previewLines <= 0 {
		previewLines = DefaultPreviewLines
	}
	d.State = StateModelRequired
	d.Preview = doc.Preview(previewLines)
	if fp != nil {
		if m, ok := resolve.InferMapping(rowsOf(doc, fp.Delimiter)); ok {
			d.Suggested = &m
		}
	}
	return d
}

func rowsOf(doc model.RawDocument, delim string) [][]string {
	lines := doc.Lines()
	rows := make([][]string, 0, len(lines))
	for _, l := range lines {
		cells := fingerprint.TrimCells(fingerprint.SplitLine(l, delim))
		if len(cells) > 0 {
			rows = append(rows, cells)
		}
	}
	return rows
}
