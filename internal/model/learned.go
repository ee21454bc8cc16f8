package model

import (
	"github.com/rotisserie/eris"
)

// ParserType selects the extraction mode of a learned model.
type ParserType string

const (
	ParserColumns ParserType = "COLUMNS"
	ParserBlock   ParserType = "BLOCK"
)

// ModelStatus is the lifecycle state of a learned model version.
type ModelStatus string

const (
	ModelStatusDraft    ModelStatus = "draft"
	ModelStatusApproved ModelStatus = "approved"
	ModelStatusRetired  ModelStatus = "retired"
)

// LearnedFileModel is an approved extraction contract keyed by fingerprint.
// Corrections create a new Version under the same LineageID.
type LearnedFileModel struct {
	Identity   ModelIdentity   `json:"identity" yaml:"identity"`
	Evidence   ModelEvidence   `json:"evidence" yaml:"evidence"`
	Strategy   StrategySpec    `json:"strategy" yaml:"strategy"`
	Confidence ModelConfidence `json:"confidence" yaml:"confidence"`
}

// ModelIdentity identifies one version of a learned model.
type ModelIdentity struct {
	ID        string      `json:"id" yaml:"id"`
	Name      string      `json:"name" yaml:"name"`
	OwnerID   string      `json:"owner_id" yaml:"owner_id"`
	Version   int         `json:"version" yaml:"version"`
	LineageID string      `json:"lineage_id" yaml:"lineage_id"`
	IsActive  bool        `json:"is_active" yaml:"is_active"`
	Status    ModelStatus `json:"status,omitempty" yaml:"status,omitempty"`
}

// ModelEvidence is the fingerprint a model was trained on.
type ModelEvidence struct {
	Fingerprint StructuralFingerprint `json:"fingerprint" yaml:"fingerprint"`
}

// ModelConfidence tracks how reliable a model has proven to be.
type ModelConfidence struct {
	Score        float64 `json:"score" yaml:"score"`
	UsageCount   int     `json:"usage_count" yaml:"usage_count"`
	SuccessCount int     `json:"success_count" yaml:"success_count"`
}

// StrategySpec is the persisted form of a model's extraction strategy.
type StrategySpec struct {
	ParserType        ParserType         `json:"parser_type" yaml:"parser_type"`
	ColumnMapping     ColumnMapping      `json:"column_mapping" yaml:"column_mapping"`
	Formatters        Formatters         `json:"formatters" yaml:"formatters"`
	Constraints       Constraints        `json:"constraints" yaml:"constraints"`
	SanitizationRules []SanitizationRule `json:"sanitization_rules,omitempty" yaml:"sanitization_rules,omitempty"`
	BlockContract     BlockContract      `json:"block_contract" yaml:"block_contract"`
}

// ColumnMapping holds zero-based column indices for COLUMNS extraction.
// Optional columns are nil when absent.
type ColumnMapping struct {
	HeaderRows          int  `json:"header_rows" yaml:"header_rows"`
	DateColumn          int  `json:"date_column" yaml:"date_column"`
	DescriptionColumn   int  `json:"description_column" yaml:"description_column"`
	AmountColumn        *int `json:"amount_column,omitempty" yaml:"amount_column,omitempty"`
	DebitColumn         *int `json:"debit_column,omitempty" yaml:"debit_column,omitempty"`
	CreditColumn        *int `json:"credit_column,omitempty" yaml:"credit_column,omitempty"`
	PaymentMethodColumn *int `json:"payment_method_column,omitempty" yaml:"payment_method_column,omitempty"`
	TypeColumn          *int `json:"type_column,omitempty" yaml:"type_column,omitempty"`
}

// Formatters tune value normalization for a model.
type Formatters struct {
	// AnchorYear resolves partial dates; zero means discover it from the document.
	AnchorYear int  `json:"anchor_year,omitempty" yaml:"anchor_year,omitempty"`
	InvertSign bool `json:"invert_sign,omitempty" yaml:"invert_sign,omitempty"`
}

// Constraints filter rows that are not transactions.
type Constraints struct {
	SkipPatterns      []string `json:"skip_patterns,omitempty" yaml:"skip_patterns,omitempty"`
	IgnoreZeroAmounts bool     `json:"ignore_zero_amounts,omitempty" yaml:"ignore_zero_amounts,omitempty"`
}

// SanitizationRule is a regex replacement applied to cleaned descriptions.
type SanitizationRule struct {
	Pattern     string `json:"pattern" yaml:"pattern"`
	Replacement string `json:"replacement" yaml:"replacement"`
}

// BlockContract describes a free-form layout for AI extraction.
type BlockContract struct {
	Description string       `json:"description,omitempty" yaml:"description,omitempty"`
	Grouping    GroupingSpec `json:"grouping" yaml:"grouping"`
}

// GroupingSpec configures line grouping before block extraction.
// Empty regexes and an unset AllowMultiLine fall back to the default
// statement rules.
type GroupingSpec struct {
	DateRegex      string `json:"date_regex,omitempty" yaml:"date_regex,omitempty"`
	AmountRegex    string `json:"amount_regex,omitempty" yaml:"amount_regex,omitempty"`
	AllowMultiLine *bool  `json:"allow_multi_line,omitempty" yaml:"allow_multi_line,omitempty"`
}

// Strategy is the executable form of a StrategySpec: either Columns or Block.
type Strategy interface {
	ParserType() ParserType
	sealed()
}

// Columns extracts transactions from fixed column positions.
type Columns struct {
	Mapping      ColumnMapping
	Formatters   Formatters
	Constraints  Constraints
	Sanitization []SanitizationRule
}

// ParserType implements Strategy.
func (Columns) ParserType() ParserType { return ParserColumns }
func (Columns) sealed()                {}

// Block delegates extraction to an AI collaborator.
type Block struct {
	Contract   BlockContract
	Formatters Formatters
}

// ParserType implements Strategy.
func (Block) ParserType() ParserType { return ParserBlock }
func (Block) sealed()                {}

// Dispatch converts the persisted spec into its executable variant.
func (s StrategySpec) Dispatch() (Strategy, error) {
	switch s.ParserType {
	case ParserColumns, "":
		m := s.ColumnMapping
		if m.DateColumn < 0 || m.DescriptionColumn < 0 {
			return nil, eris.New("model: columns strategy requires date and description columns")
		}
		if m.AmountColumn == nil && m.DebitColumn == nil && m.CreditColumn == nil {
			return nil, eris.New("model: columns strategy requires an amount, debit or credit column")
		}
		if m.HeaderRows < 0 {
			return nil, eris.New("model: header rows must not be negative")
		}
		return Columns{
			Mapping:      m,
			Formatters:   s.Formatters,
			Constraints:  s.Constraints,
			Sanitization: s.SanitizationRules,
		}, nil
	case ParserBlock:
		return Block{Contract: s.BlockContract, Formatters: s.Formatters}, nil
	default:
		return nil, eris.Errorf("model: unknown parser type %q", s.ParserType)
	}
}

// Dispatch converts the model's strategy into its executable variant.
func (m LearnedFileModel) Dispatch() (Strategy, error) {
	return m.Strategy.Dispatch()
}

// Label returns a short identifier for logging.
func (m LearnedFileModel) Label() string {
	if m.Identity.Name != "" {
		return m.Identity.Name
	}
	return m.Identity.ID
}

// IntPtr returns a pointer to v. Used when building column mappings.
func IntPtr(v int) *int { return &v }

// BoolPtr returns a pointer to v.
func BoolPtr(v bool) *bool { return &v }
