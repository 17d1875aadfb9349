package config

// Settings holds the subset of per-index settings that materially affect
// the indexing and query pipelines (spec §4.2). It is cached in C2 and
// invalidated on write commit whenever settings or fields change.
type Settings struct {
	// SearchableAttributes: nil/empty means "all fields"; otherwise an
	// ordered list, earlier entries carry more Attribute-ranking-rule weight.
	SearchableAttributes []string `yaml:"searchable_attributes" json:"searchableAttributes"`

	// FilterableAttributes supports wildcards and nested path patterns
	// (e.g. "genre", "author.*", "_geo").
	FilterableAttributes []string `yaml:"filterable_attributes" json:"filterableAttributes"`

	SortableAttributes []string `yaml:"sortable_attributes" json:"sortableAttributes"`
	DisplayedAttributes []string `yaml:"displayed_attributes" json:"displayedAttributes"`

	DistinctAttribute string `yaml:"distinct_attribute" json:"distinctAttribute"`

	// RankingRules is the ordered ranking-rule cascade (spec §4.4.2).
	RankingRules []string `yaml:"ranking_rules" json:"rankingRules"`

	// TermsMatchingStrategy controls how the Words rule drops query terms
	// when the full conjunction matches nothing: "last" drops the
	// rightmost optional term first, "frequency" drops the most frequent
	// (least distinguishing) term first, "all" never drops any term.
	TermsMatchingStrategy string `yaml:"terms_matching_strategy" json:"termsMatchingStrategy"`

	StopWords []string            `yaml:"stop_words" json:"stopWords"`
	Synonyms  map[string][]string `yaml:"synonyms" json:"synonyms"`

	TypoTolerance TypoTolerance `yaml:"typo_tolerance" json:"typoTolerance"`

	// ProximityPrecision selects byWord (default) or byAttribute costing
	// for the Proximity ranking rule.
	ProximityPrecision string `yaml:"proximity_precision" json:"proximityPrecision"`

	Dictionary        []string `yaml:"dictionary" json:"dictionary"`
	SeparatorTokens    []string `yaml:"separator_tokens" json:"separatorTokens"`
	NonSeparatorTokens []string `yaml:"non_separator_tokens" json:"nonSeparatorTokens"`

	Faceting  FacetingSettings  `yaml:"faceting" json:"faceting"`
	Pagination PaginationSettings `yaml:"pagination" json:"pagination"`

	Embedders map[string]EmbedderSettings `yaml:"embedders" json:"embedders"`

	// SearchCutoffMs bounds ranking-cascade wall time (spec §4.4.2, §5).
	SearchCutoffMs int `yaml:"search_cutoff_ms" json:"searchCutoffMs"`
}

// TypoTolerance mirrors spec §4.2's typo-tolerance knobs.
type TypoTolerance struct {
	Enabled             bool     `yaml:"enabled" json:"enabled"`
	MinWordSizeForTypos MinWords `yaml:"min_word_size_for_typos" json:"minWordSizeForTypos"`
	DisableOnWords      []string `yaml:"disable_on_words" json:"disableOnWords"`
	DisableOnAttributes []string `yaml:"disable_on_attributes" json:"disableOnAttributes"`
}

// MinWords is the minimum word length required before a typo budget applies.
type MinWords struct {
	OneTypo  int `yaml:"one_typo" json:"oneTypo"`
	TwoTypos int `yaml:"two_typos" json:"twoTypos"`
}

// FacetingSettings bounds facet-distribution output (spec §4.2, §6.2).
type FacetingSettings struct {
	MaxValuesPerFacet int    `yaml:"max_values_per_facet" json:"maxValuesPerFacet"`
	SortFacetValuesBy string `yaml:"sort_facet_values_by" json:"sortFacetValuesBy"`
}

// PaginationSettings bounds result-set size (spec §4.2, §6.2 estimatedTotalHits cap).
type PaginationSettings struct {
	MaxTotalHits int `yaml:"max_total_hits" json:"maxTotalHits"`
}

// EmbedderSettings configures one named embedder (spec §4.6).
type EmbedderSettings struct {
	Source                  string            `yaml:"source" json:"source"` // userProvided|huggingFace|openAi|ollama|rest
	Model                   string            `yaml:"model" json:"model"`
	Revision                string            `yaml:"revision" json:"revision"`
	Pooling                 string            `yaml:"pooling" json:"pooling"`
	APIKey                  string            `yaml:"api_key" json:"apiKey,omitempty"`
	Dimensions              int               `yaml:"dimensions" json:"dimensions"`
	DocumentTemplate        string            `yaml:"document_template" json:"documentTemplate"`
	DocumentTemplateMaxBytes int              `yaml:"document_template_max_bytes" json:"documentTemplateMaxBytes"`
	DistributionMean        float64           `yaml:"distribution_mean" json:"distributionMean"`
	DistributionSigma       float64           `yaml:"distribution_sigma" json:"distributionSigma"`
	BinaryQuantized         bool              `yaml:"binary_quantized" json:"binaryQuantized"`
	URL                     string            `yaml:"url" json:"url,omitempty"`
	Headers                 map[string]string `yaml:"headers" json:"headers,omitempty"`
	RequestTemplate         string            `yaml:"request" json:"request,omitempty"`
	ResponseTemplate        string            `yaml:"response" json:"response,omitempty"`
}

// DefaultSettings returns the spec's default ranking-rule cascade and
// typo-tolerance thresholds (§4.4.2, §8.3).
func DefaultSettings() Settings {
	return Settings{
		RankingRules:          []string{"words", "typo", "proximity", "attribute", "exactness"},
		TermsMatchingStrategy: "last",
		TypoTolerance: TypoTolerance{
			Enabled: true,
			MinWordSizeForTypos: MinWords{
				OneTypo:  5,
				TwoTypos: 9,
			},
		},
		ProximityPrecision: "byWord",
		Faceting: FacetingSettings{
			MaxValuesPerFacet: 100,
			SortFacetValuesBy: "alpha",
		},
		Pagination: PaginationSettings{
			MaxTotalHits: 1000,
		},
		Embedders: map[string]EmbedderSettings{},
	}
}
