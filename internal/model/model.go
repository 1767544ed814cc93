// Package model defines the entity types persisted by the local cache:
// Ollama models, chat conversations, messages, and attachments.
package model

import "time"

// Details describes a model's format and parameter layout, as reported
// by the catalog listing.
type Details struct {
	Format            string   `json:"format"`
	Family            string   `json:"family"`
	Families          []string `json:"families,omitempty"`
	ParameterSize     string   `json:"parameter_size"`
	QuantizationLevel string   `json:"quantization_level"`
	ParentModel       string   `json:"parent_model,omitempty"`
}

// Info holds extended model metadata from a detail fetch. Fields map the
// stored JSON representation explicitly; unknown keys land in Extra so
// the persisted shape is a checked contract rather than an implicit one.
type Info struct {
	Architecture        string `json:"architecture,omitempty"`
	FileType            int    `json:"file_type,omitempty"`
	ParameterCount      int64  `json:"parameter_count,omitempty"`
	QuantizationVersion int    `json:"quantization_version,omitempty"`

	AttentionHeadCount   int     `json:"attention_head_count,omitempty"`
	AttentionHeadCountKV int     `json:"attention_head_count_kv,omitempty"`
	LayerNormRMSEpsilon  float64 `json:"attention_layer_norm_rms_epsilon,omitempty"`
	BlockCount           int     `json:"block_count,omitempty"`
	ContextLength        int     `json:"context_length,omitempty"`
	EmbeddingLength      int     `json:"embedding_length,omitempty"`
	FeedForwardLength    int     `json:"feed_forward_length,omitempty"`
	VocabSize            int     `json:"vocab_size,omitempty"`

	BOSTokenID     int    `json:"bos_token_id,omitempty"`
	EOSTokenID     int    `json:"eos_token_id,omitempty"`
	TokenizerModel string `json:"tokenizer_model,omitempty"`

	Extra map[string]any `json:"extra,omitempty"`
}

// Model represents an Ollama model with its catalog entry and any cached
// extended metadata.
type Model struct {
	Name       string    `json:"name"`
	Size       int64     `json:"size"`
	Digest     string    `json:"digest"`
	ModifiedAt time.Time `json:"modified_at"`

	Details      Details  `json:"details"`
	Capabilities []string `json:"capabilities,omitempty"`
	Info         *Info    `json:"info,omitempty"`

	LastAccessed time.Time `json:"last_accessed,omitempty"`
	CreatedAt    time.Time `json:"created_at,omitempty"`
	UpdatedAt    time.Time `json:"updated_at,omitempty"`
}

// HasDetails reports whether a detail fetch has populated this model.
func (m *Model) HasDetails() bool {
	return m.Info != nil && len(m.Capabilities) > 0
}

// ShortName returns the model name without its tag.
func (m *Model) ShortName() string {
	for i, r := range m.Name {
		if r == ':' {
			return m.Name[:i]
		}
	}
	return m.Name
}
