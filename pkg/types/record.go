// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types holds the data model shared by the pipeline stages, the
// checkpoint files, and the scoring aggregator.
package types

import (
	"encoding/json"
	"fmt"
)

// ImageSource locates the raw pixels of an image. Base64 takes precedence
// over LocalPath when both are set.
type ImageSource struct {
	Base64    string `json:"image_base64,omitempty" yaml:"image_base64,omitempty"`
	LocalPath string `json:"local_path,omitempty" yaml:"local_path,omitempty"`
}

// IsEmpty reports whether no pixel source is available.
func (s ImageSource) IsEmpty() bool {
	return s.Base64 == "" && s.LocalPath == ""
}

// ImageDescriptor describes one image of a record. Index is 1-based and is
// the same index used by annotations and logic chains.
type ImageDescriptor struct {
	Index       int    `json:"image_index" yaml:"image_index"`
	Caption     string `json:"caption" yaml:"caption"`
	FigID       string `json:"fig_id,omitempty" yaml:"fig_id,omitempty"`
	SubfigLabel string `json:"subfig_label,omitempty" yaml:"subfig_label,omitempty"`

	ImageSource `yaml:",inline"`
}

// ImageDescription is the raw text a model produced for one image.
type ImageDescription struct {
	ImageIndex  int    `json:"image_index" yaml:"image_index"`
	Description string `json:"description" yaml:"description"`
}

// SourceDescriptions groups the per-image descriptions produced by one
// vision backend.
type SourceDescriptions struct {
	Source       string             `json:"source" yaml:"source"`
	Descriptions []ImageDescription `json:"descriptions" yaml:"descriptions"`
}

// ImageAnnotation is the context-corrected reading of one image.
type ImageAnnotation struct {
	ImageIndex     int    `json:"image_index" yaml:"image_index"`
	FigID          string `json:"fig_id,omitempty" yaml:"fig_id,omitempty"`
	SubfigLabel    string `json:"subfig_label,omitempty" yaml:"subfig_label,omitempty"`
	Description    string `json:"description,omitempty" yaml:"description,omitempty"`
	Observation    string `json:"observation" yaml:"observation"`
	Interpretation string `json:"interpretation" yaml:"interpretation"`
}

// AnnotationSummary is the cross-image summary pair that accompanies the
// per-image annotations.
type AnnotationSummary struct {
	ObservationSummary    string `json:"observation_summary" yaml:"observation_summary"`
	InterpretationSummary string `json:"interpretation_summary" yaml:"interpretation_summary"`
}

// VisualQA is the vision-centred question set extracted from the
// observations of a record.
type VisualQA struct {
	QAPairs            map[string]QAPair `json:"qa_pairs" yaml:"qa_pairs"`
	ImageIndices       []int             `json:"image_indices" yaml:"image_indices"`
	BiomedicalEntities []string          `json:"biomedical_entities" yaml:"biomedical_entities"`
}

// QAPair is a single question/answer pair without explanation.
type QAPair struct {
	Question string `json:"question" yaml:"question"`
	Answer   string `json:"answer" yaml:"answer"`
}

// Record is one sample moving through the pipeline. Stages only ever add
// fields; a record is never stripped of a field it already carries.
type Record struct {
	Index        RecordIndex       `json:"original_sample_index" yaml:"original_sample_index"`
	TextSegments []string          `json:"text_list" yaml:"text_list,omitempty"`
	Background   string            `json:"back_info" yaml:"back_info"`
	Images       []ImageDescriptor `json:"image_info" yaml:"image_info,omitempty"`

	Context             string   `json:"context,omitempty" yaml:"context,omitempty"`
	Category            string   `json:"category,omitempty" yaml:"category,omitempty"`
	Keywords            []string `json:"keywords,omitempty" yaml:"keywords,omitempty"`
	RawKeywords         string   `json:"extracted_keywords,omitempty" yaml:"extracted_keywords,omitempty"`
	DistilledBackground string   `json:"distilled_background,omitempty" yaml:"distilled_background,omitempty"`

	ImageDescriptions     []SourceDescriptions `json:"model_enhanced_captions,omitempty" yaml:"model_enhanced_captions,omitempty"`
	ConsensusDescriptions []ImageDescription   `json:"consensus_image_descriptions,omitempty" yaml:"consensus_image_descriptions,omitempty"`
	Annotations           []ImageAnnotation    `json:"context_enhanced_captions,omitempty" yaml:"context_enhanced_captions,omitempty"`
	Summary               *AnnotationSummary   `json:"context_enhanced_summary,omitempty" yaml:"context_enhanced_summary,omitempty"`

	VisualQA    *VisualQA    `json:"visual_qa,omitempty" yaml:"visual_qa,omitempty"`
	LogicChains []LogicChain `json:"logic_chain,omitempty" yaml:"logic_chain,omitempty"`
	QA          *QAItem      `json:"basic_qa,omitempty" yaml:"basic_qa,omitempty"`
	Review      *ChainReview `json:"review,omitempty" yaml:"review,omitempty"`
}

// HasImage reports whether idx names one of the record's images.
func (r *Record) HasImage(idx int) bool {
	for _, img := range r.Images {
		if img.Index == idx {
			return true
		}
	}
	return false
}

// NormalizeImageIndices assigns 1-based indices to images that arrive
// without one, in list order.
func (r *Record) NormalizeImageIndices() {
	for i := range r.Images {
		if r.Images[i].Index == 0 {
			r.Images[i].Index = i + 1
		}
	}
}

// RecordIndex is the opaque, stable identifier of a record. Source corpora
// use either integers or strings; the raw JSON form is preserved.
type RecordIndex string

// UnmarshalJSON accepts a JSON string or number.
func (ri *RecordIndex) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*ri = RecordIndex(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("record index must be a string or number: %s", string(data))
	}
	*ri = RecordIndex(n.String())
	return nil
}

// MarshalJSON writes numeric indices back as numbers so checkpoints stay
// compatible with the source corpus.
func (ri RecordIndex) MarshalJSON() ([]byte, error) {
	n := json.Number(ri)
	if _, err := n.Int64(); err == nil {
		return []byte(ri), nil
	}
	return json.Marshal(string(ri))
}

func (ri RecordIndex) String() string {
	return string(ri)
}
