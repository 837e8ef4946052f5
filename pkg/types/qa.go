// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

// QAItem is one open-ended question generated from a logic chain.
// Explanation records why the question is considered non-leaking.
type QAItem struct {
	Question    string `json:"question" yaml:"question"`
	Answer      string `json:"answer" yaml:"answer"`
	Explanation string `json:"explanation" yaml:"explanation"`
}

// DatasetEntry is one line of the final dataset.
type DatasetEntry struct {
	RecordIndex RecordIndex  `json:"original_sample_index" yaml:"original_sample_index"`
	QA          QAItem       `json:"basic_qa" yaml:"basic_qa"`
	Observation string       `json:"input_observation" yaml:"input_observation"`
	Context     string       `json:"input_context" yaml:"input_context"`
	LogicChains []LogicChain `json:"input_logic_chain" yaml:"input_logic_chain"`
	Review      *ChainReview `json:"review,omitempty" yaml:"review,omitempty"`
}

// ChainReview holds the 1-5 criterion scores a reviewer model gave a
// logic chain and its question.
type ChainReview struct {
	Scores       map[string]int `json:"scores" yaml:"scores"`
	Explanations []string       `json:"explanations,omitempty" yaml:"explanations,omitempty"`
}

// Min returns the lowest criterion score, or 0 when there are none.
func (r ChainReview) Min() int {
	lowest, seen := 0, false
	for _, s := range r.Scores {
		if !seen || s < lowest {
			lowest, seen = s, true
		}
	}
	return lowest
}
