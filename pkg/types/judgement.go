// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Judgement is the grader's verdict on one generated answer.
type Judgement struct {
	// ConclusionScore is the judged integer in [0,4].
	ConclusionScore Score                 `json:"conclusion_score"`
	Experiments     []ExperimentJudgement `json:"experiments"`
}

// ExperimentJudgement holds the per-experiment flags. VisualPhenomenon is
// -1 when visual evidence is intentionally absent, otherwise 0 or 1.
type ExperimentJudgement struct {
	VisualPhenomenon Score `json:"visual_phenomenon"`
	Interpretation   Score `json:"interpretation"`
	SubConclusion    Score `json:"sub-conclusion"`
}

// Score is a numeric grader output. Graders emit numbers or numeric
// strings; both decode to the same value.
type Score float64

// UnmarshalJSON accepts a JSON number or a string holding a number.
func (s *Score) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "null" {
		*s = 0
		return nil
	}
	if strings.HasPrefix(raw, `"`) {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		raw = strings.TrimSpace(str)
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fmt.Errorf("invalid score %s: %w", string(data), err)
	}
	*s = Score(f)
	return nil
}
