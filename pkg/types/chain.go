// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// ProvenanceKind classifies where an experiment's visual phenomenon comes
// from. The kind, not the phenomenon text, decides what a generated
// question may reveal.
type ProvenanceKind string

const (
	// ProvenanceImage: the phenomenon is visible in one or more record images.
	ProvenanceImage ProvenanceKind = "image"
	// ProvenanceContext: the phenomenon is stated by the source text.
	ProvenanceContext ProvenanceKind = "context"
	// ProvenanceMissing: no visual phenomenon is available.
	ProvenanceMissing ProvenanceKind = "missing"
)

// Provenance is the parsed tag of a visual phenomenon.
type Provenance struct {
	Kind   ProvenanceKind `json:"kind" yaml:"kind"`
	Images []int          `json:"images,omitempty" yaml:"images,omitempty"`
}

var (
	imageTagRe   = regexp.MustCompile(`(?i)\[\s*(images?\s*[0-9][^\[\]]*)\]`)
	contextTagRe = regexp.MustCompile(`(?i)\[\s*context\s*\]`)
	missingTagRe = regexp.MustCompile(`(?i)\[\s*missing\s*\]`)
	digitsRe     = regexp.MustCompile(`[0-9]+`)
)

// ParseProvenance reads the provenance tag out of a visual phenomenon.
// Image tags win over [Context], which wins over [Missing]. Untagged text
// is treated as context-derived; an empty phenomenon is missing.
func ParseProvenance(phenomenon string) Provenance {
	if matches := imageTagRe.FindAllStringSubmatch(phenomenon, -1); len(matches) > 0 {
		seen := make(map[int]bool)
		var images []int
		for _, m := range matches {
			for _, d := range digitsRe.FindAllString(m[1], -1) {
				n, err := strconv.Atoi(d)
				if err != nil || seen[n] {
					continue
				}
				seen[n] = true
				images = append(images, n)
			}
		}
		sort.Ints(images)
		return Provenance{Kind: ProvenanceImage, Images: images}
	}
	if contextTagRe.MatchString(phenomenon) {
		return Provenance{Kind: ProvenanceContext}
	}
	if missingTagRe.MatchString(phenomenon) || strings.TrimSpace(phenomenon) == "" {
		return Provenance{Kind: ProvenanceMissing}
	}
	return Provenance{Kind: ProvenanceContext}
}

// StripProvenanceTags removes every provenance tag from a phenomenon,
// leaving the descriptive text.
func StripProvenanceTags(phenomenon string) string {
	s := imageTagRe.ReplaceAllString(phenomenon, "")
	s = contextTagRe.ReplaceAllString(s, "")
	s = missingTagRe.ReplaceAllString(s, "")
	return strings.Join(strings.Fields(s), " ")
}

// Experiment is one step of a logic chain.
type Experiment struct {
	ExperimentalSetting string `json:"experimental_setting" yaml:"experimental_setting"`
	ExperimentGoal      string `json:"experiment_goal" yaml:"experiment_goal"`
	VisualPhenomenon    string `json:"visual_phenomenon" yaml:"visual_phenomenon"`
	Interpretation      string `json:"interpretation" yaml:"interpretation"`
	SubConclusion       string `json:"sub_conclusion" yaml:"sub_conclusion"`
}

// Provenance parses the experiment's visual phenomenon tag.
func (e Experiment) Provenance() Provenance {
	return ParseProvenance(e.VisualPhenomenon)
}

// Inference is an intermediate step between experiments and the conclusion.
type Inference struct {
	SubConclusion      string `json:"sub_conclusion" yaml:"sub_conclusion"`
	BasedOnExperiments []int  `json:"based_on_experiments" yaml:"based_on_experiments"`
}

// Reasoning closes a logic chain.
type Reasoning struct {
	IntermediateInferences []Inference `json:"intermediate_inferences" yaml:"intermediate_inferences"`
	Content                string      `json:"content" yaml:"content"`
	Conclusion             string      `json:"conclusion" yaml:"conclusion"`
}

// LogicChain is the Research Context -> Experiments -> Conclusion
// structure a question is generated from.
type LogicChain struct {
	ResearchContext string       `json:"research_context" yaml:"research_context"`
	Experiments     []Experiment `json:"experiments" yaml:"experiments"`
	Reasoning       Reasoning    `json:"reasoning" yaml:"reasoning"`
}

// ReferencedImages returns the distinct image indices cited by the chain's
// experiments, in ascending order.
func (c LogicChain) ReferencedImages() []int {
	seen := make(map[int]bool)
	var out []int
	for _, exp := range c.Experiments {
		for _, idx := range exp.Provenance().Images {
			if !seen[idx] {
				seen[idx] = true
				out = append(out, idx)
			}
		}
	}
	sort.Ints(out)
	return out
}
