// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package stages

import (
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/pdiddy/sciqa/pkg/types"
)

// A question may reveal the research context and every experiment
// setting. A phenomenon is revealed only when it comes from the source
// text; a missing phenomenon is replaced by the experiment's direct
// result. Goals, interpretations, sub-conclusions, inferences, the
// reasoning narrative and the conclusion are never revealed. Scale
// information in any phenomenon must be surfaced.

// leakRunWords is the length of the shared word run that counts as a
// verbatim leak. Hidden texts shorter than minHiddenWords are not checked.
const (
	leakRunWords   = 8
	minHiddenWords = 3

	// coverageThreshold is the fraction of a required text's content words
	// the question must contain for the text to count as present.
	coverageThreshold = 0.5
)

var (
	scaleRe      = regexp.MustCompile(`(?i)(scale\s*bars?[^.;]*|\b\d+(?:\.\d+)?\s*(?:nm|µm|μm|um|mm|cm)\b)`)
	imageShowsRe = regexp.MustCompile(`(?i)\[?\s*image\s*\d+\s*\]?\s+(?:shows|showed|reveals|revealed|demonstrates|displays|depicts)\b`)
	wordRe       = regexp.MustCompile(`[\p{L}\p{N}]+`)
)

// ExperimentDisclosure lists, for one experiment, what a question must
// reveal and what it must hide.
type ExperimentDisclosure struct {
	Number     int
	Provenance types.Provenance
	Setting    string

	// Phenomenon is the tag-free phenomenon text of a context-derived
	// experiment; it must be revealed.
	Phenomenon string

	// Result is the direct result of a missing-phenomenon experiment.
	Result string

	// Scale is scale-bar text that must be surfaced, if any.
	Scale string

	// Hidden maps field names to text the question must not contain.
	Hidden map[string]string
}

// DisclosurePlan is the per-chain contract a generated question is
// audited against.
type DisclosurePlan struct {
	ResearchContext string
	Experiments     []ExperimentDisclosure

	// Hidden holds chain-level text: inferences, reasoning and conclusion.
	Hidden map[string]string
}

// PlanDisclosure derives the disclosure contract from a chain's
// provenance tags.
func PlanDisclosure(chain types.LogicChain) DisclosurePlan {
	plan := DisclosurePlan{
		ResearchContext: chain.ResearchContext,
		Hidden:          make(map[string]string),
	}
	for i, exp := range chain.Experiments {
		prov := exp.Provenance()
		ed := ExperimentDisclosure{
			Number:     i + 1,
			Provenance: prov,
			Setting:    exp.ExperimentalSetting,
			Hidden: map[string]string{
				"goal":           exp.ExperimentGoal,
				"interpretation": exp.Interpretation,
				"sub-conclusion": exp.SubConclusion,
			},
		}
		text := types.StripProvenanceTags(exp.VisualPhenomenon)
		if m := scaleRe.FindString(text); m != "" {
			ed.Scale = strings.TrimSpace(m)
		}
		switch prov.Kind {
		case types.ProvenanceImage:
			ed.Hidden["visual phenomenon"] = scaleRe.ReplaceAllString(text, "")
		case types.ProvenanceContext:
			ed.Phenomenon = text
		case types.ProvenanceMissing:
			ed.Result = text
		}
		plan.Experiments = append(plan.Experiments, ed)
	}
	for i, inf := range chain.Reasoning.IntermediateInferences {
		plan.Hidden[fmt.Sprintf("intermediate inference %d", i+1)] = inf.SubConclusion
	}
	plan.Hidden["reasoning"] = chain.Reasoning.Content
	plan.Hidden["conclusion"] = chain.Reasoning.Conclusion
	return plan
}

// String renders the plan as prompt guidance.
func (p DisclosurePlan) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "- Research context: provide it.\n")
	for _, e := range p.Experiments {
		fmt.Fprintf(&sb, "- Experiment %d: provide the setting.", e.Number)
		switch e.Provenance.Kind {
		case types.ProvenanceImage:
			fmt.Fprintf(&sb, " Its phenomenon is visible in the images; do not describe it.")
		case types.ProvenanceContext:
			fmt.Fprintf(&sb, " Provide the observed phenomenon: %q.", e.Phenomenon)
		case types.ProvenanceMissing:
			fmt.Fprintf(&sb, " No phenomenon is available; provide the direct result only, not its interpretation.")
		}
		if e.Scale != "" {
			fmt.Fprintf(&sb, " Mention the scale: %q.", e.Scale)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// ViolationKind separates dataset-corrupting leaks from softer omissions.
type ViolationKind string

const (
	// Leak: the question reveals text it must hide.
	Leak ViolationKind = "leak"
	// Omission: the question drops text it should reveal.
	Omission ViolationKind = "omission"
)

// Violation is one audit finding. Experiment is 0 for chain-level fields.
type Violation struct {
	Kind       ViolationKind
	Experiment int
	Field      string
}

func (v Violation) String() string {
	if v.Experiment == 0 {
		return fmt.Sprintf("%s: %s", v.Kind, v.Field)
	}
	return fmt.Sprintf("%s: experiment %d %s", v.Kind, v.Experiment, v.Field)
}

// AuditQuestion checks a generated question against plan. Leaks are
// detected by shared verbatim word runs; omissions by content-word
// coverage.
func AuditQuestion(plan DisclosurePlan, question string) []Violation {
	qWords := words(question)
	qRuns := wordRuns(qWords)
	qSet := make(map[string]bool, len(qWords))
	for _, w := range qWords {
		qSet[w] = true
	}

	var out []Violation
	if imageShowsRe.MatchString(question) {
		out = append(out, Violation{Kind: Leak, Field: "image description"})
	}
	for _, e := range plan.Experiments {
		for _, field := range sortedKeys(e.Hidden) {
			if leaks(qRuns, e.Hidden[field]) {
				out = append(out, Violation{Kind: Leak, Experiment: e.Number, Field: field})
			}
		}
		if !covered(qSet, e.Setting) {
			out = append(out, Violation{Kind: Omission, Experiment: e.Number, Field: "setting"})
		}
		if e.Phenomenon != "" && !covered(qSet, e.Phenomenon) {
			out = append(out, Violation{Kind: Omission, Experiment: e.Number, Field: "visual phenomenon"})
		}
		if e.Result != "" && !covered(qSet, e.Result) {
			out = append(out, Violation{Kind: Omission, Experiment: e.Number, Field: "direct result"})
		}
		if e.Scale != "" && !covered(qSet, e.Scale) {
			out = append(out, Violation{Kind: Omission, Experiment: e.Number, Field: "scale"})
		}
	}
	for _, field := range sortedKeys(plan.Hidden) {
		if leaks(qRuns, plan.Hidden[field]) {
			out = append(out, Violation{Kind: Leak, Field: field})
		}
	}
	return out
}

// Leaks filters violations down to leaks.
func Leaks(vs []Violation) []Violation {
	var out []Violation
	for _, v := range vs {
		if v.Kind == Leak {
			out = append(out, v)
		}
	}
	return out
}

func words(s string) []string {
	return wordRe.FindAllString(strings.ToLower(s), -1)
}

func wordRuns(ws []string) map[string]bool {
	runs := make(map[string]bool)
	for n := minHiddenWords; n <= leakRunWords; n++ {
		for i := 0; i+n <= len(ws); i++ {
			runs[strings.Join(ws[i:i+n], " ")] = true
		}
	}
	return runs
}

// leaks reports whether the question contains a run of the hidden text
// that is leakRunWords long, or all of it when the text is shorter.
func leaks(qRuns map[string]bool, hidden string) bool {
	hw := words(hidden)
	if len(hw) < minHiddenWords {
		return false
	}
	n := min(leakRunWords, len(hw))
	for i := 0; i+n <= len(hw); i++ {
		if qRuns[strings.Join(hw[i:i+n], " ")] {
			return true
		}
	}
	return false
}

// covered reports whether enough content words of text appear in the
// question. Text with no content words is trivially covered.
func covered(qSet map[string]bool, text string) bool {
	var total, hit int
	for _, w := range words(text) {
		if len(w) < 4 && !isNumeric(w) {
			continue
		}
		total++
		if qSet[w] {
			hit++
		}
	}
	return total == 0 || float64(hit)/float64(total) >= coverageThreshold
}

func isNumeric(w string) bool {
	for _, r := range w {
		if r < '0' || r > '9' {
			return false
		}
	}
	return w != ""
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
