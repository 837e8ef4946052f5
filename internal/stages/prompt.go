// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package stages

import (
	"bytes"
	"fmt"
	"text/template"
)

// classifyPromptTmpl asks whether a record belongs to the biomedical domain.
var classifyPromptTmpl = template.Must(template.New("classify").Parse(`You are a data classifier. Decide whether the text below describes biomedical, medical, or clinical content (for example pathology, anatomy, cell biology, medical imaging, or clinical reports).

Text:
{{.Context}}

Respond with a JSON object holding a single boolean field "is_biomedical" and nothing else.
Example: {"is_biomedical": true}
`))

// keywordPromptTmpl classifies the record into one research category and
// extracts domain keywords in a single "[Category]: kw, kw" line.
var keywordPromptTmpl = template.Must(template.New("keywords").Parse(`You are a biomedical research analyst. Classify the text and image captions below, then extract keywords.

Text:
{{.Context}}
(The text may contain [Image N] markers showing where images appear. You cannot see the images; rely on the captions.)

Image captions:
{{.Captions}}

Step 1. Choose exactly one category:
- Basic Medical Science: mechanisms of life and disease (molecular biology, genetics, immunology, physiology, anatomy, neuroscience, pathogenesis models).
- Clinical Medicine: diagnosis, treatment and management of patients (specific diseases, surgery, case studies, outcomes).
- Diagnostics & Laboratory Medicine: detection and diagnosis methods (histopathology, cytopathology, radiology, MRI, CT, biomarkers, assays).
- Pharmacy & Therapeutics: drug discovery and application (pharmacology, drug targets, resistance, drug trials).

Step 2. Extract 10 to 15 specific keywords relevant to the chosen category: protein or gene names, cell types, diseases, grading criteria, drugs, key findings. Avoid generic words.

Output exactly one line in this form and nothing else:
[Category Name]: keyword1, keyword2, keyword3
`))

// distillPromptTmpl condenses a long background into a focused summary.
var distillPromptTmpl = template.Must(template.New("distill").Parse(`You are a biomedical science editor. Distill the background below into a concise summary focused on the biomedical entities it discusses.

Background:
{{.Background}}

Requirements:
1. Between 100 and 200 words.
2. Explain the core scientific problem and the knowledge needed to understand it.
3. Use formal, objective scientific language.

Summary:
`))

// describePromptTmpl asks a vision backend for a purely visual description
// of one image, grounded in its caption.
var describePromptTmpl = template.Must(template.New("describe").Parse(`You are a biomedical researcher. Describe the visual content of the attached image, grounded in its caption.

Caption:
{{.Caption}}

Describe the visible features in detail. Do not draw conclusions. Do not output a list. Do not mention image numbers. Output only the description paragraph.
`))

// consensusPromptTmpl merges the descriptions several vision sources
// produced for the same image.
var consensusPromptTmpl = template.Must(template.New("consensus").Parse(`You are a senior biomedical image analyst. Several experts described the same image. Their descriptions may contain interpretations; ignore those.

{{range .Sources}}[Source: {{.Name}}]:
{{.Description}}

{{end}}Produce one observation report:
1. Where several sources agree on a feature, keep the majority reading as an established fact.
2. Merge details mentioned by a single source only when they do not contradict the established facts or biomedical plausibility.
3. Describe only visible morphology (cells, staining, structures). Never write "consistent with", "indicates", "suggests" or similar reasoning.

Output only the merged description paragraph.
`))

// enhancePromptTmpl verifies image descriptions against the source text and
// separates pure observation from interpretation.
var enhancePromptTmpl = template.Must(template.New("enhance").Parse(`You are a biomedical researcher. Using the background, keywords, source text and initial image descriptions below, produce per-image observations and interpretations.

Background:
{{.Background}}

Keywords:
{{.Keywords}}

Source text:
{{.Context}}

Initial image descriptions:
{{.Descriptions}}

Rules:
- The source text contains [Image N] markers. Use the text around each marker to verify the matching description.
- observations: correct a description only where it contradicts the source text and keep every non-conflicting visual detail. Purely descriptive; no reasoning or causal language.
- interpretations: explain the biological meaning of the verified observation using the background and source text.
- summary: for one image, a concise overview of that image; for several, the common themes across them. The observation summary stays descriptive; the interpretation summary gives the joint conclusion.
- Use exactly one key per input image, named "Image N".

Respond with JSON only:
{"Context_Enhanced_Captions": {"observations": {"Image 1": "...", "summary": "..."}, "interpretations": {"Image 1": "...", "summary": "..."}}}
`))

// visualQAPromptTmpl extracts vision-centred QA pairs from observations.
var visualQAPromptTmpl = template.Must(template.New("visualqa").Parse(`You are an expert in biomedical image analysis. Generate vision-centred question/answer pairs based only on the observations below, and list every biomedical entity they mention.

Observations (one per image, followed by a summary):
{{.Observation}}

Requirements:
1. Questions ask only about visual attributes. With one image, ask descriptive questions about that image only. With several images, questions may compare closely related images and must cite at least two of them (e.g. "Image 1, Image 2").
2. No diagnosis, significance or "why" reasoning in questions or answers.
3. Answers rely only on the observation text.
4. Each question is a single query, never compound.

Respond with a JSON list holding one object:
[{"qa_pairs": {"qa1": {"question": "...", "answer": "..."}}, "image_indices": [1], "biomedical_entities": ["..."]}]
`))

// logicChainPromptTmpl builds Research Context -> Experiments -> Conclusion
// chains with provenance-tagged visual phenomena.
var logicChainPromptTmpl = template.Must(template.New("logicchain").Parse(`You are a rigorous biomedical expert. Build logical reasoning chains from the source text and visual evidence below.

Source text:
{{.Context}}

Visual evidence:
{{.Observation}}

Requirements:
- Each independent study in the text becomes a separate chain: Research Context -> Experiments -> Conclusion.
- Each experiment follows: Experimental Setting -> Experiment Goal -> Visual Phenomenon -> Interpretation -> Sub-Conclusion.
- Visual Phenomenon holds only what is seen, never its interpretation.
- Tag the phenomenon with its source: [Image N] (or [Image 1, Image 2]) when it appears in the visual evidence; [Context] when the source text states it; [Missing] when no phenomenon is available.
- Avoid precise numbers unless the same numbers appear in the setting.
- Include every intermediate sub-conclusion needed to reach the conclusion, omit experiments that do not contribute, and end every chain with a clear conclusion.

Respond with a JSON list:
[{"research_context": "...",
  "experiments": [{"experimental_setting": "...", "experiment_goal": "...", "visual_phenomenon": "... [Image 1]", "interpretation": "...", "sub_conclusion": "..."}],
  "reasoning": {"intermediate_inferences": [{"sub_conclusion": "...", "based_on_experiments": [1]}], "content": "...", "conclusion": "..."}}]
`))

// openQAPromptTmpl turns one logic chain into an open-ended exam question
// under the disclosure plan.
var openQAPromptTmpl = template.Must(template.New("openqa").Parse(`You are a biomedical expert writing a hard, open-ended exam question that tests comprehension of the logic chain below. The answer must contain the whole reasoning chain.

Logic chain:
{{.Chain}}

Visual evidence:
{{.Observation}}

Source text:
{{.Context}}

What the question may reveal, experiment by experiment:
{{.Plan}}
Never reveal in the question: experiment goals, interpretations, sub-conclusions, intermediate inferences, the reasoning narrative, or the conclusion. Never write sentences like "Image N shows ...". Give no hints about how to reason to the answer.

Respond with JSON only:
{"explanation": "how the question follows these rules", "question": "...", "answer": "..."}
`))

// Chain review prompts score a finished chain and question on a 1-5 scale
// inside a <scores> block.
var reviewCoherencePromptTmpl = template.Must(template.New("review-coherence").Parse(`You are an expert in biomedical reasoning. Evaluate how the chain below moves from experimental facts to intermediate inferences to the conclusion.

Chain:
{{.Chain}}

Score each criterion from 1 (critical fail) to 5 (pass):
- Evidence Support Strength: the final content is derived strictly from the intermediate inferences.
- Logical Flow and Coherence: the conclusion follows naturally from the preceding steps.

Respond exactly in this form:
<scores>
{"Evidence Support Strength": A, "Logical Flow and Coherence": B}
</scores>
<explanation>
Brief justification.
</explanation>
`))

var reviewGroundingPromptTmpl = template.Must(template.New("review-grounding").Parse(`You are an expert in biomedical fact-checking. Verify that the visual phenomena below are supported by the observations or the source text.

Observations:
{{.Observation}}

Source text:
{{.Context}}

Visual phenomena:
{{.Phenomena}}

Score from 1 (hallucinated or contradicted) to 5 (every statement grounded):
- Source Grounding & Verification

Respond exactly in this form:
<scores>
{"Source Grounding & Verification": A}
</scores>
<explanation>
Quote any unsupported part.
</explanation>
`))

var reviewAlignmentPromptTmpl = template.Must(template.New("review-alignment").Parse(`You are an expert in evaluating question-answering logic.

Question:
{{.Question}}

Observations:
{{.Observation}}

Logic chain:
{{.Chain}}

Conclusion:
{{.Conclusion}}

Score each criterion from 1 (fail) to 5 (pass):
- Question-Conclusion Alignment: the conclusion directly answers the question.
- Scale/Legend Consistency Check: scale information used by the reasoning is also present in the question.
- Reasoning Validity: given only the context, settings and phenomena, nothing in the inferences or conclusion is impossible to know.

Respond exactly in this form:
<scores>
{"Question-Conclusion Alignment": A, "Scale/Legend Consistency Check": B, "Reasoning Validity": C}
</scores>
<explanation>
Brief justification.
</explanation>
`))

func render(tmpl *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("rendering %s prompt: %w", tmpl.Name(), err)
	}
	return buf.String(), nil
}
