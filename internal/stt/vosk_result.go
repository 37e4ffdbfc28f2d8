package stt

import (
	"encoding/json"
	"fmt"
	"math"
)

// voskResult mirrors the JSON documents produced by a Vosk recognizer.
// With alternatives enabled the top-level text is replaced by a ranked
// list whose confidences are unnormalized decoder scores.
type voskResult struct {
	Text         string     `json:"text"`
	Result       []voskWord `json:"result,omitempty"`
	Partial      string     `json:"partial,omitempty"`
	Alternatives []struct {
		Text       string  `json:"text"`
		Confidence float64 `json:"confidence"`
	} `json:"alternatives,omitempty"`
}

type voskWord struct {
	Conf  float64 `json:"conf"`
	End   float64 `json:"end"`
	Start float64 `json:"start"`
	Word  string  `json:"word"`
}

// DecodeVoskResult converts a Vosk JSON document into a Result
func DecodeVoskResult(data string, partial bool, language string) (*Result, error) {
	var vr voskResult
	if err := json.Unmarshal([]byte(data), &vr); err != nil {
		return nil, fmt.Errorf("failed to parse vosk result: %w", err)
	}

	result := &Result{Partial: partial, Language: language}

	if partial {
		result.Text = vr.Partial
		return result, nil
	}

	if len(vr.Alternatives) > 0 {
		scores := make([]float64, len(vr.Alternatives))
		for i, alt := range vr.Alternatives {
			scores[i] = alt.Confidence
		}
		probs := softmax(scores)
		for i, alt := range vr.Alternatives {
			result.Alternatives = append(result.Alternatives, Alternative{Text: alt.Text, Confidence: probs[i]})
		}
		result.Text = result.Alternatives[0].Text
		result.Confidence = result.Alternatives[0].Confidence
		return result, nil
	}

	result.Text = vr.Text
	result.Confidence = averageWordConfidence(vr.Result)
	if result.Text != "" {
		result.Alternatives = []Alternative{{Text: result.Text, Confidence: result.Confidence}}
	}
	return result, nil
}

// averageWordConfidence calculates the mean confidence of word results
func averageWordConfidence(words []voskWord) float64 {
	if len(words) == 0 {
		return 0.0
	}

	var sum float64
	for _, w := range words {
		sum += w.Conf
	}
	return sum / float64(len(words))
}

func softmax(scores []float64) []float64 {
	maxScore := math.Inf(-1)
	for _, s := range scores {
		maxScore = math.Max(maxScore, s)
	}

	out := make([]float64, len(scores))
	var sum float64
	for i, s := range scores {
		out[i] = math.Exp(s - maxScore)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}
