// Package confidence tracks recognition outcomes and adapts the confidence
// threshold a transcript must reach before it is interpreted.
package confidence

import (
	"math"
	"sync"
)

const (
	// WindowSize is the number of successful confidences averaged
	WindowSize = 10

	// Bounds for a threshold chosen by the user
	MinUserThreshold = 0.1
	MaxUserThreshold = 1.0

	// Bounds for a threshold chosen by adaptation
	MinAdaptiveThreshold = 0.3
	MaxAdaptiveThreshold = 0.7
)

// Outcome is the result of one terminal recognition session
type Outcome struct {
	Success    bool
	Confidence float64
	ErrorKind  string
}

// Analytics is a snapshot of recognition performance
type Analytics struct {
	TotalAttempts          int
	SuccessfulRecognitions int
	AverageConfidence      float64
	ErrorRate              float64 // percent
	LastErrorKind          string
	Threshold              float64
	Adaptive               bool
}

// Controller holds process-wide recognition analytics and the dynamic
// threshold. Create one at startup and share it; the zero value is not usable.
type Controller struct {
	mu        sync.Mutex
	attempts  int
	successes int
	window    []float64
	average   float64
	errorRate float64
	lastError string
	threshold float64
	adaptive  bool
}

// NewController creates a controller starting at threshold. In adaptive mode
// the threshold is clamped to the adaptive bounds, otherwise to user bounds.
func NewController(threshold float64, adaptive bool) *Controller {
	c := &Controller{
		window:   make([]float64, 0, WindowSize),
		adaptive: adaptive,
	}
	c.threshold = c.clamp(threshold)
	return c
}

// ThresholdFromSensitivity maps a 0..1 sensitivity setting to a threshold.
// Higher sensitivity accepts lower-confidence transcripts.
func ThresholdFromSensitivity(sensitivity float64) float64 {
	return clamp(1-sensitivity, MinUserThreshold, MaxUserThreshold)
}

// RecordOutcome updates analytics with one terminal outcome and, on
// success, adapts the threshold.
func (c *Controller) RecordOutcome(o Outcome) {
	c.mu.Lock()
	defer c.mu.Unlock()

	prevErrorRate := c.errorRate

	c.attempts++
	if o.Success {
		c.successes++
		c.window = append(c.window, o.Confidence)
		if len(c.window) > WindowSize {
			c.window = c.window[len(c.window)-WindowSize:]
		}
		c.average = mean(c.window)
	} else {
		c.lastError = o.ErrorKind
	}
	c.errorRate = float64(c.attempts-c.successes) / float64(c.attempts) * 100

	if o.Success && c.adaptive {
		c.adapt(prevErrorRate)
	}
}

func (c *Controller) adapt(prevErrorRate float64) {
	switch {
	case c.average > 0.8 && prevErrorRate < 10:
		c.threshold = math.Max(MinAdaptiveThreshold, c.average-0.2)
	case c.average < 0.6 || prevErrorRate > 20:
		c.threshold = math.Min(MaxAdaptiveThreshold, c.average+0.1)
	}
	c.threshold = clamp(c.threshold, MinAdaptiveThreshold, MaxAdaptiveThreshold)
}

// Threshold returns the current acceptance threshold
func (c *Controller) Threshold() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.threshold
}

// Accepts reports whether confidence clears the current threshold
func (c *Controller) Accepts(confidence float64) bool {
	return confidence >= c.Threshold()
}

// SetThreshold applies a user preference and disables adaptation
func (c *Controller) SetThreshold(v float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.adaptive = false
	c.threshold = c.clamp(v)
}

// SetAdaptive toggles adaptation, clamping the current threshold into the
// bounds of the new mode.
func (c *Controller) SetAdaptive(adaptive bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.adaptive = adaptive
	c.threshold = c.clamp(c.threshold)
}

// Snapshot returns a copy of the current analytics
func (c *Controller) Snapshot() Analytics {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Analytics{
		TotalAttempts:          c.attempts,
		SuccessfulRecognitions: c.successes,
		AverageConfidence:      c.average,
		ErrorRate:              c.errorRate,
		LastErrorKind:          c.lastError,
		Threshold:              c.threshold,
		Adaptive:               c.adaptive,
	}
}

func (c *Controller) clamp(v float64) float64 {
	if c.adaptive {
		return clamp(v, MinAdaptiveThreshold, MaxAdaptiveThreshold)
	}
	return clamp(v, MinUserThreshold, MaxUserThreshold)
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Min(hi, math.Max(lo, v))
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
