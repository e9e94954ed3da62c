package core

// LearningInsight records how strongly one parameter separates top
// performers from bottom performers. Written by the learning engine,
// read by the guided-mutation path, never by the simulator.
type LearningInsight struct {
	Parameter  string  `json:"parameter"`
	Signal     float64 `json:"signal"`
	TopMean    float64 `json:"top_mean"`
	SampleSize int     `json:"sample_size"`
	Confidence float64 `json:"confidence"`
}

// Bullish reports whether larger values of the parameter associate
// with higher fitness.
func (i LearningInsight) Bullish() bool { return i.Signal > 0 }
