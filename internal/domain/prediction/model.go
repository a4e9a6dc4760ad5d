// Package prediction holds the response contract of the insurance premium
// classifier. It is a pure data shape; nothing here computes a prediction.
package prediction

// Response is the classifier output for one input.
//
// Confidence is the probability of PredictedCategory and lies in [0,1].
// ClassProbabilities usually sums to about 1.0, which is not enforced.
type Response struct {
	PredictedCategory  string             `json:"predicted_category"`
	Confidence         float64            `json:"confidence"`
	ClassProbabilities map[string]float64 `json:"class_probabilities"`
}
