// Package lightgbm provides a pure Go gradient boosting classifier in the
// style of LightGBM.
//
// Training follows LightGBM's multiclass objective: every round fits one
// regression tree per class to the softmax log loss gradients, trees grow leaf
// by leaf on feature histograms of at most MaxBin bins, and missing values are
// routed to the side that gains the most at each split.
//
// # Basic Usage
//
//	clf := lightgbm.NewLGBMClassifier().
//	    WithMaxDepth(3).
//	    WithNumIterations(150).
//	    WithLearningRate(0.1)
//	if err := clf.Fit(XTrain, yTrain); err != nil {
//	    return err
//	}
//	predictions, _ := clf.Predict(XTest)
//	accuracy, _ := clf.Score(XTest, yTest)
//
// # Staged Prediction
//
// A model trained for 150 rounds can be scored after 50, 100 and 150 rounds
// without refitting:
//
//	staged, _ := clf.StagedPredict(XTest, []int{50, 100, 150})
//
// model_selection.GridSearchCV uses this through WithStagedParam("num_iterations").
//
// # Callbacks
//
// Callbacks run after every round and see the mean training log loss under
// TrainingLossMetric:
//
//	history := map[string][]float64{}
//	clf.WithCallbacks(
//	    lightgbm.RecordEvaluation(&history),
//	    lightgbm.EarlyStoppingCallback(10, lightgbm.TrainingLossMetric, 1e-4, logger),
//	)
package lightgbm
