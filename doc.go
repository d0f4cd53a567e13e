// Package liftclass classifies how well a barbell lift was performed from
// wearable accelerometer readings (the Weight Lifting Exercise data set, classes
// A to E).
//
// A run partitions the labelled table into fit and evaluation subsets, drops
// columns that are mostly missing, identifying or near-constant, tunes a random
// forest, gradient-boosted trees and a decision tree with stratified
// cross-validation, compares them on the evaluation subset, picks the best one
// and predicts the examinable rows.
//
// # Quick Start
//
// From the command line:
//
//	liftclass run --train pml-training.csv --test pml-testing.csv --plot accuracy.png
//
// From Go:
//
//	cfg := config.DefaultConfig()
//	res, err := pipeline.Run(ctx, cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	md, _ := report.Markdown(res)
//	fmt.Println(md)
//
// # Packages
//
//   - config: YAML configuration with defaults and validation
//   - dataset: CSV loading, stratified partition, feature matrices
//   - preprocessing: column filters and ordinal encoding
//   - model_selection: stratified k-fold and grid search
//   - sklearn/tree, sklearn/ensemble, sklearn/lightgbm: the three classifiers
//   - metrics: accuracy, confusion matrix, kappa, per-class statistics
//   - pipeline: the end-to-end run and best-model selection
//   - report: Markdown report, terminal rendering and accuracy plot
//   - core/model, core/parallel: estimator state and worker helpers
//   - pkg/errors, pkg/log: structured errors and zerolog logging
//
// # Reproducibility
//
// Every random choice (partition, folds, bootstrap samples, feature subsets)
// is drawn from PCG sources derived from Config.Seed, so two runs with the same
// seed and data produce the same models and predictions regardless of NJobs.
package liftclass
