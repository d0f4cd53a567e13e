// Package log defines standard attribute keys for the pipeline's log lines.
//
// Keys follow a hierarchical naming convention (e.g. "model.name",
// "data.samples") so that JSON logs of a run can be filtered per step.

package log

// Model and Operation Context
const (
	// ModelNameKey identifies the estimator type.
	// Examples: "RandomForestClassifier", "LGBMClassifier", "DecisionTreeClassifier"
	ModelNameKey = "model.name"

	// OperationKey specifies the operation being performed.
	// Standard values: "fit", "predict", "transform", "score", "search"
	OperationKey = "ml.operation"

	// ComponentKey identifies which package is performing the operation.
	ComponentKey = "ml.component"

	// PhaseKey indicates the pipeline step.
	// Examples: "loading", "partition", "cleaning", "training", "evaluation", "prediction"
	PhaseKey = "ml.phase"

	// RunIDKey correlates every line of a single pipeline run.
	RunIDKey = "run.id"
)

// Data Shape and Characteristics
const (
	// SamplesKey indicates the number of samples (rows) in the dataset.
	SamplesKey = "data.samples"

	// FeaturesKey indicates the number of features (columns) in the dataset.
	FeaturesKey = "data.features"

	// ClassesKey indicates the number of distinct labels.
	ClassesKey = "data.classes"

	// PathKey is the file a table was read from.
	PathKey = "data.path"

	// ColumnKey names a single column.
	ColumnKey = "data.column"

	// ReasonKey explains why a column was dropped.
	ReasonKey = "data.reason"
)

// Performance Metrics
const (
	// DurationMsKey records the execution time of an operation in milliseconds.
	DurationMsKey = "perf.duration_ms"

	// AccuracyKey records classification accuracy in [0, 1].
	AccuracyKey = "metrics.accuracy"

	// KappaKey records Cohen's kappa.
	KappaKey = "metrics.kappa"

	// LossKey records loss value during training.
	LossKey = "metrics.loss"

	// IterationKey records the current boosting iteration.
	IterationKey = "training.iteration"

	// FoldKey records the cross-validation fold index.
	FoldKey = "cv.fold"

	// CandidateKey records the hyperparameter candidate being scored.
	CandidateKey = "cv.candidate"
)

// Prediction and Output Context
const (
	// PredsKey indicates the number of predictions made.
	PredsKey = "preds.count"
)

// Error and Warning Context
const (
	// ErrorTypeKey categorizes the type of error encountered.
	ErrorTypeKey = "error.type"

	// StacktraceKey contains stack trace information for debugging.
	// Automatically populated when an error is logged.
	StacktraceKey = "error.stacktrace"
)

// Hyperparameters and Configuration
const (
	// HyperParamsKey contains model hyperparameters as a structured object.
	HyperParamsKey = "model.hyperparams"

	// RandomSeedKey records the random seed for reproducibility.
	RandomSeedKey = "config.random_seed"
)

// Standard attribute values.
const (
	OperationFit       = "fit"
	OperationPredict   = "predict"
	OperationTransform = "transform"
	OperationScore     = "score"
	OperationSearch    = "search"

	PhaseLoading    = "loading"
	PhasePartition  = "partition"
	PhaseCleaning   = "cleaning"
	PhaseTraining   = "training"
	PhaseEvaluation = "evaluation"
	PhasePrediction = "prediction"
	PhaseReport     = "report"
)
