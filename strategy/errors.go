package strategy

import "github.com/quantfold/sigpack/errs"

var (
	errNameRequired = errs.InvalidInput("strategy name required")
	errNameInvalid  = errs.InvalidInput("strategy name must not contain path separators")
)
