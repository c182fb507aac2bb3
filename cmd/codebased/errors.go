package main

import (
	"context"
	"errors"

	"codebased/internal/errs"
)

func isConfigError(err error) bool {
	return errors.Is(err, errs.ErrConfig)
}

func isInterrupted(err error) bool {
	return errors.Is(err, context.Canceled)
}
