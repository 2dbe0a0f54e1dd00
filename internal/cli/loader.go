package cli

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/roach88/odatamongo/internal/model"
)

// LoadError represents an error that occurred while loading a model file.
type LoadError struct {
	Code    string
	Message string
	Err     error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// LoadModel loads and validates the model at path. An empty path yields a
// nil model, which serves collections without expansion.
func LoadModel(path string) (*model.Model, error) {
	if path == "" {
		return nil, nil
	}

	m, err := model.Load(path)
	if err == nil {
		return m, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return nil, &LoadError{
			Code:    ErrCodeNotFound,
			Message: fmt.Sprintf("model file not found: %s", path),
			Err:     err,
		}
	}
	return nil, &LoadError{
		Code:    ErrCodeInvalidModel,
		Message: err.Error(),
		Err:     err,
	}
}

// failLoad reports a LoadError through the formatter.
func failLoad(f *OutputFormatter, err error) error {
	var loadErr *LoadError
	if errors.As(err, &loadErr) {
		return f.Fail(ExitCommandError, loadErr.Code, loadErr.Message, loadErr.Err)
	}
	return f.Fail(ExitCommandError, ErrCodeGeneric, err.Error(), nil)
}
