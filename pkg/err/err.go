package errprocess

import (
	"errors"
	"fmt"

	"washery_chat/pkg/logger"

	"go.uber.org/zap"
)

// Set set err info
func Set(errMsg string) error {
	logger.Log.Error(errMsg)
	return errors.New(errMsg)
}

// Wrap log and wrap err with msg, nil stays nil
func Wrap(msg string, err error, fields ...zap.Field) error {
	if err == nil {
		return nil
	}
	logger.Log.Error(msg, append(fields, zap.Error(err))...)
	return fmt.Errorf("%s: %w", msg, err)
}
