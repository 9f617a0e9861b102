package mailer

import (
	"github.com/umakantv/go-utils/logger"
	"go.uber.org/zap"
)

// Sender delivers a templated email. Implementations may be slow or flaky;
// callers must never block a request on the result.
type Sender interface {
	Send(to, template string, props map[string]interface{}) error
}

// LogSender writes the would-be email to the structured log. Stands in for a
// real provider in development and tests.
type LogSender struct{}

func (LogSender) Send(to, template string, props map[string]interface{}) error {
	logger.Info("Sending email",
		zap.String("to", to),
		zap.String("template", template),
		zap.Any("props", props),
	)
	return nil
}

// Dispatch fires the send on its own goroutine and logs a failure instead of
// returning it. Session creation and password flows call this so email
// delivery can never block or fail them.
func Dispatch(s Sender, to, template string, props map[string]interface{}) {
	go func() {
		if err := s.Send(to, template, props); err != nil {
			logger.Error("Email delivery failed",
				zap.String("to", to),
				zap.String("template", template),
				zap.Error(err),
			)
		}
	}()
}
