package minio

import (
	"log/slog"

	"github.com/pure-golang/exam-mailer/logger/noop"
)

func testLogger() *slog.Logger {
	return noop.NewNoop()
}
