package registry

import (
	"context"
	"log/slog"
)

// NoopEventSink is a no-operation implementation of EventSink
type NoopEventSink struct{}

// NewNoopEventSink creates a new no-operation event sink
func NewNoopEventSink() EventSink {
	return &NoopEventSink{}
}

// PackagePublished does nothing and returns nil
func (n *NoopEventSink) PackagePublished(ctx context.Context, version *Version) error {
	return nil
}

// PackageUnpublished does nothing and returns nil
func (n *NoopEventSink) PackageUnpublished(ctx context.Context, outcome *UnpublishOutcome) error {
	return nil
}

// LogEventSink writes lifecycle events to a structured logger
type LogEventSink struct {
	logger *slog.Logger
}

// NewLogEventSink creates an event sink logging to logger, or slog.Default() when nil
func NewLogEventSink(logger *slog.Logger) EventSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogEventSink{logger: logger}
}

func (l *LogEventSink) PackagePublished(ctx context.Context, version *Version) error {
	l.logger.InfoContext(ctx, "package published",
		"package", version.Name,
		"version", version.Version,
		"publisher", version.Publisher,
		"key", version.Dist.Key)
	return nil
}

func (l *LogEventSink) PackageUnpublished(ctx context.Context, outcome *UnpublishOutcome) error {
	l.logger.InfoContext(ctx, "package unpublished",
		"package", outcome.Name,
		"versions", outcome.VersionsRemoved,
		"cleanup_attempted", outcome.BlobCleanupAttempted,
		"blobs_removed", outcome.BlobsRemoved,
		"blobs_skipped", outcome.BlobsSkipped,
		"cleanup_errors", len(outcome.BlobCleanupErrors))
	return nil
}
