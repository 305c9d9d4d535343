// Package logger builds the service's slog.Logger and provides the attribute
// constructors used across billing and rate limiting so keys stay consistent.
//
//	log := logger.New(
//		logger.WithEnvironment(environment.Production, "studyhub"),
//		logger.WithContextExtractors(requestid.LoggerExtractor()),
//	)
//	log.InfoContext(ctx, "webhook processed", logger.EventID(id))
package logger
