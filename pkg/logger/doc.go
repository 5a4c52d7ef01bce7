// Package logger builds the application's *slog.Logger.
//
// New picks a JSON or text handler from the configured Format and wraps it in
// a decorator that runs ContextExtractor callbacks on every record, so values
// such as the request id or the acting user travel with the context instead of
// being threaded through every call.
//
//	log := logger.New(
//		logger.WithEnvironment(cfg.Env, "linkshelf"),
//		logger.WithContextExtractors(requestid.LogExtractor()),
//	)
//	log.InfoContext(ctx, "plan switched",
//		logger.SubscriptionID(sub.ID),
//		logger.PlanVersionID(sub.PlanVersionID),
//	)
//
// Attribute helpers in attr.go keep key names consistent across packages.
package logger
