// Package logging provides structured, file-rotated logging for the engine.
// The engine and its scheduler take an injected *slog.Logger (slog.Default()
// when none is given); the scheduler is the component that writes log
// records. The indexer, query pipeline and vector subsystem do not log.
package logging
