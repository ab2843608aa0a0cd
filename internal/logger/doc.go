// Package logger provides structured, component-scoped logging for streamsession.
//
// Every package logs through a component logger so that noisy subsystems
// (the HTTP client, the store) can be switched on independently of session
// lifecycle events:
//
//	log := logger.WithComponent(logger.ComponentSession)
//	log.Info("login succeeded", map[string]interface{}{
//		"provider": "foxtel",
//		"token":    logger.Mask(token),
//	})
//
// Configuration comes from code, from a JSON file (LoadConfigFromFile) or
// from the environment:
//
//	STREAMSESSION_LOG_LEVEL       TRACE, DEBUG, INFO, WARN, ERROR
//	STREAMSESSION_LOG_FORMAT      text, json, color
//	STREAMSESSION_LOG_OUTPUT      stdout, stderr, none, file:<path>
//	STREAMSESSION_LOG_TIMESTAMP   true/1
//	STREAMSESSION_LOG_COMPONENTS  comma separated list, or "all"
//
// Secrets must go through Mask before they reach a log field.
package logger
