// Package logging provides structured logging for the Voron storage engine.
//
// # Overview
//
// Logger is a small key-value interface backed by logrus. Components
// receive a Logger through their options and derive a tagged child:
//
//	log := logging.New(logging.Config{Level: "info", Format: "json"})
//	jlog := log.WithComponent("journal")
//	jlog.Info("journal rotated", "file", name, "size", humanize.IBytes(size))
//
// Use NewNop in tests and wherever no logger was configured.
//
// # Formats
//
// Text output is logrus' key=value layout with full timestamps, JSON output
// uses "ts", "level" and "msg" keys plus the supplied fields.
//
// Existing logrus loggers can be adopted with FromLogrus.
package logging
