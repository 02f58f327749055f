// Package logx is widgetd's structured logging: a value-type Logger over
// zerolog with per-component fields, a readable console sink or JSON lines on
// stdout, an optional JSON file sink, and live reconfiguration through
// Service.Apply when the config file changes.
package logx
