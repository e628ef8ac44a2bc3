// Package main is the entry point for the runbox MCP server.
//
// The runbox server implements a secure, configurable Model Context Protocol
// (MCP) server that executes untrusted user code (python, java, javascript,
// typescript, go, rust, c, cpp, csharp, php, ruby) in disposable containers
// with no network access, a memory ceiling, and a wall-clock timeout. The
// server supports both stdio and HTTP transports.
//
// The application uses Uber's fx framework for dependency injection and
// lifecycle management, with zap for structured logging and viper for
// configuration.
package main
