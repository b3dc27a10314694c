/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package logging enables setting a custom logger implementation.
//
//	Basic Flow:
//	1) Initialize logger (optional)
//	2) Create new logger for specific module
//	3) Call log info
package logging

import (
	"sync"
)

// Level defines all available log levels for log messages.
type Level int

// Log levels.
const (
	CRITICAL Level = iota
	ERROR
	WARNING
	INFO
	DEBUG
)

// Leveled is a logger that logs at the standard levels.
type Leveled interface {
	Debug(args ...interface{})
	Debugf(format string, args ...interface{})
	Debugln(args ...interface{})
	Info(args ...interface{})
	Infof(format string, args ...interface{})
	Infoln(args ...interface{})
	Warn(args ...interface{})
	Warnf(format string, args ...interface{})
	Warnln(args ...interface{})
	Error(args ...interface{})
	Errorf(format string, args ...interface{})
	Errorln(args ...interface{})
}

// Provider is a factory for module loggers.
type Provider interface {
	GetLogger(module string) Leveled
}

// Logger is the basic implementation of the Leveled interface.
// The underlying logger instance is lazily bound on first use so that
// a custom Provider installed via Initialize is picked up.
type Logger struct {
	instance Leveled // access only via Logger.logger()
	module   string
	once     sync.Once
}

var providerInstance Provider
var providerOnce sync.Once

const loggerModule = "fabnet/common"

// NewLogger creates and returns a Logger object based on the module name.
func NewLogger(module string) *Logger {
	return &Logger{module: module}
}

// Initialize sets a new logger provider which takes over logging operations.
// It must be called before the first log output to have any effect.
func Initialize(p Provider) {
	providerOnce.Do(func() {
		providerInstance = p
		providerInstance.GetLogger(loggerModule).Debug("Logger provider initialized")
	})
}

func provider() Provider {
	providerOnce.Do(func() {
		providerInstance = newDefaultProvider()
	})
	return providerInstance
}

func (l *Logger) logger() Leveled {
	l.once.Do(func() {
		l.instance = provider().GetLogger(l.module)
	})
	return l.instance
}

// Debug calls Debug on the underlying logger
func (l *Logger) Debug(args ...interface{}) {
	l.logger().Debug(args...)
}

// Debugf calls Debugf on the underlying logger
func (l *Logger) Debugf(format string, args ...interface{}) {
	l.logger().Debugf(format, args...)
}

// Debugln calls Debugln on the underlying logger
func (l *Logger) Debugln(args ...interface{}) {
	l.logger().Debugln(args...)
}

// Info calls Info on the underlying logger
func (l *Logger) Info(args ...interface{}) {
	l.logger().Info(args...)
}

// Infof calls Infof on the underlying logger
func (l *Logger) Infof(format string, args ...interface{}) {
	l.logger().Infof(format, args...)
}

// Infoln calls Infoln on the underlying logger
func (l *Logger) Infoln(args ...interface{}) {
	l.logger().Infoln(args...)
}

// Warn calls Warn on the underlying logger
func (l *Logger) Warn(args ...interface{}) {
	l.logger().Warn(args...)
}

// Warnf calls Warnf on the underlying logger
func (l *Logger) Warnf(format string, args ...interface{}) {
	l.logger().Warnf(format, args...)
}

// Warnln calls Warnln on the underlying logger
func (l *Logger) Warnln(args ...interface{}) {
	l.logger().Warnln(args...)
}

// Error calls Error on the underlying logger
func (l *Logger) Error(args ...interface{}) {
	l.logger().Error(args...)
}

// Errorf calls Errorf on the underlying logger
func (l *Logger) Errorf(format string, args ...interface{}) {
	l.logger().Errorf(format, args...)
}

// Errorln calls Errorln on the underlying logger
func (l *Logger) Errorln(args ...interface{}) {
	l.logger().Errorln(args...)
}
