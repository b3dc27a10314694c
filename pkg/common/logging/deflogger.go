/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package logging

import (
	"fmt"
	"log"
	"os"
	"sync"
)

var levelNames = []string{"CRIT", "ERRO", "WARN", "INFO", "DEBU"}

// moduleLevels maintains the log level for each module. The default
// level for an unconfigured module is INFO.
type moduleLevels struct {
	mutex  sync.RWMutex
	levels map[string]Level
}

var levels = &moduleLevels{levels: make(map[string]Level)}

func (l *moduleLevels) setLevel(module string, level Level) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	l.levels[module] = level
}

func (l *moduleLevels) level(module string) Level {
	l.mutex.RLock()
	defer l.mutex.RUnlock()
	if level, ok := l.levels[module]; ok {
		return level
	}
	return INFO
}

// SetLevel sets the log level for the given module.
func SetLevel(module string, level Level) {
	levels.setLevel(module, level)
}

// GetLevel returns the log level for the given module.
func GetLevel(module string) Level {
	return levels.level(module)
}

// IsEnabledFor returns true if the given level is enabled for the given module.
func IsEnabledFor(module string, level Level) bool {
	return level <= levels.level(module)
}

// defaultProvider is the built-in logger provider that is used when no
// custom provider has been installed via Initialize. It writes
// module- and level-prefixed output to stderr using the standard log package.
type defaultProvider struct {
	mutex   sync.Mutex
	loggers map[string]Leveled
	out     *log.Logger
}

func newDefaultProvider() *defaultProvider {
	return &defaultProvider{
		loggers: make(map[string]Leveled),
		out:     log.New(os.Stderr, "", log.Ldate|log.Ltime|log.Lmicroseconds),
	}
}

func (p *defaultProvider) GetLogger(module string) Leveled {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	if logger, ok := p.loggers[module]; ok {
		return logger
	}
	logger := &defaultLogger{module: module, out: p.out}
	p.loggers[module] = logger
	return logger
}

type defaultLogger struct {
	module string
	out    *log.Logger
}

func (l *defaultLogger) log(level Level, args ...interface{}) {
	if !IsEnabledFor(l.module, level) {
		return
	}
	l.out.Print(l.prefix(level), fmt.Sprint(args...))
}

func (l *defaultLogger) logf(level Level, format string, args ...interface{}) {
	if !IsEnabledFor(l.module, level) {
		return
	}
	l.out.Print(l.prefix(level), fmt.Sprintf(format, args...))
}

func (l *defaultLogger) logln(level Level, args ...interface{}) {
	if !IsEnabledFor(l.module, level) {
		return
	}
	l.out.Print(l.prefix(level), fmt.Sprintln(args...))
}

func (l *defaultLogger) prefix(level Level) string {
	return fmt.Sprintf("[%s] %s ", l.module, levelNames[level])
}

func (l *defaultLogger) Debug(args ...interface{})                 { l.log(DEBUG, args...) }
func (l *defaultLogger) Debugf(format string, args ...interface{}) { l.logf(DEBUG, format, args...) }
func (l *defaultLogger) Debugln(args ...interface{})               { l.logln(DEBUG, args...) }
func (l *defaultLogger) Info(args ...interface{})                  { l.log(INFO, args...) }
func (l *defaultLogger) Infof(format string, args ...interface{})  { l.logf(INFO, format, args...) }
func (l *defaultLogger) Infoln(args ...interface{})                { l.logln(INFO, args...) }
func (l *defaultLogger) Warn(args ...interface{})                  { l.log(WARNING, args...) }
func (l *defaultLogger) Warnf(format string, args ...interface{})  { l.logf(WARNING, format, args...) }
func (l *defaultLogger) Warnln(args ...interface{})                { l.logln(WARNING, args...) }
func (l *defaultLogger) Error(args ...interface{})                 { l.log(ERROR, args...) }
func (l *defaultLogger) Errorf(format string, args ...interface{}) { l.logf(ERROR, format, args...) }
func (l *defaultLogger) Errorln(args ...interface{})               { l.logln(ERROR, args...) }
