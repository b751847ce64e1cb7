// Copyright (C) sensorstore contributors.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package log provides a simple way of logging with different levels.
// Time/Date are not logged on purpose because systemd adds them for us.
//
// Uses these prefixes: https://www.freedesktop.org/software/systemd/man/sd-daemon.html
package log

import (
	"fmt"
	"io"
	"os"
)

var (
	DebugWriter io.Writer = os.Stderr
	InfoWriter  io.Writer = os.Stderr
	WarnWriter  io.Writer = os.Stderr
	ErrorWriter io.Writer = os.Stderr
)

var (
	DebugPrefix string = "<7>[DEBUG]"
	InfoPrefix  string = "<6>[INFO]"
	WarnPrefix  string = "<4>[WARNING]"
	ErrPrefix   string = "<3>[ERROR]"
	FatalPrefix string = "<2>[FATAL]"
)

func init() {
	if lvl, ok := os.LookupEnv("LOGLEVEL"); ok {
		applyLevel(lvl)
	}
}

func applyLevel(lvl string) {
	switch lvl {
	case "err", "fatal":
		WarnWriter = io.Discard
		fallthrough
	case "warn":
		InfoWriter = io.Discard
		fallthrough
	case "info":
		DebugWriter = io.Discard
	case "debug":
		// Nothing to do...
	default:
		Warnf("environment variable LOGLEVEL has invalid value %#v", lvl)
	}
}

func Debug(v ...any) {
	if DebugWriter != io.Discard {
		v = append([]any{DebugPrefix}, v...)
		fmt.Fprintln(DebugWriter, v...)
	}
}

func Debugf(format string, v ...any) {
	if DebugWriter != io.Discard {
		fmt.Fprintf(DebugWriter, DebugPrefix+" "+format+"\n", v...)
	}
}

func Info(v ...any) {
	if InfoWriter != io.Discard {
		v = append([]any{InfoPrefix}, v...)
		fmt.Fprintln(InfoWriter, v...)
	}
}

func Infof(format string, v ...any) {
	if InfoWriter != io.Discard {
		fmt.Fprintf(InfoWriter, InfoPrefix+" "+format+"\n", v...)
	}
}

func Warn(v ...any) {
	if WarnWriter != io.Discard {
		v = append([]any{WarnPrefix}, v...)
		fmt.Fprintln(WarnWriter, v...)
	}
}

func Warnf(format string, v ...any) {
	if WarnWriter != io.Discard {
		fmt.Fprintf(WarnWriter, WarnPrefix+" "+format+"\n", v...)
	}
}

func Error(v ...any) {
	v = append([]any{ErrPrefix}, v...)
	fmt.Fprintln(ErrorWriter, v...)
}

func Errorf(format string, v ...any) {
	fmt.Fprintf(ErrorWriter, ErrPrefix+" "+format+"\n", v...)
}

func Fatal(v ...any) {
	v = append([]any{FatalPrefix}, v...)
	fmt.Fprintln(ErrorWriter, v...)
	os.Exit(1)
}

func Fatalf(format string, v ...any) {
	fmt.Fprintf(ErrorWriter, FatalPrefix+" "+format+"\n", v...)
	os.Exit(1)
}
