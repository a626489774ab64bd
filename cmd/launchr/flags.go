package main

import "time"

// GlobalFlags holds persistent flags shared by all commands.
type GlobalFlags struct {
	ConfigPath string
}

// ServeFlags holds flags for the serve command.
type ServeFlags struct {
	ConfigPath string
	Listen     string
	Command    string
	WorkDir    string
}

// StartFlags Flag structs to decouple cobra from logic for testing.
type StartFlags struct {
	ConfigPath  string
	Mode        string
	GracePeriod time.Duration
	Interval    time.Duration
	Timeout     time.Duration
	// Remote daemon connection
	APIUrl     string
	APITimeout time.Duration
	CACert     string
	Insecure   bool
}

type StatusFlags struct {
	ConfigPath string
	// Remote daemon connection
	APIUrl     string
	APITimeout time.Duration
	CACert     string
	Insecure   bool
}
