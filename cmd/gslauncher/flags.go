package main

import "time"

// Flag structs decouple cobra from the command logic for testing.

type ServeFlags struct {
	ConfigPath string
	Daemonize  bool
	PidFile    string
	LogFile    string

	// onReady receives the bound listen address once the API is serving.
	onReady func(addr string)
}

type StoreFlags struct {
	ConfigPath  string
	ServersFile string
}

type ServerFlags struct {
	ID        string
	Name      string
	Script    string
	WorkDir   string
	Env       []string
	ForceKill bool
	Output    string

	changed func(flag string) bool
}

// APIFlags address one server on a running daemon.
type APIFlags struct {
	ID         string
	APIUrl     string
	APITimeout time.Duration
}

type StopFlags struct {
	APIFlags
	Command string
	Timeout time.Duration
}

type ConsoleFlags struct {
	APIFlags
	Follow bool
}

type RunFlags struct {
	ConfigPath  string
	ServersFile string
	ID          string
}
