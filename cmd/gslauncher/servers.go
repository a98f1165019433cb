package main

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/loykin/gslauncher/internal/config"
	"github.com/loykin/gslauncher/internal/store"
)

// openStore resolves the server list file from flags or config.
func openStore(configPath, serversFile string) (*store.Store, error) {
	if serversFile == "" {
		cfg, err := config.Load(configPath)
		if err != nil {
			return nil, err
		}
		serversFile = cfg.ServersFile
	}
	return store.Open(serversFile, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func (c command) ServersList(f StoreFlags, output string) error {
	st, err := openStore(f.ConfigPath, f.ServersFile)
	if err != nil {
		return err
	}
	recs, err := st.LoadAll()
	if err != nil {
		return err
	}
	if recs == nil {
		recs = []store.Record{}
	}
	return printOutput(c.out, output, recs)
}

func (c command) ServersAdd(f StoreFlags, sf ServerFlags) error {
	env, err := parseEnv(sf.Env)
	if err != nil {
		return err
	}
	st, err := openStore(f.ConfigPath, f.ServersFile)
	if err != nil {
		return err
	}
	rec, err := st.Add(store.NewRecord{
		Name:            sf.Name,
		StartScript:     sf.Script,
		WorkDir:         sf.WorkDir,
		Env:             env,
		ForceKillOnStop: sf.ForceKill,
	})
	if err != nil {
		return err
	}
	return printOutput(c.out, sf.Output, rec)
}

func (c command) ServersEdit(f StoreFlags, sf ServerFlags) error {
	changed := sf.changed
	if changed == nil {
		changed = func(string) bool { return true }
	}
	var p store.Patch
	if changed("name") {
		p.Name = &sf.Name
	}
	if changed("script") {
		p.StartScript = &sf.Script
	}
	if changed("cwd") {
		p.WorkDir = &sf.WorkDir
	}
	if changed("env") {
		env, err := parseEnv(sf.Env)
		if err != nil {
			return err
		}
		p.Env = &env
	}
	if changed("force-kill") {
		p.ForceKillOnStop = &sf.ForceKill
	}

	st, err := openStore(f.ConfigPath, f.ServersFile)
	if err != nil {
		return err
	}
	rec, err := st.Update(sf.ID, p)
	if err != nil {
		return err
	}
	return printOutput(c.out, sf.Output, rec)
}

func (c command) ServersRemove(f StoreFlags, id string) error {
	st, err := openStore(f.ConfigPath, f.ServersFile)
	if err != nil {
		return err
	}
	if err := st.Remove(id); err != nil {
		return err
	}
	_, err = fmt.Fprintf(c.out, "Removed server %s\n", id)
	return err
}
