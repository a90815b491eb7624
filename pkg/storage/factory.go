package storage

import (
	"fmt"
	"sync"

	"gopkg.in/yaml.v3"
)

// Options is the flat string configuration a backend builder accepts.
// Builders validate it once and fail fast with ConfigInvalid; no
// half-built accessor ever escapes.
type Options map[string]string

// Builder constructs an accessor from options.
type Builder func(opts Options) (Accessor, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Builder)
)

// Register makes a backend available under its scheme. Backend packages
// call it from init; importing the package is enough to enable the
// scheme.
func Register(scheme string, b Builder) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, dup := registry[scheme]; dup {
		panic(fmt.Sprintf("storage: scheme %q registered twice", scheme))
	}
	registry[scheme] = b
}

// Open builds an accessor for the given scheme.
func Open(scheme string, opts Options) (Accessor, error) {
	registryMu.RLock()
	b, ok := registry[scheme]
	registryMu.RUnlock()
	if !ok {
		return nil, Errorf(KindConfigInvalid, "unknown scheme %q", scheme).
			WithOperation("open")
	}
	return b(opts)
}

// Schemes returns the registered scheme names, for diagnostics.
func Schemes() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	out := make([]string, 0, len(registry))
	for s := range registry {
		out = append(out, s)
	}
	return out
}

// Profile is one named backend configuration from a profile file.
type Profile struct {
	Type    string            `yaml:"type"`
	Options map[string]string `yaml:",inline"`
}

type profileFile struct {
	Profiles map[string]Profile `yaml:"profiles"`
}

// LoadProfiles parses a yaml profile document:
//
//	profiles:
//	  backups:
//	    type: s3
//	    bucket: my-backups
//	    region: eu-west-1
func LoadProfiles(data []byte) (map[string]Profile, error) {
	var f profileFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, NewError(KindConfigInvalid, "profile file is not valid yaml").
			WithOperation("load_profiles").
			WithCause(err)
	}
	if len(f.Profiles) == 0 {
		return nil, NewError(KindConfigInvalid, "profile file declares no profiles").
			WithOperation("load_profiles")
	}
	return f.Profiles, nil
}

// OpenProfile builds an accessor from one parsed profile.
func OpenProfile(p Profile) (Accessor, error) {
	if p.Type == "" {
		return nil, NewError(KindConfigInvalid, "profile is missing a type").
			WithOperation("open")
	}
	return Open(p.Type, Options(p.Options))
}
