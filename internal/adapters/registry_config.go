package adapters

import (
	"sort"
	"strings"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/spf13/viper"

	"comlinepm/internal/ports"
	"comlinepm/internal/types"
)

const registriesKey = "registries"

// RegistryConfigViperAdapter reads registries.<name>.{url,method,target}.
// Viper folds keys to lower case, so registry names are case-insensitive.
type RegistryConfigViperAdapter struct {
	v *viper.Viper
}

func NewRegistryConfigViperAdapter(v *viper.Viper) RegistryConfigViperAdapter {
	if v == nil {
		v = viper.GetViper()
	}
	return RegistryConfigViperAdapter{v: v}
}

func (a RegistryConfigViperAdapter) Lookup(name string) (types.RegistryTarget, bool, error) {
	key := types.RegistryKey(name)
	if key == "" || strings.Contains(key, ".") {
		return types.RegistryTarget{}, false, nil
	}
	path := registriesKey + "." + key
	if !a.v.IsSet(path) {
		return types.RegistryTarget{}, false, nil
	}
	var target types.RegistryTarget
	if err := a.v.UnmarshalKey(path, &target); err != nil {
		return types.RegistryTarget{}, false, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("invalid configuration for registry " + name).
			WithCause(err)
	}
	target.Name = key
	if strings.TrimSpace(target.URL) == "" {
		return types.RegistryTarget{}, false, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("registry " + name + " has no url")
	}
	return target, true, nil
}

func (a RegistryConfigViperAdapter) Names() []string {
	raw := a.v.GetStringMap(registriesKey)
	names := make([]string, 0, len(raw))
	for name := range raw {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// StaticRegistryConfig is a fixed name to target table.
type StaticRegistryConfig map[string]types.RegistryTarget

func (s StaticRegistryConfig) Lookup(name string) (types.RegistryTarget, bool, error) {
	key := types.RegistryKey(name)
	for configured, target := range s {
		if types.RegistryKey(configured) != key {
			continue
		}
		target.Name = key
		return target, true, nil
	}
	return types.RegistryTarget{}, false, nil
}

func (s StaticRegistryConfig) Names() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, types.RegistryKey(name))
	}
	sort.Strings(names)
	return names
}

var _ ports.RegistryConfigPort = RegistryConfigViperAdapter{}
var _ ports.RegistryConfigPort = StaticRegistryConfig{}
