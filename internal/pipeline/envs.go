package pipeline

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"

	"worldmodel-rl/internal/cartpole"
	"worldmodel-rl/internal/env"
)

var ErrUnknownEnv = errors.New("unknown environment")

var registry = map[string]func(*rand.Rand) env.Env{
	"cartpole": func(rng *rand.Rand) env.Env { return cartpole.NewEnv(rng) },
}

// MakeEnv builds a registered real environment.
func MakeEnv(name string, rng *rand.Rand) (env.Env, error) {
	mk, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q (have %v)", ErrUnknownEnv, name, EnvNames())
	}
	return mk(rng), nil
}

func EnvNames() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
