// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package nlpopt

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Options is the configuration surface of the solver: a flat
// string-keyed lookup of strings, numbers and integers. Unknown keys
// are a caller error and panic on access.
type Options struct {
	values map[string]any
}

// DefaultOptions returns the full default configuration.
func DefaultOptions() *Options {
	return &Options{values: map[string]any{
		"subproblem":    "QP",
		"linear_solver": "spectral",
		"lp_qp_solver":  "dense",

		"tolerance":                   1e-6,
		"max_iterations":              500,
		"max_backtracks":              20,
		"initial_trust_region_radius": 10.0,
		"min_trust_region_radius":     1e-12,

		"armijo_decrease_fraction": 1e-4,
		"armijo_tolerance":         1e-9,

		"barrier_initial_parameter":            0.1,
		"barrier_tau_min":                      0.99,
		"barrier_k_sigma":                      1e10,
		"barrier_regularization_exponent":      0.25,
		"barrier_damping_factor":               1e-4,
		"barrier_small_direction_factor":       100.0,
		"barrier_push_variable_to_interior_k1": 1e-2,
		"barrier_push_variable_to_interior_k2": 1e-2,
		"barrier_default_multiplier":           1.0,
		"barrier_k_mu":                         0.2,
		"barrier_theta_mu":                     1.5,
		"barrier_k_epsilon":                    10.0,

		"least_square_multiplier_max_norm": 1e3,
	}}
}

// LoadOptions reads a YAML file of key: value pairs over the defaults.
func LoadOptions(path string) (*Options, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("options: %w", err)
	}
	overrides := make(map[string]any)
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return nil, fmt.Errorf("options: parse %s: %w", path, err)
	}
	opts := DefaultOptions()
	for k, v := range overrides {
		if _, ok := opts.values[k]; !ok {
			return nil, fmt.Errorf("options: unknown key %q in %s", k, path)
		}
		opts.values[k] = v
	}
	return opts, nil
}

// Set overrides one option.
func (o *Options) Set(key string, value any) {
	o.values[key] = value
}

// GetString returns a string option.
func (o *Options) GetString(key string) string {
	v, ok := o.values[key].(string)
	if !ok {
		panic(fmt.Sprintf("options: %q is not a string option", key))
	}
	return v
}

// GetFloat returns a numeric option.
func (o *Options) GetFloat(key string) float64 {
	switch v := o.values[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	panic(fmt.Sprintf("options: %q is not a numeric option", key))
}

// GetInt returns an integer option.
func (o *Options) GetInt(key string) int {
	switch v := o.values[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	panic(fmt.Sprintf("options: %q is not an integer option", key))
}
