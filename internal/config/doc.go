// SPDX-License-Identifier: MPL-2.0

// Package config handles sleapenv configuration using Viper with CUE as the file format.
//
// Configuration is read from the file given with --config, otherwise from
// $XDG_CONFIG_HOME/sleapenv/config.cue (~/.config/sleapenv/config.cue), otherwise
// from ./sleapenv.cue. Files are validated against the embedded #Config schema
// (config_schema.cue) before they reach Viper. SLEAPENV_* environment variables
// override file values, for example SLEAPENV_DATASET_URL or SLEAPENV_VARIANT.
//
// A configuration lists build variants. Each variant pairs a base image with a
// toolkit source, either a local tree or a remote git ref. When a file defines
// no variants the stock "local" and "remote" variants apply.
package config
