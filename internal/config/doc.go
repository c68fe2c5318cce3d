// Package config defines the format-agnostic configuration model of the
// service, its defaults, and the Loader interface implemented by concrete
// file formats.
//
// Values are layered: Default() first, then any configuration files handed to
// a Loader, then command-line flags. The model is the only place the artifact
// directory is configured; it is passed explicitly to whatever persists
// graphs.
package config
