// Package config describes a consensus cluster: size, fault bound, initial
// values, faulty nodes and addressing.
package config
