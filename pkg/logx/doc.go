// Package logx is a thin zerolog wrapper shared by all components.
//
// It exists so components can take a plain Logger value (zero value is a
// safe no-op) instead of wiring zerolog directly everywhere.
package logx
