/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package autoplay

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidMode is returned for an unrecognized playback mode.
var ErrInvalidMode = errors.New("invalid playback mode")

// Mode is a playback mode.
type Mode string

const (
	ModeNormal     Mode = "normal"
	ModeRepeatAll  Mode = "repeat_all"
	ModeRepeatOne  Mode = "repeat_one"
	ModeAIContinue Mode = "ai_continue"
)

// Modes lists the modes in cycle order.
var Modes = []Mode{ModeNormal, ModeRepeatAll, ModeRepeatOne, ModeAIContinue}

// ParseMode parses a mode name, case-insensitively.
func ParseMode(s string) (Mode, error) {
	m := Mode(strings.ToLower(strings.TrimSpace(s)))
	if !m.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidMode, s)
	}
	return m, nil
}

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	for _, known := range Modes {
		if m == known {
			return true
		}
	}
	return false
}

// Next returns the mode after m in cycle order.
func (m Mode) Next() Mode {
	for i, known := range Modes {
		if m == known {
			return Modes[(i+1)%len(Modes)]
		}
	}
	return ModeNormal
}

func (m Mode) String() string { return string(m) }
