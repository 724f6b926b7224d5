package session

import (
	"fmt"
	"math/rand/v2"
	"regexp"
	"strconv"
)

const (
	// DefaultMinutes is the exam length used when the topic label names none.
	DefaultMinutes = 60
	// MaxMinutes bounds the exam length a label may ask for; longer labels
	// get DefaultMinutes.
	MaxMinutes = 24 * 60

	minHiddenThreshold = 10
	maxHiddenThreshold = 15
)

var minutesPattern = regexp.MustCompile(`(?i)(\d+)\s*MIN`)

// DurationFromLabel returns the exam length in seconds encoded in a topic
// label such as "SSC CGL Mock - 45 MIN".
func DurationFromLabel(label string) int {
	m := minutesPattern.FindStringSubmatch(label)
	if m == nil {
		return DefaultMinutes * 60
	}
	minutes, err := strconv.Atoi(m[1])
	if err != nil || minutes > MaxMinutes {
		return DefaultMinutes * 60
	}
	return minutes * 60
}

// RandomThreshold draws the hidden countdown offset.
func RandomThreshold() int {
	return minHiddenThreshold + rand.IntN(maxHiddenThreshold-minHiddenThreshold+1)
}

// FormatClock renders seconds as HH:MM:SS.
func FormatClock(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d:%02d", seconds/3600, (seconds%3600)/60, seconds%60)
}
