package timestamp

import (
	"sort"
	"strings"
	"time"
)

// field identifies which time component a directive's capture feeds.
type field int

const (
	fieldIgnored field = iota
	fieldYear
	fieldYear2
	fieldMonth
	fieldMonthName
	fieldDay
	fieldDayOfYear
	fieldHour
	fieldHour12
	fieldMinute
	fieldSecond
	fieldFraction
	fieldAMPM
	fieldOffset
	fieldZoneName
	fieldEpoch
)

type directive struct {
	pattern  string
	field    field
	optional bool
}

var monthNames = map[string]time.Month{
	"jan": time.January, "feb": time.February, "mar": time.March,
	"apr": time.April, "may": time.May, "jun": time.June,
	"jul": time.July, "aug": time.August, "sep": time.September,
	"oct": time.October, "nov": time.November, "dec": time.December,
}

// zoneOffsets resolves the abbreviations accepted by %Z, in seconds east of UTC.
var zoneOffsets = map[string]int{
	"UTC": 0, "GMT": 0, "Z": 0, "WET": 0,
	"BST": 3600, "CET": 3600, "WEST": 3600,
	"CEST": 2 * 3600, "EET": 2 * 3600,
	"EEST": 3 * 3600, "MSK": 3 * 3600,
	"IST": 5*3600 + 1800,
	"CST": -6 * 3600, "CDT": -5 * 3600,
	"EST": -5 * 3600, "EDT": -4 * 3600,
	"MST": -7 * 3600, "MDT": -6 * 3600,
	"PST": -8 * 3600, "PDT": -7 * 3600,
	"AKST": -9 * 3600, "AKDT": -8 * 3600,
	"HST": -10 * 3600,
	"JST": 9 * 3600, "KST": 9 * 3600,
	"AEST": 10 * 3600, "AEDT": 11 * 3600,
}

var zonePattern = func() string {
	names := make([]string, 0, len(zoneOffsets))
	for name := range zoneOffsets {
		names = append(names, name)
	}
	// longest first so CEST wins over CET
	sort.Slice(names, func(i, j int) bool {
		if len(names[i]) != len(names[j]) {
			return len(names[i]) > len(names[j])
		}
		return names[i] < names[j]
	})
	return strings.Join(names, "|")
}()

// directives maps a strftime conversion (without the leading '%') to the
// regular expression fragment that matches it.
var directives = map[string]directive{
	"Y":  {`\d{4}`, fieldYear, false},
	"y":  {`\d{2}`, fieldYear2, false},
	"m":  {`0[1-9]|1[0-2]`, fieldMonth, false},
	"b":  {`jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec`, fieldMonthName, false},
	"h":  {`jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec`, fieldMonthName, false},
	"B":  {`january|february|march|april|may|june|july|august|september|october|november|december`, fieldMonthName, false},
	"d":  {`0[1-9]|[12]\d|3[01]`, fieldDay, false},
	"e":  {`[12]\d|3[01]|0[1-9]| ?[1-9]`, fieldDay, false},
	"j":  {`\d{3}`, fieldDayOfYear, false},
	"a":  {`mon|tue|wed|thu|fri|sat|sun`, fieldIgnored, false},
	"A":  {`monday|tuesday|wednesday|thursday|friday|saturday|sunday`, fieldIgnored, false},
	"u":  {`[1-7]`, fieldIgnored, false},
	"w":  {`[0-6]`, fieldIgnored, false},
	"H":  {`[01]\d|2[0-3]`, fieldHour, false},
	"k":  {`1\d|2[0-3]| ?\d`, fieldHour, false},
	"I":  {`0[1-9]|1[0-2]`, fieldHour12, false},
	"l":  {`1[0-2]| ?[1-9]`, fieldHour12, false},
	"M":  {`[0-5]\d`, fieldMinute, false},
	"S":  {`[0-5]\d|60`, fieldSecond, false},
	"f":  {`\d{1,9}`, fieldFraction, false},
	".f": {`[.,]\d{1,9}`, fieldFraction, true},
	"p":  {`am|pm`, fieldAMPM, false},
	"P":  {`am|pm`, fieldAMPM, false},
	"z":  {`[+-]\d{2}:?\d{2}|z`, fieldOffset, false},
	":z": {`[+-]\d{2}:\d{2}|z`, fieldOffset, false},
	"Z":  {zonePattern, fieldZoneName, false},
	"s":  {`\d{1,12}`, fieldEpoch, false},
	"%":  {`%`, fieldIgnored, false},
	"t":  {`\t`, fieldIgnored, false},
	"n":  {`\n`, fieldIgnored, false},
}

// composites are shorthands expanded before translation.
var composites = map[string]string{
	"D": "%m/%d/%y",
	"x": "%m/%d/%y",
	"F": "%Y-%m-%d",
	"T": "%H:%M:%S",
	"X": "%H:%M:%S",
	"R": "%H:%M",
	"r": "%I:%M:%S %p",
	"c": "%a %b %e %H:%M:%S %Y",
	"v": "%e-%b-%Y",
}

// fallbackFormats are tried in order when no format is configured or the
// configured one does not match.
var fallbackFormats = []string{
	"%a %b %d %H:%M:%S%.f %Y", // apache error log, ahead of syslog to keep its year
	"%b %e %H:%M:%S",          // syslog
	"%Y-%m-%dT%H:%M:%S%.f%:z", // ISO 8601 / RFC 3339
	"%Y-%m-%dT%H:%M:%S%.f",    // ISO 8601 without zone
	"%Y-%m-%d %H:%M:%S%.f",    // ISO 8601, space separated
	"%Y/%m/%d %H:%M:%S",       // nginx error log
	"%d/%b/%Y:%H:%M:%S %z",    // combined access log
}
