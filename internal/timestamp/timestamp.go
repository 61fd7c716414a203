// Package timestamp finds and parses the original timestamp of free-text log
// lines from strftime-style formats.
package timestamp

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// DefaultOffset is applied to timestamps that carry no zone information.
const DefaultOffset = "+01:00"

// Format is a strftime-style format translated to a regular expression.
type Format struct {
	source  string
	re      *regexp.Regexp
	fields  []field
	hasYear bool
	hasZone bool
}

// Compile translates a strftime-style format. Unknown directives are an error.
func Compile(format string) (*Format, error) {
	if format == "" {
		return nil, errors.New("empty datetime format")
	}
	expanded, err := expand(format, 0)
	if err != nil {
		return nil, err
	}

	f := &Format{source: format}
	var pattern strings.Builder
	pattern.WriteString("(?i)")

	for i := 0; i < len(expanded); i++ {
		c := expanded[i]
		if c != '%' {
			pattern.WriteString(regexp.QuoteMeta(string(c)))
			continue
		}
		key, next, err := directiveKey(expanded, i)
		if err != nil {
			return nil, fmt.Errorf("datetime format %q: %w", format, err)
		}
		i = next
		d, ok := directives[key]
		if !ok {
			return nil, fmt.Errorf("datetime format %q: unsupported directive %%%s", format, key)
		}
		switch d.field {
		case fieldIgnored:
			pattern.WriteString("(?:" + d.pattern + ")")
			continue
		case fieldYear, fieldYear2, fieldEpoch:
			f.hasYear = true
		case fieldOffset, fieldZoneName:
			f.hasZone = true
		}
		pattern.WriteString("(" + d.pattern + ")")
		if d.optional {
			pattern.WriteString("?")
		}
		f.fields = append(f.fields, d.field)
	}

	f.re, err = regexp.Compile(pattern.String())
	if err != nil {
		return nil, fmt.Errorf("datetime format %q: %w", format, err)
	}
	return f, nil
}

// MustCompile is like Compile but panics on error.
func MustCompile(format string) *Format {
	f, err := Compile(format)
	if err != nil {
		panic(err)
	}
	return f
}

func (f *Format) String() string {
	return f.source
}

// Find returns the first substring of line matching the format.
func (f *Format) Find(line string) (string, bool) {
	loc := f.re.FindStringIndex(line)
	if loc == nil {
		return "", false
	}
	return line[loc[0]:loc[1]], true
}

// Parse converts a matched substring to a time. Missing year defaults to
// the year of now in UTC, missing zone to def.
func (f *Format) Parse(value string, now time.Time, def *time.Location) (time.Time, error) {
	m := f.re.FindStringSubmatch(value)
	if m == nil {
		return time.Time{}, fmt.Errorf("%q does not match %q", value, f.source)
	}

	p := parts{year: now.UTC().Year(), month: int(time.January), day: 1, loc: def}
	for i, fl := range f.fields {
		if err := p.set(fl, m[i+1]); err != nil {
			return time.Time{}, fmt.Errorf("%q: %w", value, err)
		}
	}
	return p.time()
}

func expand(format string, depth int) (string, error) {
	if depth > 2 {
		return "", fmt.Errorf("datetime format %q nests too deep", format)
	}
	var b strings.Builder
	for i := 0; i < len(format); i++ {
		if format[i] != '%' || i+1 >= len(format) {
			b.WriteByte(format[i])
			continue
		}
		if sub, ok := composites[format[i+1:i+2]]; ok {
			inner, err := expand(sub, depth+1)
			if err != nil {
				return "", err
			}
			b.WriteString(inner)
			i++
			continue
		}
		b.WriteByte(format[i])
		b.WriteByte(format[i+1])
		i++
	}
	return b.String(), nil
}

func directiveKey(format string, i int) (string, int, error) {
	if i+1 >= len(format) {
		return "", i, errors.New("dangling %")
	}
	switch format[i+1] {
	case '.', ':':
		if i+2 >= len(format) {
			return "", i, fmt.Errorf("incomplete directive %%%c", format[i+1])
		}
		return format[i+1 : i+3], i + 2, nil
	}
	return format[i+1 : i+2], i + 1, nil
}

type parts struct {
	year, month, day int
	yday             int
	hour, min, sec   int
	nsec             int
	hour12           bool
	pm               bool
	epoch            int64
	hasEpoch         bool
	loc              *time.Location
}

func (p *parts) set(fl field, raw string) error {
	value := strings.TrimSpace(raw)
	if value == "" {
		return nil
	}
	var err error
	switch fl {
	case fieldYear:
		p.year, err = strconv.Atoi(value)
	case fieldYear2:
		var y int
		y, err = strconv.Atoi(value)
		if y < 69 {
			p.year = 2000 + y
		} else {
			p.year = 1900 + y
		}
	case fieldMonth:
		p.month, err = strconv.Atoi(value)
	case fieldMonthName:
		month, ok := monthNames[strings.ToLower(value[:3])]
		if !ok {
			return fmt.Errorf("unknown month %q", value)
		}
		p.month = int(month)
	case fieldDay:
		p.day, err = strconv.Atoi(value)
	case fieldDayOfYear:
		p.yday, err = strconv.Atoi(value)
	case fieldHour:
		p.hour, err = strconv.Atoi(value)
	case fieldHour12:
		p.hour, err = strconv.Atoi(value)
		p.hour12 = true
	case fieldMinute:
		p.min, err = strconv.Atoi(value)
	case fieldSecond:
		p.sec, err = strconv.Atoi(value)
	case fieldFraction:
		digits := strings.TrimLeft(value, ".,")
		if len(digits) > 9 {
			digits = digits[:9]
		}
		digits += strings.Repeat("0", 9-len(digits))
		p.nsec, err = strconv.Atoi(digits)
	case fieldAMPM:
		p.pm = strings.EqualFold(value, "pm")
	case fieldOffset:
		p.loc, err = ParseOffset(value)
	case fieldZoneName:
		offset, ok := zoneOffsets[strings.ToUpper(value)]
		if !ok {
			return fmt.Errorf("unknown time zone %q", value)
		}
		p.loc = time.FixedZone(strings.ToUpper(value), offset)
	case fieldEpoch:
		p.epoch, err = strconv.ParseInt(value, 10, 64)
		p.hasEpoch = true
	}
	return err
}

func (p *parts) time() (time.Time, error) {
	if p.hasEpoch {
		return time.Unix(p.epoch, int64(p.nsec)), nil
	}
	hour := p.hour
	if p.hour12 {
		hour %= 12
		if p.pm {
			hour += 12
		}
	}
	if p.sec == 60 {
		// leap second, folded into the next minute by time.Date
		p.sec = 59
	}

	if p.yday > 0 {
		start := time.Date(p.year, time.January, 1, hour, p.min, p.sec, p.nsec, p.loc)
		t := start.AddDate(0, 0, p.yday-1)
		if t.Year() != p.year {
			return time.Time{}, fmt.Errorf("day of year %d out of range", p.yday)
		}
		return t, nil
	}

	t := time.Date(p.year, time.Month(p.month), p.day, hour, p.min, p.sec, p.nsec, p.loc)
	if t.Day() != p.day || int(t.Month()) != p.month {
		return time.Time{}, fmt.Errorf("invalid date %04d-%02d-%02d", p.year, p.month, p.day)
	}
	return t, nil
}

// ParseOffset parses "+hh:mm", "+hhmm" or "Z" into a fixed zone.
func ParseOffset(value string) (*time.Location, error) {
	if strings.EqualFold(value, "z") || strings.EqualFold(value, "utc") {
		return time.UTC, nil
	}
	v := strings.ReplaceAll(value, ":", "")
	if len(v) != 5 || (v[0] != '+' && v[0] != '-') {
		return nil, fmt.Errorf("invalid zone offset %q", value)
	}
	hours, err := strconv.Atoi(v[1:3])
	if err != nil {
		return nil, fmt.Errorf("invalid zone offset %q: %w", value, err)
	}
	minutes, err := strconv.Atoi(v[3:5])
	if err != nil {
		return nil, fmt.Errorf("invalid zone offset %q: %w", value, err)
	}
	if hours > 23 || minutes > 59 {
		return nil, fmt.Errorf("invalid zone offset %q", value)
	}
	seconds := hours*3600 + minutes*60
	if v[0] == '-' {
		seconds = -seconds
	}
	return time.FixedZone(value, seconds), nil
}
