package core

// cast.go turns raw query-string values into typed comparison values.
//
// Client data is messy: a column declared as text may hold numbers, dates and
// yes/no flags. Cast runs an ordered cascade of casters and returns the first
// successful conversion, falling back to the raw string:
//
//	numeric -> date -> boolean -> string

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

// DataType is the declared type of a filter value.
type DataType string

const (
	TypeString   DataType = "string"
	TypeFloat    DataType = "float"
	TypeInteger  DataType = "integer"
	TypeDate     DataType = "date"
	TypeDateTime DataType = "datetime"
	TypeBoolean  DataType = "boolean"
)

// ParseDataType maps a client type hint to a DataType. Unknown hints are
// TypeString.
func ParseDataType(s string) DataType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "float", "number", "numeric", "decimal", "double", "f":
		return TypeFloat
	case "integer", "int", "i":
		return TypeInteger
	case "date", "d":
		return TypeDate
	case "datetime", "timestamp", "dt":
		return TypeDateTime
	case "boolean", "bool", "b":
		return TypeBoolean
	default:
		return TypeString
	}
}

// IsNumeric reports whether t is a number type.
func (t DataType) IsNumeric() bool {
	return t == TypeFloat || t == TypeInteger
}

// IsDate reports whether t is a date or datetime.
func (t DataType) IsDate() bool {
	return t == TypeDate || t == TypeDateTime
}

// numericRegex matches integers, decimals, and scientific notation.
var numericRegex = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?$`)

// IsNumeric reports whether s is lexically a number.
func IsNumeric(s string) bool {
	return numericRegex.MatchString(strings.TrimSpace(s))
}

// caster is one step of the cast cascade.
type caster struct {
	name    string
	applies func(raw string, t DataType) bool
	convert func(raw string, t DataType) (any, bool)
}

// casters are tried in order; the first that applies and converts wins.
var casters = []caster{
	{
		name:    "numeric",
		applies: func(raw string, t DataType) bool { return t.IsNumeric() || IsNumeric(raw) },
		convert: castNumber,
	},
	{
		name:    "date",
		applies: func(raw string, t DataType) bool { return t.IsDate() || LooksLikeDate(raw) },
		convert: func(raw string, _ DataType) (any, bool) {
			t, ok := ParseTime(raw)
			return t, ok
		},
	},
	{
		name:    "boolean",
		applies: func(string, DataType) bool { return true },
		convert: func(raw string, _ DataType) (any, bool) {
			return ParseBool(raw)
		},
	},
}

// Cast converts raw to the value a column of type t most plausibly holds.
// When no caster converts raw, it is returned unchanged.
func Cast(raw string, t DataType) any {
	trimmed := strings.TrimSpace(raw)
	for _, c := range casters {
		if !c.applies(trimmed, t) {
			continue
		}
		if v, ok := c.convert(trimmed, t); ok {
			return v
		}
	}
	return raw
}

func castNumber(raw string, t DataType) (any, bool) {
	if t == TypeInteger {
		if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
			return i, true
		}
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, false
	}
	if t == TypeInteger {
		return int64(f), true
	}
	return f, true
}

// ParseBool accepts the usual spellings of true and false.
func ParseBool(s string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "t", "yes", "y", "on", "1":
		return true, true
	case "false", "f", "no", "n", "off", "0":
		return false, true
	default:
		return false, false
	}
}
