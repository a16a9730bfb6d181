package message

import "strconv"

// option value format
const (
	EmptyValue = iota
	OpaqueValue
	UintValue
	StringValue
)

type optionDef struct {
	name   string
	format int
	repeat bool
	minlen int
	maxlen int
}

/*
	+-----+----------------+--------+--------+
	| No. | Name           | Format | Length |
	+-----+----------------+--------+--------+
	|   1 | If-Match       | opaque | 0-8    |
	|   3 | Uri-Host       | string | 1-255  |
	|   4 | ETag           | opaque | 1-8    |
	|   5 | If-None-Match  | empty  | 0      |
	|   6 | Observe        | uint   | 0-3    |
	|   7 | Uri-Port       | uint   | 0-2    |
	|   8 | Location-Path  | string | 0-255  |
	|  11 | Uri-Path       | string | 0-255  |
	|  12 | Content-Format | uint   | 0-2    |
	|  14 | Max-Age        | uint   | 0-4    |
	|  15 | Uri-Query      | string | 0-255  |
	|  17 | Accept         | uint   | 0-2    |
	|  20 | Location-Query | string | 0-255  |
	|  28 | Size2          | uint   | 0-4    |
	|  35 | Proxy-Uri      | string | 1-1034 |
	|  39 | Proxy-Scheme   | string | 1-255  |
	|  60 | Size1          | uint   | 0-4    |
	+-----+----------------+--------+--------+
*/
var optionDefs = map[OptionCode]optionDef{
	OptionIfMatch:       {"If-Match", OpaqueValue, true, 0, 8},
	OptionURIHost:       {"Uri-Host", StringValue, false, 1, 255},
	OptionEtag:          {"ETag", OpaqueValue, true, 1, 8},
	OptionIfNoneMatch:   {"If-None-Match", EmptyValue, false, 0, 0},
	OptionObserve:       {"Observe", UintValue, false, 0, 3},
	OptionURIPort:       {"Uri-Port", UintValue, false, 0, 2},
	OptionLocationPath:  {"Location-Path", StringValue, true, 0, 255},
	OptionURIPath:       {"Uri-Path", StringValue, true, 0, 255},
	OptionContentFormat: {"Content-Format", UintValue, false, 0, 2},
	OptionMaxAge:        {"Max-Age", UintValue, false, 0, 4},
	OptionURIQuery:      {"Uri-Query", StringValue, true, 0, 255},
	OptionAccept:        {"Accept", UintValue, false, 0, 2},
	OptionLocationQuery: {"Location-Query", StringValue, true, 0, 255},
	OptionSize2:         {"Size2", UintValue, false, 0, 4},
	OptionProxyURI:      {"Proxy-Uri", StringValue, false, 1, 1034},
	OptionProxyScheme:   {"Proxy-Scheme", StringValue, false, 1, 255},
	OptionSize1:         {"Size1", UintValue, false, 0, 4},
}

// OptionName returns the registered name of an option code,
// or its number if the code is unknown.
func OptionName(code OptionCode) string {
	if def, ok := optionDefs[code]; ok {
		return def.name
	}
	return strconv.Itoa(int(code))
}

// IsKnownOption reports whether code has an entry in the descriptor table.
func IsKnownOption(code OptionCode) bool {
	_, ok := optionDefs[code]
	return ok
}

func optionFormat(code OptionCode) int {
	if def, ok := optionDefs[code]; ok {
		return def.format
	}
	return OpaqueValue
}
