package utils

import "strings"

// ReservedKeys cannot be used as shortlink keys because they collide with
// routes or read as system pages.
var ReservedKeys = map[string]struct{}{
	"resolve": {}, "api": {}, "admin": {}, "health": {}, "metrics": {},
	"system": {}, "status": {}, "cache": {}, "signup": {}, "login": {},
	"logout": {}, "account": {}, "subscription": {}, "activity": {},
	"shortlinks": {}, "qr": {}, "docs": {}, "static": {}, "assets": {},
	"nothingtoseehere": {}, "404": {}, "index": {}, "root": {},
}

// IsReservedKey is case-insensitive.
func IsReservedKey(key string) bool {
	_, ok := ReservedKeys[strings.ToLower(key)]
	return ok
}
