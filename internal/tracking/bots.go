package tracking

import "strings"

// Mail security scanners prefetch every link and pixel before the human
// ever sees the message. Opens from these agents are dropped so open
// rates stay honest; clicks are still recorded since the redirect has to
// happen anyway.
var botAgents = []string{
	"googleimageproxy",
	"barracuda",
	"mimecast",
	"proofpoint",
	"symantec",
	"bitdefender",
	"python-requests",
	"curl/",
	"wget/",
	"bot",
	"crawler",
	"spider",
}

// IsBot reports whether a user agent looks like an automated scanner.
func IsBot(userAgent string) bool {
	ua := strings.ToLower(userAgent)
	if ua == "" {
		return false
	}
	for _, b := range botAgents {
		if strings.Contains(ua, b) {
			return true
		}
	}
	return false
}
