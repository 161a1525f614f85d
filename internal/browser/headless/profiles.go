package headless

import "strings"

// User agents emulating the driver/device combinations the API accepts.
const (
	uaChromeDesktop  = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"
	uaChromeMobile   = "Mozilla/5.0 (Linux; Android 14; Pixel 8) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Mobile Safari/537.36"
	uaFirefoxDesktop = "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:125.0) Gecko/20100101 Firefox/125.0"
	uaFirefoxMobile  = "Mozilla/5.0 (Android 14; Mobile; rv:125.0) Gecko/125.0 Firefox/125.0"
)

// ProfileUserAgent maps a driver/device pair onto a user-agent string.
// Unknown values fall back to desktop Chrome.
func ProfileUserAgent(driver, device string) string {
	mobile := strings.EqualFold(device, "mobile")
	if strings.EqualFold(driver, "firefox") {
		if mobile {
			return uaFirefoxMobile
		}
		return uaFirefoxDesktop
	}
	if mobile {
		return uaChromeMobile
	}
	return uaChromeDesktop
}
