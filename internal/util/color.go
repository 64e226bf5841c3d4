package util

import (
	"fmt"
	"strconv"
	"strings"
)

// darken dims a #RRGGBB color by a percentage. Malformed input is returned
// unchanged; the config layer validates colors before they get here.
func darken(hex string, percent int) string {
	raw := strings.TrimPrefix(hex, "#")
	if len(raw) != 6 {
		return hex
	}
	v, err := strconv.ParseUint(raw, 16, 32)
	if err != nil {
		return hex
	}

	factor := max(1.0-float64(percent)/100.0, 0.0)
	r := uint8(float64(v>>16&0xFF) * factor)
	g := uint8(float64(v>>8&0xFF) * factor)
	b := uint8(float64(v&0xFF) * factor)
	return fmt.Sprintf("#%02X%02X%02X", r, g, b)
}

// GenerateBrandCSS renders the CSS custom properties carrying the instance
// branding colors, with a darkened variant for hover states.
func GenerateBrandCSS(colorLight, colorDark string) string {
	return fmt.Sprintf(
		":root{--brand-light:%s;--brand-dark:%s;--brand:%s;--brand-hover:%s}"+
			"@media(prefers-color-scheme:dark){:root{--brand:%s;--brand-hover:%s}}",
		colorLight, colorDark, colorLight, darken(colorLight, 10), colorDark, darken(colorDark, 10),
	)
}
