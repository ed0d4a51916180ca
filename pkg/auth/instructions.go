package auth

import (
	"fmt"
	"io"
	"strings"
)

// ShowAppPasswordGuide explains how to create an app password
func ShowAppPasswordGuide(w io.Writer) {
	fmt.Fprintln(w, strings.Repeat("=", 72))
	fmt.Fprintln(w, "🔑 BLUESKY APP PASSWORD")
	fmt.Fprintln(w, strings.Repeat("=", 72))
	fmt.Fprintln(w)
	fmt.Fprintln(w, "skeeterdeleter logs in with an app password, never your main password.")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "   1. Open https://bsky.app/settings/app-passwords")
	fmt.Fprintln(w, "   2. Click 'Add App Password' and name it (e.g. skeeterdeleter)")
	fmt.Fprintln(w, "   3. Copy the generated xxxx-xxxx-xxxx-xxxx value")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "⚠️  This tool deletes records permanently. Revoke the app password")
	fmt.Fprintln(w, "   from the same settings page once you are done with it.")
	fmt.Fprintln(w, strings.Repeat("=", 72))
	fmt.Fprintln(w)
}
