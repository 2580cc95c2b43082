package auth

import (
	"fmt"
	"io"
	"strings"
)

// ShowSessionExtractionGuide writes step-by-step instructions for copying a
// logged-in browser session.
func ShowSessionExtractionGuide(w io.Writer) {
	line := strings.Repeat("=", 80)
	fmt.Fprintln(w, line)
	fmt.Fprintln(w, "SESSION EXTRACTION GUIDE")
	fmt.Fprintln(w, line)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "fansync replays your browser session. You need three values from a")
	fmt.Fprintln(w, "logged-in tab: the Cookie header, the User-Agent and the x-bc header.")
	fmt.Fprintln(w)

	fmt.Fprintln(w, "STEP 1: Log in")
	fmt.Fprintln(w, "   - Open the site in your browser and log in")
	fmt.Fprintln(w, "   - Make sure your feed loads")
	fmt.Fprintln(w)

	fmt.Fprintln(w, "STEP 2: Open Developer Tools")
	fmt.Fprintln(w, "   - Chrome/Edge/Brave/Firefox: F12 or Ctrl+Shift+I (Cmd+Option+I on Mac)")
	fmt.Fprintln(w, "   - Safari: enable the Develop menu, then Cmd+Option+I")
	fmt.Fprintln(w)

	fmt.Fprintln(w, "STEP 3: Find an API request")
	fmt.Fprintln(w, "   - Open the Network tab and refresh the page")
	fmt.Fprintln(w, "   - Filter for 'api2' and click any request, for example 'me'")
	fmt.Fprintln(w, "   - Scroll to 'Request Headers'")
	fmt.Fprintln(w)

	fmt.Fprintln(w, "STEP 4: Copy these headers")
	fmt.Fprintln(w, "   cookie      the whole value, it contains sess=... and auth_id=...")
	fmt.Fprintln(w, "   user-agent  the whole value")
	fmt.Fprintln(w, "   x-bc        a 40 character string of digits and lowercase letters")
	fmt.Fprintln(w)

	fmt.Fprintln(w, "TIPS:")
	fmt.Fprintln(w, "   - Logging out of the browser invalidates the cookie")
	fmt.Fprintln(w, "   - Keep the user-agent and x-bc from the same browser as the cookie")
	fmt.Fprintln(w)

	fmt.Fprintln(w, "SECURITY WARNING:")
	fmt.Fprintln(w, "   - The cookie gives full access to your account")
	fmt.Fprintln(w, "   - fansync stores it in the system keychain or an encrypted file")
	fmt.Fprintln(w)
	fmt.Fprintln(w, line)
	fmt.Fprintln(w)
}

// ShowQuickExtractGuide writes a condensed version for experienced users
func ShowQuickExtractGuide(w io.Writer) {
	fmt.Fprintln(w, "\nQuick guide: F12 → Network → refresh → any api2 request → Request Headers")
	fmt.Fprintln(w, "   Need: cookie, user-agent and x-bc")
	fmt.Fprintln(w, "   Type 'help' for detailed instructions")
}
