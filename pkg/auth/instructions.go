package auth

import (
	"fmt"
	"io"
	"strings"
)

// ShowTokenGuide explains where a backend API token comes from
func ShowTokenGuide(w io.Writer) {
	fmt.Fprintln(w, strings.Repeat("=", 72))
	fmt.Fprintln(w, "🔑 BACKEND API TOKEN")
	fmt.Fprintln(w, strings.Repeat("=", 72))
	fmt.Fprintln(w)
	fmt.Fprintln(w, "A token is only needed when the scrape backend sits behind a proxy")
	fmt.Fprintln(w, "that checks the Authorization header. A local backend needs none.")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "📡 STEP 1: Ask the backend operator for a bearer token")
	fmt.Fprintln(w, "   - It is sent as 'Authorization: Bearer <token>' on every request")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "💾 STEP 2: Store it for the backend you use")
	fmt.Fprintln(w, "   imgscraper auth login --backend https://scraper.example.com")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "   Tokens are kept in the system keyring when one is available,")
	fmt.Fprintln(w, "   otherwise in an encrypted file in your config directory.")
	fmt.Fprintln(w)
	fmt.Fprintf(w, "💡 For CI, set %s instead of storing a token.\n", TokenEnvVar)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "⚠️  Never commit tokens to a config file under version control.")
	fmt.Fprintln(w, strings.Repeat("=", 72))
}
