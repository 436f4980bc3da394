package auth

import (
	"bufio"
	"crypto/rand"
	"crypto/sha1"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"
)

// BreachChecker reports whether a password appears in known breach corpora.
type BreachChecker interface {
	IsBreached(password string) bool
}

// HIBPClient checks passwords against the haveibeenpwned range API using
// k-anonymity: only the first five hex characters of the SHA-1 leave the
// process.
type HIBPClient struct {
	baseURL string
	client  *http.Client
}

func NewHIBPClient() *HIBPClient {
	return &HIBPClient{
		baseURL: "https://api.pwnedpasswords.com",
		client:  &http.Client{Timeout: 5 * time.Second},
	}
}

// IsBreached looks a password up by hash prefix. Lookup failures fail open:
// an unreachable breach API must not block account creation.
func (c *HIBPClient) IsBreached(password string) bool {
	sum := sha1.Sum([]byte(password))
	digest := strings.ToUpper(fmt.Sprintf("%x", sum))
	prefix, suffix := digest[:5], digest[5:]

	resp, err := c.client.Get(c.baseURL + "/range/" + prefix)
	if err != nil {
		log.Printf("HIBP: range lookup failed: %v", err)
		return false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		log.Printf("HIBP: range lookup returned status %d", resp.StatusCode)
		return false
	}

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if rest, found := strings.CutPrefix(line, suffix+":"); found && rest != "" {
			return true
		}
	}
	return false
}

const verificationTokenChars = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// NewVerificationToken generates the 6-character single-use email
// verification token. The alphabet omits easily confused characters.
func NewVerificationToken() string {
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand only fails if the platform entropy source is broken.
		panic(err)
	}
	for i, b := range buf {
		buf[i] = verificationTokenChars[int(b)%len(verificationTokenChars)]
	}
	return string(buf)
}
