package ytdlp

import (
	"bufio"
	"os"
	"strconv"
	"strings"
	"time"
)

// CookieHeader reads a Netscape cookies.txt file and joins its unexpired
// cookies into a Cookie header value. A missing file yields "".
func CookieHeader(path string, now time.Time) (string, error) {
	if path == "" {
		return "", nil
	}

	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	defer f.Close()

	var pairs []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		line = strings.TrimPrefix(line, "#HttpOnly_")
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Split(line, "\t")
		if len(fields) < 7 {
			continue
		}

		// expiry 0 marks a session cookie
		if exp, err := strconv.ParseInt(fields[4], 10, 64); err == nil && exp > 0 && exp < now.Unix() {
			continue
		}
		pairs = append(pairs, fields[5]+"="+fields[6])
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}

	return strings.Join(pairs, "; "), nil
}
