package render

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"
)

const gravatarBase = "https://www.gravatar.com/avatar/"

// AvatarURL derives a gravatar URL from the lowercased email.
func AvatarURL(email string, size int) string {
	sum := md5.Sum([]byte(strings.ToLower(strings.TrimSpace(email))))
	return fmt.Sprintf("%s%s?s=%d&d=identicon", gravatarBase, hex.EncodeToString(sum[:]), size)
}
