package auth

import (
	"fmt"
	"math/rand/v2"
)

// avatarPoolSize is the number of portraits served by the avatar template.
const avatarPoolSize = 70

// DefaultAvatarTemplate points at a public portrait pool indexed by number.
const DefaultAvatarTemplate = "https://i.pravatar.cc/150?img=%d"

// RandomAvatarURL picks a pseudo-random avatar from the pool behind template.
// An empty template falls back to DefaultAvatarTemplate.
func RandomAvatarURL(template string) string {
	if template == "" {
		template = DefaultAvatarTemplate
	}
	return fmt.Sprintf(template, rand.IntN(avatarPoolSize)+1)
}
